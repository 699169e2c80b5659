package swarm

import (
	"math"
	"time"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/services/indicators"
)

// Agent names, also the keys of the base weight table.
const (
	AgentVIX               = "vix"
	AgentTrend             = "trend"
	AgentVolume            = "volume"
	AgentMomentum          = "momentum"
	AgentSeasonal          = "seasonal"
	AgentSupportResistance = "support_resistance"
	AgentSentiment         = "sentiment"
)

// Agent casts one vote per bar from the shared indicator snapshot.
type Agent interface {
	Name() string
	Vote(s indicators.Snapshot) models.AgentVote
}

func vote(name string, v int, conf float64, reason string) models.AgentVote {
	return models.AgentVote{Agent: name, Vote: v, Confidence: conf, Reason: reason}
}

// DefaultAgents returns every agent except the disabled ones, in a fixed order.
func DefaultAgents(disabled ...string) []Agent {
	skip := make(map[string]bool, len(disabled))
	for _, d := range disabled {
		skip[d] = true
	}
	all := []Agent{
		VIXAgent{},
		TrendAgent{},
		VolumeAgent{},
		MomentumAgent{},
		SeasonalAgent{},
		SupportResistanceAgent{},
		SentimentAgent{},
	}
	out := make([]Agent, 0, len(all))
	for _, a := range all {
		if !skip[a.Name()] {
			out = append(out, a)
		}
	}
	return out
}

// VIXAgent reads the fear index. Very high readings are treated as
// capitulation and vote bullish.
type VIXAgent struct{}

func (VIXAgent) Name() string { return AgentVIX }

func (VIXAgent) Vote(s indicators.Snapshot) models.AgentVote {
	v := s.VIX
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return vote(AgentVIX, 0, 0, "no vix")
	}
	switch {
	case v < 15:
		return vote(AgentVIX, 0, 0.6, "complacent")
	case v < 20:
		return vote(AgentVIX, 1, 0.7, "calm")
	case v < 25:
		return vote(AgentVIX, 0, 0.3, "elevated")
	case v < 35:
		return vote(AgentVIX, -1, 0.7, "fear")
	default:
		return vote(AgentVIX, 1, 0.8, "capitulation")
	}
}

// TrendAgent compares price against the 20 and 50 bar moving averages.
type TrendAgent struct{}

func (TrendAgent) Name() string { return AgentTrend }

func (TrendAgent) Vote(s indicators.Snapshot) models.AgentVote {
	if !s.SMA50Ready() || s.SMA50 == 0 {
		return vote(AgentTrend, 0, 0, "warmup")
	}
	p, fast, slow := s.Close, s.SMA20, s.SMA50
	strength := math.Min(0.9, 0.5+math.Abs(p-slow)/slow)
	switch {
	case p > fast && fast > slow:
		return vote(AgentTrend, 1, strength, "uptrend")
	case p > fast && fast < slow:
		return vote(AgentTrend, 1, 0.5, "recovery")
	case p < fast && fast < slow:
		return vote(AgentTrend, -1, strength, "downtrend")
	case p < fast && fast > slow:
		return vote(AgentTrend, -1, 0.5, "pullback")
	}
	return vote(AgentTrend, 0, 0.3, "flat")
}

const highVolumeRatio = 1.5

// VolumeAgent looks for accumulation and distribution: a move on heavy
// volume confirmed by on-balance volume.
type VolumeAgent struct{}

func (VolumeAgent) Name() string { return AgentVolume }

func (VolumeAgent) Vote(s indicators.Snapshot) models.AgentVote {
	if !s.SMA20Ready() {
		return vote(AgentVolume, 0, 0, "warmup")
	}
	obvUp := s.OBV > s.OBVSMA20
	ratio := 1.0
	if s.VolumeSMA20 > 0 {
		ratio = s.Volume / s.VolumeSMA20
	}
	high := ratio > highVolumeRatio
	change := s.Change()
	switch {
	case change > 0 && high && obvUp:
		return vote(AgentVolume, 1, 0.8, "accumulation")
	case change < 0 && high && !obvUp:
		return vote(AgentVolume, -1, 0.8, "distribution")
	case math.Abs(change) > 0.02 && !high:
		return vote(AgentVolume, 0, 0.4, "move without volume")
	}
	return vote(AgentVolume, 0, 0.3, "quiet")
}

// MomentumAgent fades RSI extremes unless rate of change says the move is
// still running.
type MomentumAgent struct{}

func (MomentumAgent) Name() string { return AgentMomentum }

func (MomentumAgent) Vote(s indicators.Snapshot) models.AgentVote {
	if !s.RSIReady() {
		return vote(AgentMomentum, 0, 0, "warmup")
	}
	rsi, roc := s.RSI14, s.ROC10
	switch {
	case rsi > 70:
		if roc > 0.10 {
			return vote(AgentMomentum, 0, 0.4, "overbought, strong momentum")
		}
		return vote(AgentMomentum, -1, 0.7, "overbought")
	case rsi < 30:
		if roc < -0.10 {
			return vote(AgentMomentum, 0, 0.4, "oversold, strong momentum")
		}
		return vote(AgentMomentum, 1, 0.7, "oversold")
	case rsi > 50:
		return vote(AgentMomentum, 1, 0.5, "positive")
	}
	return vote(AgentMomentum, -1, 0.5, "negative")
}

var monthlyBias = map[time.Month]float64{
	time.January:   0.7,
	time.February:  0.3,
	time.March:     0.4,
	time.April:     0.6,
	time.May:       0.2,
	time.June:      0.1,
	time.July:      0.4,
	time.August:    0.0,
	time.September: -0.5,
	time.October:   0.3,
	time.November:  0.6,
	time.December:  0.7,
}

// SeasonalAgent applies calendar effects.
type SeasonalAgent struct{}

func (SeasonalAgent) Name() string { return AgentSeasonal }

func (SeasonalAgent) Vote(s indicators.Snapshot) models.AgentVote {
	if s.Time.IsZero() {
		return vote(AgentSeasonal, 0, 0.3, "no date")
	}
	bias := monthlyBias[s.Time.Month()]
	switch s.Time.Weekday() {
	case time.Monday:
		bias -= 0.1
	case time.Friday:
		bias += 0.1
	}
	conf := math.Min(0.6, 0.3+math.Abs(bias))
	switch {
	case bias > 0.3:
		return vote(AgentSeasonal, 1, conf, s.Time.Month().String())
	case bias < -0.3:
		return vote(AgentSeasonal, -1, conf, s.Time.Month().String())
	}
	return vote(AgentSeasonal, 0, 0.3, s.Time.Month().String())
}

const srBuffer = 0.02

// SupportResistanceAgent trades breakouts and bounces against the band of
// the previous 20 bars.
type SupportResistanceAgent struct{}

func (SupportResistanceAgent) Name() string { return AgentSupportResistance }

func (SupportResistanceAgent) Vote(s indicators.Snapshot) models.AgentVote {
	if s.SR20Bars < 20 || !s.HasPrev() {
		return vote(AgentSupportResistance, 0, 0, "warmup")
	}
	price, support, resistance := s.Close, s.Support20, s.Resistance20
	toSupport, toResistance := 1.0, 1.0
	if support > 0 {
		toSupport = (price - support) / support
	}
	if resistance > 0 {
		toResistance = (resistance - price) / resistance
	}
	switch {
	case price > resistance:
		return vote(AgentSupportResistance, 1, 0.8, "breakout")
	case price < support:
		return vote(AgentSupportResistance, -1, 0.8, "breakdown")
	case toSupport < srBuffer:
		if price > s.PrevClose {
			return vote(AgentSupportResistance, 1, 0.7, "bounce")
		}
		return vote(AgentSupportResistance, 0, 0.4, "testing support")
	case toResistance < srBuffer:
		if price < s.PrevClose {
			return vote(AgentSupportResistance, -1, 0.7, "rejection")
		}
		return vote(AgentSupportResistance, 0, 0.4, "testing resistance")
	}
	return vote(AgentSupportResistance, 0, 0.2, "mid range")
}

// SentimentAgent wraps the external sentiment score; confidence falls as the
// last five readings disagree.
type SentimentAgent struct{}

func (SentimentAgent) Name() string { return AgentSentiment }

func (SentimentAgent) Vote(s indicators.Snapshot) models.AgentVote {
	if s.SentimentCount < 5 {
		return vote(AgentSentiment, 0, 0.3, "warmup")
	}
	cur := s.Sentiment
	v := 0
	switch {
	case cur > 0.3:
		v = 1
	case cur < -0.3:
		v = -1
	}
	var conf float64
	switch {
	case math.IsNaN(s.SentimentStd):
		conf = 0.5
	case s.SentimentStd < 0.2:
		conf = 0.7
	case s.SentimentStd < 0.4:
		conf = 0.5
	default:
		conf = 0.3
	}
	if math.Abs(cur) > 0.6 {
		conf = math.Min(0.9, conf+0.2)
	}
	return vote(AgentSentiment, v, conf, "")
}
