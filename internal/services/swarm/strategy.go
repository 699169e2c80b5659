package swarm

import (
	"errors"
	"fmt"
	"math"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/services/indicators"
	"RegimeTrader/internal/services/strategy"
	"RegimeTrader/pkg/config"
	"RegimeTrader/pkg/logger"
)

const (
	NameSwarm     = "swarm"
	DefaultWarmup = 60
	DefaultSize   = 0.95
)

type Params struct {
	Warmup          int
	Size            float64
	LearnAccuracy   bool
	StopLossPct     float64
	TrailingStopPct float64
	DisabledAgents  []string
}

func DefaultParams() Params {
	return Params{
		Warmup:          DefaultWarmup,
		Size:            DefaultSize,
		LearnAccuracy:   true,
		StopLossPct:     0.20,
		TrailingStopPct: 0.05,
	}
}

// ParamsFromConfig combines the swarm section with the stop levels of the
// strategy section.
func ParamsFromConfig(sw config.SwarmConfig, st config.StrategyConfig) Params {
	return Params{
		Warmup:          sw.Warmup,
		Size:            sw.Size,
		LearnAccuracy:   sw.LearnAccuracy,
		StopLossPct:     st.StopLossPct,
		TrailingStopPct: st.TrailingStopPct,
		DisabledAgents:  sw.DisabledAgents,
	}
}

// AggregatorFromConfig builds an aggregator honouring the configured weights,
// thresholds and learning rate.
func AggregatorFromConfig(sw config.SwarmConfig) *Aggregator {
	return NewAggregator(
		WithWeights(sw.Weights),
		WithThresholds(sw.BuyThreshold, sw.SellThreshold),
		WithAccuracyAlpha(sw.AccuracyAlpha),
	)
}

// Strategy is the long-only swarm trader: it buys on a Buy consensus when
// flat and sells a long on a Sell consensus.
type Strategy struct {
	params  Params
	agg     *Aggregator
	agents  []Agent
	risk    strategy.RiskOverlay
	tracker *indicators.Tracker
	opts    strategy.Options

	prevClose float64
	lastVotes []models.AgentVote
	last      models.SwarmResult
}

var _ strategy.Strategy = (*Strategy)(nil)

func NewStrategy(p Params, agg *Aggregator, opts ...strategy.Option) (*Strategy, error) {
	if p.Size < 0 || p.Size > 1 {
		return nil, fmt.Errorf("swarm size %v outside [0,1]", p.Size)
	}
	if p.Warmup < 0 {
		return nil, fmt.Errorf("swarm warmup %d is negative", p.Warmup)
	}
	if agg == nil {
		agg = NewAggregator()
	}
	o := strategy.Options{Logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return &Strategy{
		params:  p,
		agg:     agg,
		agents:  DefaultAgents(p.DisabledAgents...),
		risk:    strategy.RiskOverlay{StopLossPct: p.StopLossPct, TrailingStopPct: p.TrailingStopPct},
		tracker: indicators.NewTracker(20),
		opts:    o,
	}, nil
}

func (s *Strategy) Name() string { return NameSwarm }

func (s *Strategy) Aggregator() *Aggregator { return s.agg }

// LastResult is the aggregate computed on the most recent post-warmup bar.
func (s *Strategy) LastResult() models.SwarmResult { return s.last }

func (s *Strategy) Reset() {
	s.tracker = indicators.NewTracker(20)
	s.prevClose = 0
	s.lastVotes = nil
	s.last = models.SwarmResult{}
}

func (s *Strategy) OnBar(bar models.Bar, pos *models.Position) (models.Decision, error) {
	d, err := s.decide(bar, pos)
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordDecision(NameSwarm, d.Action.String())
	}
	if errors.Is(err, models.ErrInsufficientData) {
		s.opts.Logger.Debug("no-op decision", logger.Time("bar", bar.Time), logger.Error(err))
	}
	return d, err
}

func (s *Strategy) decide(bar models.Bar, pos *models.Position) (models.Decision, error) {
	if s.params.LearnAccuracy && s.lastVotes != nil && s.prevClose > 0 {
		s.agg.UpdateAccuracy(s.lastVotes, bar.Close/s.prevClose-1)
	}
	s.lastVotes = nil
	snap := s.tracker.Update(bar)
	s.prevClose = bar.Close

	if d, ok := s.risk.Check(bar, pos); ok {
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordStop(d.Reason)
		}
		return d, nil
	}
	if snap.Bars < s.params.Warmup {
		return models.Hold(NameSwarm, "warmup"),
			fmt.Errorf("%w: swarm needs %d bars, have %d", models.ErrInsufficientData, s.params.Warmup, snap.Bars)
	}

	votes := make([]models.AgentVote, 0, len(s.agents))
	for _, a := range s.agents {
		votes = append(votes, a.Vote(snap))
	}
	s.lastVotes = votes
	s.last = s.agg.Aggregate(votes)

	d := models.Hold(NameSwarm, "")
	switch {
	case s.last.Decision == models.ActionBuy && !pos.IsOpen():
		d = models.Decision{Action: models.ActionBuy, Size: s.params.Size, Mode: NameSwarm, Reason: models.ReasonSignal}
	case s.last.Decision == models.ActionSell && pos.IsLong():
		d = models.Decision{Action: models.ActionSell, Size: 1, Mode: NameSwarm, Reason: models.ReasonSignal}
	}
	d.Score = s.last.Score
	d.Confidence = math.Min(1, math.Abs(s.last.Score))
	return d, nil
}
