package indicators

import (
	"math"
	"time"

	"RegimeTrader/internal/domain/models"
)

const (
	smaFast        = 20
	smaSlow        = 50
	rsiPeriod      = 14
	rocPeriod      = 10
	volumePeriod   = 20
	volPeriod      = 20
	srPeriod       = 20
	sentimentBars  = 5
	tradingDays    = 252
	defaultAnnualV = 0.2
)

// Snapshot is the indicator state after a bar has been applied. Support and
// resistance cover the bars before the current one, everything else includes it.
type Snapshot struct {
	Bars int
	Time time.Time

	Open, High, Low, Close, Volume float64
	PrevClose                      float64
	Regime, Sentiment, VIX         float64

	// Support/Resistance span the previous Lookback bars.
	Support, Resistance float64
	LookbackBars        int
	// Support20/Resistance20 span the previous 20 bars.
	Support20, Resistance20 float64
	SR20Bars                int

	SMA20, SMA50 float64
	OBV          float64
	OBVSMA20     float64
	VolumeSMA20  float64
	RSI14        float64
	ROC10        float64
	// Volatility is annualised; 0.2 until 20 returns are available.
	Volatility float64

	SentimentStd   float64
	SentimentCount int
}

func (s Snapshot) HasPrev() bool { return s.Bars > 1 }

// Change is the simple return of the current bar versus the previous close.
func (s Snapshot) Change() float64 {
	if !s.HasPrev() || s.PrevClose == 0 {
		return 0
	}
	return s.Close/s.PrevClose - 1
}

func (s Snapshot) SMA20Ready() bool { return s.Bars >= smaFast }
func (s Snapshot) SMA50Ready() bool { return s.Bars >= smaSlow }
func (s Snapshot) RSIReady() bool   { return s.Bars >= rsiPeriod+1 }
func (s Snapshot) ROCReady() bool   { return s.Bars >= rocPeriod+1 }

// Tracker maintains every rolling statistic the strategies read, updated in
// O(1) amortised time per bar.
type Tracker struct {
	lookback int
	bars     int
	prev     float64

	lowsMR  *MonotonicWindow
	highsMR *MonotonicWindow
	lows20  *MonotonicWindow
	highs20 *MonotonicWindow

	closes20 *Window
	closes50 *Window
	gains    *Window
	losses   *Window
	obv      float64
	obv20    *Window
	volume20 *Window
	returns  *Window
	sent     *Window
}

// NewTracker builds a tracker; lookback sizes the mean-reversion band.
func NewTracker(lookback int) *Tracker {
	if lookback < 1 {
		lookback = 20
	}
	return &Tracker{
		lookback: lookback,
		lowsMR:   NewRollingMin(lookback),
		highsMR:  NewRollingMax(lookback),
		lows20:   NewRollingMin(srPeriod),
		highs20:  NewRollingMax(srPeriod),
		closes20: NewWindow(smaFast),
		closes50: NewWindow(smaSlow),
		gains:    NewWindow(rsiPeriod),
		losses:   NewWindow(rsiPeriod),
		obv20:    NewWindow(volumePeriod),
		volume20: NewWindow(volumePeriod),
		returns:  NewWindow(volPeriod),
		sent:     NewWindow(sentimentBars),
	}
}

func (t *Tracker) Bars() int { return t.bars }

// Update applies bar b and returns the resulting snapshot.
func (t *Tracker) Update(b models.Bar) Snapshot {
	s := Snapshot{
		Time:      b.Time,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		PrevClose: t.prev,
		Regime:    b.RegimeScore,
		Sentiment: b.SentimentScore,
		VIX:       b.VIX,
	}

	// Bands are read before the current bar enters the windows.
	s.Support, s.Resistance, s.LookbackBars = t.lowsMR.Value(), t.highsMR.Value(), t.lowsMR.Len()
	s.Support20, s.Resistance20, s.SR20Bars = t.lows20.Value(), t.highs20.Value(), t.lows20.Len()

	t.lowsMR.Push(b.Low)
	t.highsMR.Push(b.High)
	t.lows20.Push(b.Low)
	t.highs20.Push(b.High)

	if t.bars > 0 {
		diff := b.Close - t.prev
		t.gains.Push(math.Max(diff, 0))
		t.losses.Push(math.Max(-diff, 0))
		switch {
		case diff > 0:
			t.obv += b.Volume
		case diff < 0:
			t.obv -= b.Volume
		}
		if t.prev != 0 {
			t.returns.Push(b.Close/t.prev - 1)
		}
	}
	t.closes20.Push(b.Close)
	t.closes50.Push(b.Close)
	t.obv20.Push(t.obv)
	t.volume20.Push(b.Volume)
	if !math.IsNaN(b.SentimentScore) && !math.IsInf(b.SentimentScore, 0) {
		t.sent.Push(b.SentimentScore)
	}

	t.bars++
	t.prev = b.Close
	s.Bars = t.bars

	s.SMA20 = t.closes20.Mean()
	s.SMA50 = t.closes50.Mean()
	s.OBV = t.obv
	s.OBVSMA20 = t.obv20.Mean()
	s.VolumeSMA20 = t.volume20.Mean()
	s.RSI14 = t.rsi()
	s.ROC10 = t.roc()
	s.Volatility = defaultAnnualV
	if t.returns.Full() {
		s.Volatility = t.returns.Std() * math.Sqrt(tradingDays)
	}
	s.SentimentStd = t.sent.SampleStd()
	s.SentimentCount = t.sent.Len()
	return s
}

// rsi uses simple rolling means of gains and losses; a zero average loss is
// floored at 1e-9 so a flat or one-way window still yields a finite value.
func (t *Tracker) rsi() float64 {
	if !t.gains.Full() {
		return math.NaN()
	}
	loss := t.losses.Mean()
	if loss == 0 {
		loss = 1e-9
	}
	rs := t.gains.Mean() / loss
	return 100 - 100/(1+rs)
}

func (t *Tracker) roc() float64 {
	n := t.closes50.Len()
	if n < rocPeriod+1 {
		return 0
	}
	base := t.closes50.At(n - rocPeriod - 1)
	if base == 0 {
		return 0
	}
	return (t.closes50.Last() - base) / base
}
