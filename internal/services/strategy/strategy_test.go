package strategy

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c, regime, sentiment float64) models.Bar {
	return models.Bar{
		Time: t0.AddDate(0, 0, i), Open: o, High: h, Low: l, Close: c, Volume: 1000,
		RegimeScore: regime, SentimentScore: sentiment, VIX: math.NaN(),
	}
}

func long(entry, hwm float64) *models.Position {
	return &models.Position{Direction: models.Long, EntryPrice: entry, Size: 1, HighWater: hwm}
}

func TestRiskOverlayHardStopFillsAtLevel(t *testing.T) {
	r := RiskOverlay{StopLossPct: 0.20}
	pos := long(100, 100)

	d, ok := r.Check(bar(0, 82, 88, 79, 85, 0, 0), pos)
	require.True(t, ok)
	assert.Equal(t, models.ActionSell, d.Action)
	assert.Equal(t, models.ReasonStopLoss, d.Reason)
	assert.InDelta(t, 80.0, d.Price, 1e-9)
}

func TestRiskOverlayHardStopGapFillsAtOpen(t *testing.T) {
	r := RiskOverlay{StopLossPct: 0.20}
	d, ok := r.Check(bar(0, 75, 78, 70, 77, 0, 0), long(100, 100))
	require.True(t, ok)
	assert.Equal(t, 75.0, d.Price)
}

func TestRiskOverlayTrailingStop(t *testing.T) {
	r := RiskOverlay{StopLossPct: 0.20, TrailingStopPct: 0.05}
	d, ok := r.Check(bar(0, 148, 149, 141, 143, 0, 0), long(140, 150))
	require.True(t, ok)
	assert.Equal(t, models.ReasonTrailingStop, d.Reason)
	assert.InDelta(t, 142.5, d.Price, 1e-9)
}

func TestRiskOverlayTrailingStopFromHighWater(t *testing.T) {
	// entry 100, high-water 150, low 141: the 142.5 trail fires, the 80 hard stop does not
	r := RiskOverlay{StopLossPct: 0.20, TrailingStopPct: 0.05}
	d, ok := r.Check(bar(0, 148, 149, 141, 143, 0, 0), long(100, 150))
	require.True(t, ok)
	assert.Equal(t, models.ActionSell, d.Action)
	assert.Equal(t, models.ReasonTrailingStop, d.Reason)
	assert.InDelta(t, 142.5, d.Price, 1e-9)
}

func TestRiskOverlayAdvancesHighWaterAfterCheck(t *testing.T) {
	r := RiskOverlay{StopLossPct: 0.20, TrailingStopPct: 0.05}
	pos := long(100, 100)

	// 96 is above the 95 trail computed from the previous high-water mark.
	_, ok := r.Check(bar(0, 100, 110, 96, 108, 0, 0), pos)
	require.False(t, ok)
	assert.Equal(t, 110.0, pos.HighWater)

	d, ok := r.Check(bar(1, 106, 107, 104, 105, 0, 0), pos)
	require.True(t, ok)
	assert.InDelta(t, 104.5, d.Price, 1e-9)
}

func TestRiskOverlayShortMirrored(t *testing.T) {
	r := RiskOverlay{StopLossPct: 0.20, TrailingStopPct: 0.05}
	pos := &models.Position{Direction: models.Short, EntryPrice: 100, Size: 0.5, HighWater: 100}

	_, ok := r.Check(bar(0, 99, 100, 90, 91, 0, 0), pos)
	require.False(t, ok)
	assert.Equal(t, 90.0, pos.HighWater)

	d, ok := r.Check(bar(1, 93, 95, 92, 94, 0, 0), pos)
	require.True(t, ok)
	assert.Equal(t, models.ActionCover, d.Action)
	assert.Equal(t, models.ReasonTrailingStop, d.Reason)
	assert.InDelta(t, 94.5, d.Price, 1e-9)
}

func TestRiskOverlayTakeProfit(t *testing.T) {
	r := RiskOverlay{StopLossPct: 0.20, TrailingStopPct: 0.05}
	pos := long(100, 100)
	pos.TakeProfit = 110

	d, ok := r.Check(bar(0, 105, 111, 104, 109, 0, 0), pos)
	require.True(t, ok)
	assert.Equal(t, models.ReasonTakeProfit, d.Reason)
	assert.Equal(t, 110.0, d.Price)
}

func TestRiskOverlayIgnoresFlat(t *testing.T) {
	_, ok := RiskOverlay{StopLossPct: 0.2}.Check(bar(0, 1, 1, 1, 1, 0, 0), &models.Position{})
	assert.False(t, ok)
}

func newAdaptive(t *testing.T, mutate func(*Params)) *Adaptive {
	t.Helper()
	p := DefaultParams()
	if mutate != nil {
		mutate(&p)
	}
	a, err := NewAdaptive(p)
	require.NoError(t, err)
	return a
}

func TestAdaptiveAggressiveEntry(t *testing.T) {
	a := newAdaptive(t, nil)
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, 0.8, 0.1), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.Equal(t, 0.95, d.Size)
	assert.Equal(t, models.RegimeBullish, d.Regime)
	assert.Equal(t, ModeAggressive, d.Mode)
}

func TestAdaptiveAggressiveExit(t *testing.T) {
	a := newAdaptive(t, nil)
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, 0.8, -0.6), long(100, 100))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, d.Action)

	d, err = a.OnBar(bar(1, 100, 101, 99, 100, 0.8, -0.4), long(100, 101))
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, d.Action)
}

func TestAdaptiveDefensiveEntry(t *testing.T) {
	a := newAdaptive(t, nil)
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, -0.7, -0.5), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionShort, d.Action)
	assert.Equal(t, 0.5, d.Size)
	assert.Equal(t, ModeDefensive, d.Mode)
}

func TestAdaptiveDefensiveCover(t *testing.T) {
	a := newAdaptive(t, nil)
	short := &models.Position{Direction: models.Short, EntryPrice: 100, Size: 0.5, HighWater: 100}
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, -0.7, 0.2), short)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCover, d.Action)

	// sentiment still negative: keep the short
	d, err = a.OnBar(bar(1, 100, 101, 99, 100, -0.7, -0.1), short)
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, d.Action)
}

func TestAdaptiveRegimeFlipKeepsOppositePosition(t *testing.T) {
	a := newAdaptive(t, nil)
	// bear regime, long open, sentiment above the short trigger
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, -0.7, 0.2), long(100, 101))
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, d.Action)

	// bull regime, short open, sentiment above the long exit
	short := &models.Position{Direction: models.Short, EntryPrice: 100, Size: 0.5, HighWater: 100}
	d, err = a.OnBar(bar(1, 100, 101, 99, 100, 0.9, 0.2), short)
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, d.Action)
}

func TestAdaptiveCrossModeExitOptIn(t *testing.T) {
	a := newAdaptive(t, func(p *Params) { p.CrossModeExit = true })
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, -0.7, 0.2), long(100, 101))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, d.Action)

	short := &models.Position{Direction: models.Short, EntryPrice: 100, Size: 0.5, HighWater: 100}
	d, err = a.OnBar(bar(1, 100, 101, 99, 100, 0.9, 0.2), short)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCover, d.Action)
}

func TestAdaptiveConfirmStreakCountsStoppedBars(t *testing.T) {
	a := newAdaptive(t, func(p *Params) { p.ConfirmBars = 2 })
	_, _ = a.OnBar(bar(0, 100, 101, 99, 100, 0, 0), &models.Position{})

	// first bullish bar: the hard stop fires, the streak still advances
	d, err := a.OnBar(bar(1, 82, 88, 79, 85, 0.9, 0.5), long(100, 100))
	require.NoError(t, err)
	assert.Equal(t, models.ReasonStopLoss, d.Reason)

	d, err = a.OnBar(bar(2, 100, 101, 99, 100, 0.9, 0.5), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.RegimeBullish, d.Regime)
	assert.Equal(t, models.ActionBuy, d.Action)
}

func warmBand(t *testing.T, a *Adaptive) {
	t.Helper()
	for i := 0; i < 20; i++ {
		_, _ = a.OnBar(bar(i, 110, 120, 100, 110, 0, 0), &models.Position{})
	}
}

func TestAdaptiveMeanReversionBuyNearSupport(t *testing.T) {
	a := newAdaptive(t, nil)
	warmBand(t, a)

	d, err := a.OnBar(bar(20, 98, 99, 96, 97, 0, 0), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.Equal(t, 0.6, d.Size)
	assert.Equal(t, 110.0, d.TakeProfit)
	assert.Equal(t, ModeMeanReversion, d.Mode)
}

func TestAdaptiveMeanReversionNearResistance(t *testing.T) {
	a := newAdaptive(t, nil)
	warmBand(t, a)
	d, err := a.OnBar(bar(20, 118, 119, 117, 118, 0, 0), long(105, 110))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, d.Action)

	a = newAdaptive(t, nil)
	warmBand(t, a)
	d, err = a.OnBar(bar(20, 118, 119, 117, 118, 0, 0), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, d.Action)

	a = newAdaptive(t, func(p *Params) { p.MeanRevShort = true })
	warmBand(t, a)
	d, err = a.OnBar(bar(20, 118, 119, 117, 118, 0, 0), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionShort, d.Action)
	assert.Equal(t, 110.0, d.TakeProfit)
}

func TestAdaptiveMeanReversionWarmup(t *testing.T) {
	a := newAdaptive(t, nil)
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, 0.1, 0), &models.Position{})
	require.ErrorIs(t, err, models.ErrInsufficientData)
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Zero(t, d.Confidence)
}

func TestAdaptiveInvalidScoreStillRunsRiskOverlay(t *testing.T) {
	a := newAdaptive(t, nil)
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, math.NaN(), 0.2), &models.Position{})
	require.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, models.ActionHold, d.Action)

	d, err = a.OnBar(bar(1, 82, 88, 79, 85, math.Inf(1), 0.2), long(100, 80))
	require.NoError(t, err)
	assert.Equal(t, models.ReasonStopLoss, d.Reason)
	assert.InDelta(t, 80.0, d.Price, 1e-9)
}

func TestAdaptiveClampsOutOfRangeScore(t *testing.T) {
	a := newAdaptive(t, nil)
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, 1.8, 0.1), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.RegimeBullish, d.Regime)
	assert.Equal(t, 1.0, d.Score)
	assert.Equal(t, models.ActionBuy, d.Action)
}

func TestAdaptiveDynamicThresholdsScaleSize(t *testing.T) {
	a := newAdaptive(t, func(p *Params) { p.DynamicThresholds = true })
	// default volatility 0.2 selects the 0.9 bucket with a 0.1 entry
	d, err := a.OnBar(bar(0, 100, 101, 99, 100, 0.8, 0.05), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, d.Action)

	d, err = a.OnBar(bar(1, 100, 101, 99, 100, 0.8, 0.15), &models.Position{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.InDelta(t, 0.855, d.Size, 1e-9)
}

func TestDynamicThresholdBuckets(t *testing.T) {
	assert.Equal(t, 1.0, DynamicThresholds(0.1).SizeMultiplier)
	assert.Equal(t, 0.9, DynamicThresholds(0.2).SizeMultiplier)
	assert.Equal(t, 0.7, DynamicThresholds(0.5).SizeMultiplier)
	assert.Equal(t, 0.5, DynamicThresholds(0.8).SizeMultiplier)
	assert.Equal(t, -0.1, DynamicThresholds(1.5).AggressiveEntry)
}

func TestAdaptiveSizesStayInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := newAdaptive(t, func(p *Params) { p.DynamicThresholds = true; p.MeanRevShort = true })
	pos := &models.Position{}
	price := 100.0
	for i := 0; i < 500; i++ {
		price *= 1 + rng.NormFloat64()*0.03
		b := bar(i, price, price*1.02, price*0.98, price, rng.Float64()*2.4-1.2, rng.Float64()*2-1)
		d, _ := a.OnBar(b, pos)
		require.GreaterOrEqual(t, d.Size, 0.0)
		require.LessOrEqual(t, d.Size, 1.0)
		switch d.Action {
		case models.ActionBuy:
			*pos = models.Position{Direction: models.Long, EntryPrice: b.Close, Size: d.Size, HighWater: b.Close}
		case models.ActionShort:
			*pos = models.Position{Direction: models.Short, EntryPrice: b.Close, Size: d.Size, HighWater: b.Close}
		case models.ActionSell, models.ActionCover:
			*pos = models.Position{}
		}
	}
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.BullThreshold = -0.6
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.AggressiveSize = 1.2
	assert.Error(t, p.Validate())

	_, err := NewAdaptive(p)
	assert.Error(t, err)
}

func TestParamsFromConfigMatchesDefaults(t *testing.T) {
	assert.Equal(t, DefaultParams(), ParamsFromConfig(config.Default().Strategy))
}

func trendingBars(n int, regime float64) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = bar(i, c-0.5, c+1, c-1, c, regime, 0.1)
	}
	return out
}

func choppyBars(n int, regime float64) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		c := 100.0
		if i%2 == 1 {
			c = 102
		}
		out[i] = bar(i, c, c+1, c-1, c, regime, 0.1)
	}
	return out
}

// lastDecision feeds bars to s with a long opened at the first close and
// returns the decision for the final bar with sentiment overridden.
func lastDecision(t *testing.T, s Strategy, bars []models.Bar, sentiment float64) models.Decision {
	t.Helper()
	pos := long(bars[0].Close, bars[0].Close)
	bars[len(bars)-1].SentimentScore = sentiment
	var d models.Decision
	for _, b := range bars {
		var err error
		d, err = s.OnBar(b, pos)
		if err != nil {
			require.ErrorIs(t, err, models.ErrInsufficientData)
		}
		require.True(t, pos.IsOpen())
	}
	return d
}

func TestTrendHoldsBullLongThroughSentimentDipInStrongTrend(t *testing.T) {
	adaptive, err := NewAdaptive(DefaultParams())
	require.NoError(t, err)
	trend, err := NewTrend(DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, NameTrend, trend.Name())

	d := lastDecision(t, adaptive, trendingBars(40, 0.8), -0.8)
	assert.Equal(t, models.ActionSell, d.Action)

	d = lastDecision(t, trend, trendingBars(40, 0.8), -0.8)
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Equal(t, ReasonStrongTrend, d.Reason)
	assert.Equal(t, ModeAggressive, d.Mode)
}

func TestTrendSkipsMeanReversionInStrongTrend(t *testing.T) {
	adaptive, err := NewAdaptive(DefaultParams())
	require.NoError(t, err)
	trend, err := NewTrend(DefaultParams())
	require.NoError(t, err)

	// price sits at the top of its band, so mean reversion would sell
	d := lastDecision(t, adaptive, trendingBars(40, 0), 0)
	assert.Equal(t, models.ActionSell, d.Action)
	assert.Equal(t, ModeMeanReversion, d.Mode)

	d = lastDecision(t, trend, trendingBars(40, 0), 0)
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Equal(t, ReasonStrongTrend, d.Reason)
}

func TestTrendActsLikeAdaptiveWithoutTrend(t *testing.T) {
	trend, err := NewTrend(DefaultParams())
	require.NoError(t, err)
	d := lastDecision(t, trend, choppyBars(40, 0.8), -0.8)
	assert.Equal(t, models.ActionSell, d.Action)
	assert.Equal(t, models.ReasonSignal, d.Reason)
}

func TestTrendResetClearsADX(t *testing.T) {
	trend, err := NewTrend(DefaultParams())
	require.NoError(t, err)
	lastDecision(t, trend, trendingBars(40, 0.8), 0.1)
	trend.Reset()

	// after a reset the ADX is neutral again, so the sentiment exit fires
	d := lastDecision(t, trend, trendingBars(3, 0.8), -0.8)
	assert.Equal(t, models.ActionSell, d.Action)
}

func TestNewTrendRejectsShortADXPeriod(t *testing.T) {
	p := DefaultParams()
	p.ADXPeriod = 1
	_, err := NewTrend(p)
	assert.Error(t, err)
}
