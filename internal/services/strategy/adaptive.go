package strategy

import (
	"errors"
	"fmt"
	"math"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/services/indicators"
	"RegimeTrader/internal/services/regime"
	"RegimeTrader/pkg/logger"
)

const (
	NameAdaptive = "adaptive"
	NameTrend    = "trend"
)

// ReasonStrongTrend marks a signal withheld because ADX shows a strong trend.
const ReasonStrongTrend = "strong_trend"

// Adaptive switches between aggressive, defensive and mean-reversion rules
// according to the regime of each bar.
type Adaptive struct {
	name       string
	params     Params
	risk       RiskOverlay
	tracker    *indicators.Tracker
	classifier *regime.Classifier
	// adx is set for the trend variant only
	adx  *indicators.ADX
	opts Options
}

func NewAdaptive(p Params, opts ...Option) (*Adaptive, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("adaptive params: %w", err)
	}
	return &Adaptive{
		name:       NameAdaptive,
		params:     p,
		risk:       RiskOverlay{StopLossPct: p.StopLossPct, TrailingStopPct: p.TrailingStopPct},
		tracker:    indicators.NewTracker(p.Lookback),
		classifier: regime.NewClassifier(p.BullThreshold, p.BearThreshold, p.ConfirmBars),
		opts:       buildOptions(opts),
	}, nil
}

// NewTrend builds the trend-aware variant of Adaptive. While ADX is at or
// above p.ADXThreshold it keeps a long through negative sentiment in a bull
// regime, leaving the exit to the trailing stop, and it skips mean reversion
// in a sideways regime. Everything else matches Adaptive.
func NewTrend(p Params, opts ...Option) (*Adaptive, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("trend params: %w", err)
	}
	if p.ADXPeriod < 2 {
		return nil, fmt.Errorf("trend params: adx period %d must be at least 2", p.ADXPeriod)
	}
	a, err := NewAdaptive(p, opts...)
	if err != nil {
		return nil, err
	}
	a.name = NameTrend
	a.adx = indicators.NewADX(p.ADXPeriod)
	return a, nil
}

func (a *Adaptive) Name() string { return a.name }

func (a *Adaptive) Params() Params { return a.params }

func (a *Adaptive) Reset() {
	a.tracker = indicators.NewTracker(a.params.Lookback)
	a.classifier.Reset()
	if a.adx != nil {
		a.adx = indicators.NewADX(a.params.ADXPeriod)
	}
}

func (a *Adaptive) OnBar(bar models.Bar, pos *models.Position) (models.Decision, error) {
	d, err := a.decide(bar, pos)
	if a.opts.Metrics != nil {
		a.opts.Metrics.RecordDecision(a.name, d.Action.String())
	}
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		a.opts.Logger.Debug("no-op decision", logger.Time("bar", bar.Time), logger.Error(err))
	case err != nil:
		a.opts.Logger.Warn("bar skipped", logger.Time("bar", bar.Time), logger.Error(err))
	}
	return d, err
}

func (a *Adaptive) decide(bar models.Bar, pos *models.Position) (models.Decision, error) {
	snap := a.tracker.Update(bar)
	strong := false
	if a.adx != nil {
		strong = a.adx.Update(bar.High, bar.Low, bar.Close) >= a.params.ADXThreshold
	}

	// classify before the risk check so a stopped-out bar still counts
	// toward the confirmation streak
	score, scoreErr := a.normalize("regime_score", bar, bar.RegimeScore)
	var reg models.Regime
	if scoreErr == nil {
		reg = a.classifier.Next(score)
	}

	if d, ok := a.risk.Check(bar, pos); ok {
		if a.opts.Metrics != nil {
			a.opts.Metrics.RecordStop(d.Reason)
		}
		return d, nil
	}
	if scoreErr != nil {
		return models.Hold("", "invalid_regime_score"), scoreErr
	}
	sentiment, err := a.normalize("sentiment_score", bar, bar.SentimentScore)
	if err != nil {
		return models.Hold("", "invalid_sentiment_score"), err
	}

	th := a.params.fixedThresholds()
	if a.params.DynamicThresholds {
		th = DynamicThresholds(snap.Volatility)
	}

	var d models.Decision
	switch reg {
	case models.RegimeBullish:
		size := a.params.AggressiveSize * th.SizeMultiplier
		if a.params.DynamicThresholds {
			size = math.Min(size, maxAggressiveSize)
		}
		d = Aggressive(th, size, sentiment, *pos, a.params.CrossModeExit)
		if strong && d.Action == models.ActionSell {
			d = models.Hold(ModeAggressive, ReasonStrongTrend)
		}
	case models.RegimeBearish:
		d = Defensive(th, a.params.DefensiveSize*th.SizeMultiplier, sentiment, *pos, a.params.CrossModeExit)
	default:
		if strong {
			d = models.Hold(ModeMeanReversion, ReasonStrongTrend)
			break
		}
		d, err = MeanReversion(a.params, a.params.MeanRevSize, snap, *pos)
	}
	d.Regime = reg
	d.Score = score
	return d, err
}

func (a *Adaptive) normalize(name string, bar models.Bar, v float64) (float64, error) {
	n, clamped, err := regime.Normalize(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if clamped {
		a.opts.Logger.Warn("score clamped",
			logger.String("field", name),
			logger.Time("bar", bar.Time),
			logger.Float64("value", v),
		)
	}
	return n, nil
}
