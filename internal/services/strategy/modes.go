package strategy

import (
	"fmt"
	"math"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/services/indicators"
)

const (
	ModeAggressive    = "aggressive"
	ModeDefensive     = "defensive"
	ModeMeanReversion = "mean_reversion"
)

// ModeFor names the trading mode a regime selects.
func ModeFor(r models.Regime) string {
	switch r {
	case models.RegimeBullish:
		return ModeAggressive
	case models.RegimeBearish:
		return ModeDefensive
	default:
		return ModeMeanReversion
	}
}

func signal(action models.Action, size, confidence float64, mode string) models.Decision {
	return models.Decision{
		Action:     action,
		Size:       clamp01(size),
		Confidence: clamp01(confidence),
		Mode:       mode,
		Reason:     models.ReasonSignal,
	}
}

// Aggressive buys on positive sentiment in a bull regime and exits a long on
// strongly negative sentiment. An open short is left to the risk overlay
// unless exitOpposite is set.
func Aggressive(t Thresholds, size, sentiment float64, pos models.Position, exitOpposite bool) models.Decision {
	switch {
	case pos.IsShort() && exitOpposite:
		return signal(models.ActionCover, 1, 1, ModeAggressive)
	case !pos.IsOpen() && sentiment > t.AggressiveEntry:
		return signal(models.ActionBuy, size, math.Abs(sentiment), ModeAggressive)
	case pos.IsLong() && sentiment < t.AggressiveExit:
		return signal(models.ActionSell, 1, math.Abs(sentiment), ModeAggressive)
	}
	return models.Hold(ModeAggressive, "")
}

// Defensive shorts on negative sentiment in a bear regime and covers on
// positive sentiment. An open long is left to the risk overlay unless
// exitOpposite is set.
func Defensive(t Thresholds, size, sentiment float64, pos models.Position, exitOpposite bool) models.Decision {
	switch {
	case pos.IsLong() && exitOpposite:
		return signal(models.ActionSell, 1, 1, ModeDefensive)
	case !pos.IsOpen() && sentiment < t.DefensiveShort:
		return signal(models.ActionShort, size, math.Abs(sentiment), ModeDefensive)
	case pos.IsShort() && sentiment > t.DefensiveCover:
		return signal(models.ActionCover, 1, math.Abs(sentiment), ModeDefensive)
	}
	return models.Hold(ModeDefensive, "")
}

// MeanReversion trades the band spanned by the previous Lookback bars: buy
// near support, sell near resistance, take profit at the midpoint.
func MeanReversion(p Params, size float64, s indicators.Snapshot, pos models.Position) (models.Decision, error) {
	if s.LookbackBars < p.Lookback {
		return models.Hold(ModeMeanReversion, "warmup"),
			fmt.Errorf("%w: mean reversion needs %d bars, have %d", models.ErrInsufficientData, p.Lookback, s.LookbackBars)
	}
	support, resistance := s.Support, s.Resistance
	mid := (support + resistance) / 2
	price := s.Close

	switch {
	case price <= support*(1+p.SupportPct):
		if pos.IsLong() {
			break
		}
		d := signal(models.ActionBuy, size, bandConfidence(price, support, resistance), ModeMeanReversion)
		d.TakeProfit = mid
		return d, nil
	case price >= resistance*(1-p.ResistancePct):
		switch {
		case pos.IsShort():
		case p.MeanRevShort:
			d := signal(models.ActionShort, size, bandConfidence(price, support, resistance), ModeMeanReversion)
			d.TakeProfit = mid
			return d, nil
		case pos.IsLong():
			return signal(models.ActionSell, 1, 1, ModeMeanReversion), nil
		}
	}
	return models.Hold(ModeMeanReversion, ""), nil
}

// bandConfidence grows as price moves away from the band midpoint.
func bandConfidence(price, support, resistance float64) float64 {
	half := (resistance - support) / 2
	if half <= 0 {
		return 1
	}
	return math.Abs(price-(support+half)) / half
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
