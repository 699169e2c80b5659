package strategy

import (
	"fmt"

	"RegimeTrader/pkg/config"
)

// Params holds every threshold of the adaptive strategy. It is built once and
// passed by value so a running strategy can never observe a change.
type Params struct {
	BullThreshold float64
	BearThreshold float64
	ConfirmBars   int

	AggressiveEntry float64
	AggressiveExit  float64
	AggressiveSize  float64

	DefensiveShort float64
	DefensiveCover float64
	DefensiveSize  float64

	Lookback      int
	SupportPct    float64
	ResistancePct float64
	MeanRevSize   float64
	MeanRevShort  bool

	StopLossPct     float64
	TrailingStopPct float64

	DynamicThresholds bool
	// CrossModeExit closes a position opened against the current regime
	// (a short in a bull regime, a long in a bear regime). Off by default.
	CrossModeExit bool

	// ADX settings of the trend strategy.
	ADXPeriod    int
	ADXThreshold float64
}

func DefaultParams() Params {
	return Params{
		BullThreshold:   0.5,
		BearThreshold:   -0.5,
		ConfirmBars:     1,
		AggressiveEntry: 0.0,
		AggressiveExit:  -0.5,
		AggressiveSize:  0.95,
		DefensiveShort:  -0.3,
		DefensiveCover:  0.0,
		DefensiveSize:   0.5,
		Lookback:        20,
		SupportPct:      0.03,
		ResistancePct:   0.03,
		MeanRevSize:     0.6,
		StopLossPct:     0.20,
		TrailingStopPct: 0.05,
		ADXPeriod:       14,
		ADXThreshold:    25,
	}
}

// ParamsFromConfig copies the strategy section of the application config.
func ParamsFromConfig(c config.StrategyConfig) Params {
	return Params{
		BullThreshold:     c.BullThreshold,
		BearThreshold:     c.BearThreshold,
		ConfirmBars:       c.ConfirmBars,
		AggressiveEntry:   c.AggressiveEntry,
		AggressiveExit:    c.AggressiveExit,
		AggressiveSize:    c.AggressiveSize,
		DefensiveShort:    c.DefensiveShort,
		DefensiveCover:    c.DefensiveCover,
		DefensiveSize:     c.DefensiveSize,
		Lookback:          c.Lookback,
		SupportPct:        c.SupportPct,
		ResistancePct:     c.ResistancePct,
		MeanRevSize:       c.MeanRevSize,
		MeanRevShort:      c.MeanRevShort,
		StopLossPct:       c.StopLossPct,
		TrailingStopPct:   c.TrailingStopPct,
		DynamicThresholds: c.DynamicThresholds,
		CrossModeExit:     c.CrossModeExit,
		ADXPeriod:         c.ADXPeriod,
		ADXThreshold:      c.ADXThreshold,
	}
}

func (p Params) Validate() error {
	if p.BullThreshold <= p.BearThreshold {
		return fmt.Errorf("bull threshold %v must exceed bear threshold %v", p.BullThreshold, p.BearThreshold)
	}
	if p.Lookback < 2 {
		return fmt.Errorf("lookback %d must be at least 2", p.Lookback)
	}
	for name, v := range map[string]float64{
		"aggressive_size":     p.AggressiveSize,
		"defensive_size":      p.DefensiveSize,
		"mean_reversion_size": p.MeanRevSize,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %v outside [0,1]", name, v)
		}
	}
	for name, v := range map[string]float64{
		"stop_loss_pct":     p.StopLossPct,
		"trailing_stop_pct": p.TrailingStopPct,
		"support_pct":       p.SupportPct,
		"resistance_pct":    p.ResistancePct,
	} {
		if v < 0 || v >= 1 {
			return fmt.Errorf("%s %v outside [0,1)", name, v)
		}
	}
	return nil
}

// Thresholds are the sentiment cut-offs used by the directional modes.
type Thresholds struct {
	AggressiveEntry float64
	AggressiveExit  float64
	DefensiveShort  float64
	DefensiveCover  float64
	SizeMultiplier  float64
}

func (p Params) fixedThresholds() Thresholds {
	return Thresholds{
		AggressiveEntry: p.AggressiveEntry,
		AggressiveExit:  p.AggressiveExit,
		DefensiveShort:  p.DefensiveShort,
		DefensiveCover:  p.DefensiveCover,
		SizeMultiplier:  1,
	}
}

// maxAggressiveSize caps the long size when thresholds are volatility driven.
const maxAggressiveSize = 0.95

// DynamicThresholds picks a threshold bucket from annualised volatility.
// Calmer markets get stricter entries and full size.
func DynamicThresholds(vol float64) Thresholds {
	switch {
	case vol < 0.20:
		return Thresholds{AggressiveEntry: 0.2, AggressiveExit: -0.3, DefensiveShort: -0.8, DefensiveCover: 0.3, SizeMultiplier: 1.0}
	case vol < 0.50:
		return Thresholds{AggressiveEntry: 0.1, AggressiveExit: -0.2, DefensiveShort: -0.6, DefensiveCover: 0.2, SizeMultiplier: 0.9}
	case vol < 0.80:
		return Thresholds{AggressiveEntry: 0.0, AggressiveExit: -0.1, DefensiveShort: -0.4, DefensiveCover: 0.1, SizeMultiplier: 0.7}
	default:
		return Thresholds{AggressiveEntry: -0.1, AggressiveExit: -0.3, DefensiveShort: -0.3, DefensiveCover: 0.1, SizeMultiplier: 0.5}
	}
}
