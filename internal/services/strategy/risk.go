package strategy

import (
	"math"

	"RegimeTrader/internal/domain/models"
)

const modeRisk = "risk"

// RiskOverlay enforces the hard stop, trailing stop and take-profit of the
// open position against intrabar extremes. A zero percentage disables a stop.
type RiskOverlay struct {
	StopLossPct     float64
	TrailingStopPct float64
}

// Check returns an exit decision when bar breaches a level of pos. When no
// exit fires the high-water mark is advanced with the bar's extreme.
func (r RiskOverlay) Check(bar models.Bar, pos *models.Position) (models.Decision, bool) {
	if pos == nil || !pos.IsOpen() {
		return models.Decision{}, false
	}
	if pos.HighWater == 0 {
		pos.HighWater = pos.EntryPrice
	}
	if pos.IsLong() {
		return r.checkLong(bar, pos)
	}
	return r.checkShort(bar, pos)
}

func (r RiskOverlay) checkLong(bar models.Bar, pos *models.Position) (models.Decision, bool) {
	level, reason := 0.0, ""
	if r.StopLossPct > 0 {
		level, reason = pos.EntryPrice*(1-r.StopLossPct), models.ReasonStopLoss
	}
	if r.TrailingStopPct > 0 {
		if trail := pos.HighWater * (1 - r.TrailingStopPct); trail > level {
			level, reason = trail, models.ReasonTrailingStop
		}
	}
	if reason != "" && bar.Low <= level {
		return exit(models.ActionSell, math.Min(bar.Open, level), reason), true
	}
	if pos.TakeProfit > 0 && bar.High >= pos.TakeProfit {
		return exit(models.ActionSell, math.Max(bar.Open, pos.TakeProfit), models.ReasonTakeProfit), true
	}
	pos.HighWater = math.Max(pos.HighWater, bar.High)
	return models.Decision{}, false
}

func (r RiskOverlay) checkShort(bar models.Bar, pos *models.Position) (models.Decision, bool) {
	level, reason := math.Inf(1), ""
	if r.StopLossPct > 0 {
		level, reason = pos.EntryPrice*(1+r.StopLossPct), models.ReasonStopLoss
	}
	if r.TrailingStopPct > 0 {
		if trail := pos.HighWater * (1 + r.TrailingStopPct); trail < level {
			level, reason = trail, models.ReasonTrailingStop
		}
	}
	if reason != "" && bar.High >= level {
		return exit(models.ActionCover, math.Max(bar.Open, level), reason), true
	}
	if pos.TakeProfit > 0 && bar.Low <= pos.TakeProfit {
		return exit(models.ActionCover, math.Min(bar.Open, pos.TakeProfit), models.ReasonTakeProfit), true
	}
	pos.HighWater = math.Min(pos.HighWater, bar.Low)
	return models.Decision{}, false
}

func exit(action models.Action, price float64, reason string) models.Decision {
	return models.Decision{
		Action:     action,
		Size:       1,
		Confidence: 1,
		Mode:       modeRisk,
		Reason:     reason,
		Price:      price,
	}
}
