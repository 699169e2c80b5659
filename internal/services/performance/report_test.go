package performance

import (
	"math"
	"testing"
	"time"

	"RegimeTrader/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func curve(values ...float64) []models.EquityPoint {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.EquityPoint, len(values))
	for i, v := range values {
		out[i] = models.EquityPoint{Time: start.AddDate(0, 0, i), Equity: v, Exposure: 0.5}
	}
	return out
}

func TestMaxDrawdown(t *testing.T) {
	dd, bars := MaxDrawdown([]float64{100, 120, 90, 100, 130, 125})
	assert.InDelta(t, -25.0, dd, 1e-9)
	assert.Equal(t, 2, bars)

	dd, bars = MaxDrawdown([]float64{1, 2, 3})
	assert.Zero(t, dd)
	assert.Zero(t, bars)
}

func TestSharpeAndSortino(t *testing.T) {
	assert.Zero(t, Sharpe([]float64{0.01, 0.01, 0.01}, 0, 252))

	rets := []float64{0.01, -0.02, 0.03, 0.0, -0.01}
	m := 0.002
	sd := math.Sqrt((0.008*0.008 + 0.022*0.022 + 0.028*0.028 + 0.002*0.002 + 0.012*0.012) / 4)
	assert.InDelta(t, m/sd*math.Sqrt(252), Sharpe(rets, 0, 252), 1e-9)

	down := math.Sqrt(((-0.02+0.015)*(-0.02+0.015) + (-0.01+0.015)*(-0.01+0.015)) / 1)
	assert.InDelta(t, m/down*math.Sqrt(252), Sortino(rets, 0, 252), 1e-9)

	assert.Zero(t, Sortino([]float64{0.01, 0.02}, 0, 252))
}

func TestReport(t *testing.T) {
	trades := []models.TradeRecord{
		{PnL: 500, PnLPct: 5, ExitReason: models.ReasonSignal},
		{PnL: -200, PnLPct: -2, ExitReason: models.ReasonStopLoss},
		{PnL: 300, PnLPct: 3, ExitReason: models.ReasonTrailingStop},
	}
	eq := curve(100000, 101000, 99000, 100600)
	eq[0].Exposure = 0

	r := NewCalculator().Report(0, eq, trades, 50, 60)
	assert.Equal(t, 100000.0, r.InitialEquity)
	assert.InDelta(t, 0.6, r.TotalReturnPct, 1e-9)
	assert.InDelta(t, 20.0, r.BuyHoldReturnPct, 1e-9)
	assert.Equal(t, 3, r.Trades)
	assert.InDelta(t, 200.0/3, r.WinRatePct, 1e-9)
	assert.InDelta(t, 4.0, r.AvgWinPct, 1e-9)
	assert.InDelta(t, -2.0, r.AvgLossPct, 1e-9)
	assert.InDelta(t, 4.0, r.ProfitFactor, 1e-9)
	assert.Equal(t, 2, r.StopExits)
	assert.InDelta(t, 75.0, r.ExposurePct, 1e-9)
	require.Less(t, r.MaxDrawdownPct, 0.0)
	assert.InDelta(t, (99000.0/101000-1)*100, r.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, math.Abs(r.TotalReturnPct/r.MaxDrawdownPct), r.Calmar, 1e-9)
	assert.Greater(t, r.AnnualReturnPct, r.TotalReturnPct)

	withInitial := NewCalculator().Report(99000, eq, trades, 50, 60)
	assert.InDelta(t, (100600.0/99000-1)*100, withInitial.TotalReturnPct, 1e-9)
	assert.Equal(t, 99000.0, withInitial.InitialEquity)
}

func TestReportEmpty(t *testing.T) {
	r := NewCalculator(WithRiskFreeRate(0), WithPeriodsPerYear(52)).Report(100, nil, nil, 0, 0)
	assert.Equal(t, models.PerformanceReport{}, r)

	r = NewCalculator().Report(100, curve(100, 100), nil, 1, 1)
	assert.Zero(t, r.ProfitFactor)
	assert.Zero(t, r.Calmar)
	assert.Zero(t, r.WinRatePct)
}
