// Package performance computes the summary statistics of a finished run.
package performance

import (
	"math"

	"RegimeTrader/internal/domain/models"
)

const (
	DefaultRiskFreeRate   = 0.02
	DefaultPeriodsPerYear = 252
)

type Config struct {
	RiskFreeRate   float64
	PeriodsPerYear int
}

type Option func(*Config)

func WithRiskFreeRate(r float64) Option { return func(c *Config) { c.RiskFreeRate = r } }

func WithPeriodsPerYear(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PeriodsPerYear = n
		}
	}
}

type Calculator struct {
	cfg Config
}

func NewCalculator(opts ...Option) *Calculator {
	cfg := Config{RiskFreeRate: DefaultRiskFreeRate, PeriodsPerYear: DefaultPeriodsPerYear}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Calculator{cfg: cfg}
}

// Report derives every metric from the per-bar equity curve and the closed
// trades. initial is the equity before the first bar; zero uses the first
// point of the curve. firstClose and lastClose give the buy-and-hold benchmark. Ratios
// that are undefined (no variance, no drawdown, no losing trade) are 0.
func (c *Calculator) Report(initial float64, equity []models.EquityPoint, trades []models.TradeRecord, firstClose, lastClose float64) models.PerformanceReport {
	var r models.PerformanceReport
	if len(equity) == 0 {
		return r
	}
	values := make([]float64, 0, len(equity)+1)
	if initial > 0 {
		values = append(values, initial)
	}
	exposed := 0
	for _, p := range equity {
		values = append(values, p.Equity)
		if p.Exposure > 0 {
			exposed++
		}
	}

	r.InitialEquity = values[0]
	r.FinalEquity = values[len(values)-1]
	if r.InitialEquity > 0 {
		r.TotalReturnPct = (r.FinalEquity/r.InitialEquity - 1) * 100
	}
	if firstClose > 0 {
		r.BuyHoldReturnPct = (lastClose/firstClose - 1) * 100
	}
	r.ExposurePct = float64(exposed) / float64(len(equity)) * 100

	ppy := float64(c.cfg.PeriodsPerYear)
	rets := Returns(values)
	if n := len(rets); n > 0 && r.InitialEquity > 0 && r.FinalEquity > 0 {
		r.AnnualReturnPct = (math.Pow(r.FinalEquity/r.InitialEquity, ppy/float64(n)) - 1) * 100
	}
	r.AnnualVolPct = stdev(rets) * math.Sqrt(ppy) * 100
	r.Sharpe = Sharpe(rets, c.cfg.RiskFreeRate, c.cfg.PeriodsPerYear)
	r.Sortino = Sortino(rets, c.cfg.RiskFreeRate, c.cfg.PeriodsPerYear)
	r.MaxDrawdownPct, r.MaxDrawdownBars = MaxDrawdown(values)
	if r.MaxDrawdownPct != 0 {
		r.Calmar = math.Abs(r.TotalReturnPct / r.MaxDrawdownPct)
	}

	r.Trades = len(trades)
	var wins, losses int
	var winSum, lossSum, grossProfit, grossLoss float64
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			wins++
			winSum += t.PnLPct
			grossProfit += t.PnL
		case t.PnL < 0:
			losses++
			lossSum += t.PnLPct
			grossLoss -= t.PnL
		}
		if t.ExitReason == models.ReasonStopLoss || t.ExitReason == models.ReasonTrailingStop {
			r.StopExits++
		}
	}
	if r.Trades > 0 {
		r.WinRatePct = float64(wins) / float64(r.Trades) * 100
	}
	if wins > 0 {
		r.AvgWinPct = winSum / float64(wins)
	}
	if losses > 0 {
		r.AvgLossPct = lossSum / float64(losses)
	}
	if grossLoss > 0 {
		r.ProfitFactor = grossProfit / grossLoss
	}
	return r
}

// Returns is the per-period simple return series of an equity curve.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// Sharpe is the annualised mean excess return over its sample deviation.
func Sharpe(returns []float64, rf float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}
	daily := rf / float64(periodsPerYear)
	excess := make([]float64, len(returns))
	for i, v := range returns {
		excess[i] = v - daily
	}
	sd := stdev(excess)
	if sd == 0 {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(float64(periodsPerYear))
}

// Sortino divides by the sample deviation of negative excess returns only.
func Sortino(returns []float64, rf float64, periodsPerYear int) float64 {
	if len(returns) == 0 {
		return 0
	}
	daily := rf / float64(periodsPerYear)
	excess := make([]float64, len(returns))
	var downside []float64
	for i, v := range returns {
		excess[i] = v - daily
		if excess[i] < 0 {
			downside = append(downside, excess[i])
		}
	}
	sd := stdev(downside)
	if sd == 0 {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(float64(periodsPerYear))
}

// MaxDrawdown returns the deepest peak-to-trough loss in percent (negative)
// and the longest run of bars spent below a prior peak.
func MaxDrawdown(values []float64) (float64, int) {
	peak, worst := math.Inf(-1), 0.0
	run, longest := 0, 0
	for _, v := range values {
		if v >= peak {
			peak = v
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
		if peak > 0 {
			if dd := (v - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst * 100, longest
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
