package models

import "time"

// PerformanceReport summarises a finished run.
type PerformanceReport struct {
	InitialEquity    float64 `json:"initial_equity"`
	FinalEquity      float64 `json:"final_equity"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	AnnualReturnPct  float64 `json:"annual_return_pct"`
	BuyHoldReturnPct float64 `json:"buy_hold_return_pct"`
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	AnnualVolPct     float64 `json:"annual_vol_pct"`
	Calmar           float64 `json:"calmar"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	MaxDrawdownBars  int     `json:"max_drawdown_bars"`
	Trades           int     `json:"trades"`
	WinRatePct       float64 `json:"win_rate_pct"`
	AvgWinPct        float64 `json:"avg_win_pct"`
	AvgLossPct       float64 `json:"avg_loss_pct"`
	ProfitFactor     float64 `json:"profit_factor"`
	ExposurePct      float64 `json:"exposure_pct"`
	StopExits        int     `json:"stop_exits"`
}

// RunSummary is what the run registry keeps per backtest.
type RunSummary struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Strategy  string            `json:"strategy"`
	From      time.Time         `json:"from"`
	To        time.Time         `json:"to"`
	Bars      int               `json:"bars"`
	CreatedAt time.Time         `json:"created_at"`
	Report    PerformanceReport `json:"report"`
}
