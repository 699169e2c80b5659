package service

import (
	"context"
	"time"

	"RegimeTrader/internal/domain/models"
)

// RegimeContext is what an external classifier sees for one period.
type RegimeContext struct {
	Symbol    string
	AsOf      time.Time
	VIX       float64
	ChangePct float64
	ATRPct    float64
}

// RegimeScorer turns a period's market context into a score in [-1, 1].
type RegimeScorer interface {
	Score(ctx context.Context, in RegimeContext) (float64, error)
}

// MarketData fetches daily OHLCV history.
type MarketData interface {
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}
