package repository

import (
	"context"
	"time"

	"RegimeTrader/internal/domain/models"
)

// BarSource returns bars in ascending time order.
type BarSource interface {
	Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

type BarStore interface {
	BarSource
	StoreBars(ctx context.Context, bars []models.Bar) error
	Close() error
}

type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type FillPublisher interface {
	Publish(ctx context.Context, f models.Fill) error
	PublishBatch(ctx context.Context, fills []models.Fill) error
	Close() error
}

type TradeJournal interface {
	RecordFill(ctx context.Context, f models.Fill) error
	RecordTrades(ctx context.Context, trades []models.TradeRecord) error
	RecordEquity(ctx context.Context, runID, symbol string, points []models.EquityPoint) error
	Close() error
}

type RunRepository interface {
	SaveRun(ctx context.Context, run models.RunSummary) error
	ListRuns(ctx context.Context, symbol string, limit int) ([]models.RunSummary, error)
	Close() error
}

type Metrics interface {
	RecordBar(symbol string)
	RecordDecision(strategy, action string)
	RecordFill(symbol, side string)
	RecordStop(kind string)
	RecordEquity(symbol string, equity float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
