package usecase

import (
	"context"
	"fmt"
	"time"

	"RegimeTrader/internal/domain/models"
	drepo "RegimeTrader/internal/domain/repository"
)

// Backend names for backend.type.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// FillProcessor routes live fills and closed trades to the configured backend.
type FillProcessor struct {
	pub     drepo.FillPublisher
	journal drepo.TradeJournal
	metrics drepo.Metrics
	backend string
}

// NewFillProcessor creates a new FillProcessor instance.
func NewFillProcessor(
	pub drepo.FillPublisher,
	journal drepo.TradeJournal,
	metrics drepo.Metrics,
	backend string,
) *FillProcessor {
	if backend == "" {
		backend = BackendNone
	}
	return &FillProcessor{
		pub:     pub,
		journal: journal,
		metrics: metrics,
		backend: backend,
	}
}

func (p *FillProcessor) Backend() string { return p.backend }

// Process routes a single fill to the configured backend.
func (p *FillProcessor) Process(ctx context.Context, f models.Fill) error {
	return p.ProcessBatch(ctx, []models.Fill{f})
}

// ProcessBatch routes fills in one call to the backend.
func (p *FillProcessor) ProcessBatch(ctx context.Context, fills []models.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendNone:
		return nil
	case BackendKafka:
		if p.pub == nil {
			err = fmt.Errorf("kafka backend without publisher")
			break
		}
		if len(fills) == 1 {
			err = p.pub.Publish(ctx, fills[0])
		} else {
			err = p.pub.PublishBatch(ctx, fills)
		}
	case BackendClickHouse:
		if p.journal == nil {
			err = fmt.Errorf("clickhouse backend without journal")
			break
		}
		for _, f := range fills {
			if err = p.journal.RecordFill(ctx, f); err != nil {
				break
			}
		}
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.recordError("process_fills")
		return fmt.Errorf("process fills: %w", err)
	}
	p.recordLatency("process_fills", start)
	return nil
}

// RecordTrades journals closed trades. Only the clickhouse backend keeps a
// trade journal; the fill stream already carries both legs of every trade.
func (p *FillProcessor) RecordTrades(ctx context.Context, trades []models.TradeRecord) error {
	if len(trades) == 0 || p.backend != BackendClickHouse || p.journal == nil {
		return nil
	}
	start := time.Now()
	if err := p.journal.RecordTrades(ctx, trades); err != nil {
		p.recordError("process_trades")
		return fmt.Errorf("process trades: %w", err)
	}
	p.recordLatency("process_trades", start)
	return nil
}

func (p *FillProcessor) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func (p *FillProcessor) recordLatency(op string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordLatency(op, time.Since(start).Seconds())
	}
}

// Close closes underlying resources if available.
func (p *FillProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.journal != nil {
		_ = p.journal.Close()
	}
}
