package usecase

import (
	"context"

	"RegimeTrader/internal/domain/models"
	drepo "RegimeTrader/internal/domain/repository"
	mid "RegimeTrader/internal/middleware"
	"RegimeTrader/pkg/logger"
)

// BarCollector reads bars from the live stream and hands them to the paper
// trader, through the realtime pipeline when one is configured.
type BarCollector struct {
	stream  drepo.BarStream
	trader  *PaperTrader
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	log     *logger.Logger
}

// NewBarCollector creates a new BarCollector instance.
func NewBarCollector(stream drepo.BarStream, trader *PaperTrader, metrics drepo.Metrics, pipe *mid.RealtimePipeline, log *logger.Logger) *BarCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &BarCollector{stream: stream, trader: trader, metrics: metrics, pipe: pipe, log: log}
}

// IsConnected returns true if the bar stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.run(ctx)
	return nil
}

// run consumes the stream, reconnecting whenever the read loop ends.
func (c *BarCollector) run(ctx context.Context) {
	for {
		barCh, errCh := c.stream.Read(ctx)
		c.consume(ctx, barCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.recordError("stream")
		if err := c.stream.Reconnect(ctx); err != nil {
			c.log.Error("bar stream reconnect failed", logger.Error(err))
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// consume returns when both channels are closed or ctx ends.
func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.Bar, errCh <-chan error) {
	for barCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.log.Warn("bar stream error", logger.Error(err))
		case b, ok := <-barCh:
			if !ok {
				barCh = nil
				continue
			}
			c.Handle(ctx, b)
		}
	}
}

// Handle pushes one bar downstream. Errors are logged; the pipeline keeps
// retryable bars for a later attempt.
func (c *BarCollector) Handle(ctx context.Context, b *models.Bar) {
	var err error
	if c.pipe != nil {
		err = c.pipe.Process(ctx, b)
	} else {
		err = c.trader.Process(ctx, b)
	}
	if err != nil {
		c.log.Warn("bar not processed", logger.String("symbol", b.Symbol), logger.Error(err))
	}
}

// Trader returns the underlying PaperTrader for lifecycle management.
func (c *BarCollector) Trader() *PaperTrader { return c.trader }

// Shutdown stops the pipeline, flushes pending fills and closes the stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	_ = c.trader.Shutdown(ctx)
	return c.stream.Close()
}

func (c *BarCollector) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}
