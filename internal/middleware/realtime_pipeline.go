package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"RegimeTrader/internal/domain/models"
	domrepo "RegimeTrader/internal/domain/repository"

	"golang.org/x/time/rate"
)

// Proc is the minimal processor interface the pipeline needs. Process must be
// idempotent per bar: a buffered bar is delivered again after a failure.
type Proc interface {
	Process(ctx context.Context, b *models.Bar) error
}

// RealtimePipeline sits between the bar stream and the paper trader.
// It validates, throttles per symbol, and buffers bars while downstream fails.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.Bar
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	limits  map[string]*rate.Limiter
	// optional format transform hook
	transform func(*models.Bar) *models.Bar
	retryable func(error) bool
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max bars per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a transformation hook applied before validation.
func WithTransform(fn func(*models.Bar) *models.Bar) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// WithRetryable decides which downstream errors are worth buffering.
func WithRetryable(fn func(error) bool) PipelineOption {
	return func(p *RealtimePipeline) {
		if fn != nil {
			p.retryable = fn
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:      proc,
		metrics:   metrics,
		maxRPS:    20,
		bufSize:   1000,
		stopCh:    make(chan struct{}),
		limits:    make(map[string]*rate.Limiter),
		retryable: func(err error) bool { return !errors.Is(err, models.ErrInvalidBar) },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Bar, p.bufSize)
	return p
}

// Start launches background flushing of buffered bars.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case b := <-p.bufCh:
				if b == nil {
					continue
				}
				if err := p.proc.Process(ctx, b); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.recordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					p.enqueue(b, "pipeline_buffer_drop")
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Buffered returns the number of bars waiting for a retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles, and forwards a bar downstream, buffering on
// retryable errors.
func (p *RealtimePipeline) Process(ctx context.Context, b *models.Bar) error {
	start := time.Now()
	if p.transform != nil && b != nil {
		b = p.transform(b)
	}
	if err := validateBar(b); err != nil {
		p.recordError("pipeline_validate")
		return err
	}
	if !p.allow(b.Symbol) {
		p.recordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, b); err != nil {
		p.recordError("pipeline_process")
		if p.retryable(err) {
			p.enqueue(b, "pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	}
	return nil
}

func (p *RealtimePipeline) enqueue(b *models.Bar, dropKind string) {
	select {
	case p.bufCh <- b:
		if p.metrics != nil {
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		}
	default:
		p.recordError(dropKind)
	}
}

func (p *RealtimePipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func validateBar(b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("%w: bar nil", models.ErrInvalidBar)
	}
	if b.Symbol == "" {
		return fmt.Errorf("%w: symbol empty", models.ErrInvalidBar)
	}
	return b.Validate()
}

func (p *RealtimePipeline) allow(symbol string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	lim, ok := p.limits[symbol]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(p.maxRPS), p.maxRPS)
		p.limits[symbol] = lim
	}
	p.mu.Unlock()
	return lim.Allow()
}
