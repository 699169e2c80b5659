package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"RegimeTrader/internal/domain/models"
	drepo "RegimeTrader/internal/domain/repository"
	"RegimeTrader/internal/services/strategy"
	"RegimeTrader/pkg/config"
	"RegimeTrader/pkg/logger"

	"github.com/google/uuid"
)

const maxPendingFills = 10000

// PaperStatus is the live view of one symbol's session.
type PaperStatus struct {
	Symbol   string          `json:"symbol"`
	RunID    string          `json:"run_id"`
	Bars     int             `json:"bars"`
	LastBar  time.Time       `json:"last_bar"`
	Position models.Position `json:"position"`
	Equity   float64         `json:"equity"`
	Cash     float64         `json:"cash"`
}

// PaperTrader runs one live session per symbol and routes the resulting
// fills through the FillProcessor. Process is idempotent per bar: delivering
// the latest bar again only retries fills that failed to route.
type PaperTrader struct {
	cfg     *config.Config
	fills   *FillProcessor
	metrics drepo.Metrics
	log     *logger.Logger

	mu            sync.Mutex
	sessions      map[string]*Session
	pendingFills  []models.Fill
	pendingTrades []models.TradeRecord
}

func NewPaperTrader(cfg *config.Config, fills *FillProcessor, metrics drepo.Metrics, log *logger.Logger) *PaperTrader {
	if log == nil {
		log = logger.Nop()
	}
	return &PaperTrader{
		cfg:      cfg,
		fills:    fills,
		metrics:  metrics,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

func (t *PaperTrader) session(symbol string) (*Session, error) {
	if s, ok := t.sessions[symbol]; ok {
		return s, nil
	}
	runID := uuid.NewString()
	log := t.log.With(logger.String("run_id", runID), logger.String("mode", "paper"))
	strat, err := NewStrategy(t.cfg, "", strategy.WithLogger(log), strategy.WithMetrics(t.metrics))
	if err != nil {
		return nil, err
	}
	s := NewSession(strat, SessionConfig{
		RunID:           runID,
		Symbol:          symbol,
		InitialCash:     t.cfg.Backtest.InitialCash,
		Commission:      t.cfg.Backtest.Commission,
		ExclusiveOrders: t.cfg.Backtest.ExclusiveOrders,
		AsOf:            asOfPolicy(t.cfg),
		Logger:          log,
		Metrics:         t.metrics,
	})
	t.sessions[symbol] = s
	log.Info("paper session started", logger.String("symbol", symbol), logger.String("strategy", strat.Name()))
	return s, nil
}

// Process steps the symbol's session with b and routes any fills.
func (t *PaperTrader) Process(ctx context.Context, b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("%w: bar nil", models.ErrInvalidBar)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.session(b.Symbol)
	if err != nil {
		return err
	}
	if s.Bars() > 0 {
		last := s.Last().Time
		if b.Time.Equal(last) {
			return t.flush(ctx)
		}
		if b.Time.Before(last) {
			t.recordError("paper_out_of_order")
			t.log.Debug("stale bar dropped", logger.String("symbol", b.Symbol), logger.Time("time", b.Time))
			return nil
		}
	}

	step, err := s.Step(*b)
	if err != nil {
		t.recordError("paper_step")
		return err
	}
	if step.Decision.Action != models.ActionHold {
		t.log.Info("paper decision",
			logger.String("symbol", b.Symbol),
			logger.String("action", step.Decision.Action.String()),
			logger.String("mode", step.Decision.Mode),
			logger.Float64("equity", step.Equity.Equity),
		)
	}
	t.pendingFills = append(t.pendingFills, step.Fills...)
	t.pendingTrades = append(t.pendingTrades, step.Trades...)
	if n := len(t.pendingFills); n > maxPendingFills {
		t.pendingFills = t.pendingFills[n-maxPendingFills:]
		t.recordError("paper_pending_drop")
	}
	return t.flush(ctx)
}

// flush routes pending fills and trades. Caller holds mu.
func (t *PaperTrader) flush(ctx context.Context) error {
	if t.fills == nil {
		t.pendingFills, t.pendingTrades = nil, nil
		return nil
	}
	if len(t.pendingFills) > 0 {
		if err := t.fills.ProcessBatch(ctx, t.pendingFills); err != nil {
			return err
		}
		t.pendingFills = nil
	}
	if len(t.pendingTrades) > 0 {
		if err := t.fills.RecordTrades(ctx, t.pendingTrades); err != nil {
			return err
		}
		t.pendingTrades = nil
	}
	return nil
}

// Snapshot returns the status of every live session ordered by symbol.
func (t *PaperTrader) Snapshot() []PaperStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PaperStatus, 0, len(t.sessions))
	for sym, s := range t.sessions {
		last := s.Last()
		out = append(out, PaperStatus{
			Symbol:   sym,
			RunID:    s.cfg.RunID,
			Bars:     s.Bars(),
			LastBar:  last.Time,
			Position: *s.Broker().Position(),
			Equity:   s.Broker().Equity(last.Close),
			Cash:     s.Broker().Cash(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Pending reports fills still waiting for the backend.
func (t *PaperTrader) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pendingFills)
}

// Shutdown makes a last attempt to route pending fills. Open positions are
// left open; a paper session has no end of data.
func (t *PaperTrader) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.flush(ctx); err != nil {
		t.log.Error("pending fills lost on shutdown", logger.Int("fills", len(t.pendingFills)), logger.Error(err))
		return err
	}
	return nil
}

func (t *PaperTrader) recordError(kind string) {
	if t.metrics != nil {
		t.metrics.RecordError(kind)
	}
}
