package usecase

import (
	"errors"
	"fmt"
	"time"

	"RegimeTrader/internal/domain/models"
	drepo "RegimeTrader/internal/domain/repository"
	"RegimeTrader/internal/services/strategy"
	"RegimeTrader/pkg/config"
	"RegimeTrader/pkg/logger"
)

var ErrOutOfOrder = errors.New("bar out of order")

type SessionConfig struct {
	RunID           string
	Symbol          string
	InitialCash     float64
	Commission      float64
	ExclusiveOrders bool
	// AsOf is checked on every bar; sources apply it first, so this only
	// catches bars that bypassed them.
	AsOf    models.AsOfPolicy
	Logger  *logger.Logger
	Metrics drepo.Metrics
}

// StepResult is everything that happened on one bar.
type StepResult struct {
	Decision models.Decision
	Fills    []models.Fill
	Trades   []models.TradeRecord
	Equity   models.EquityPoint
}

// Session drives one strategy over one symbol, bar by bar. It is not safe
// for concurrent use; backtests and the paper trader each own their session.
type Session struct {
	cfg    SessionConfig
	strat  strategy.Strategy
	broker *Broker
	log    *logger.Logger

	bars int
	last models.Bar
}

// asOfPolicy is the configured look-ahead rule.
func asOfPolicy(cfg *config.Config) models.AsOfPolicy {
	return models.AsOfPolicy{Period: cfg.Data.BarPeriod, Strict: cfg.Data.StrictAsOf}
}

func NewSession(strat strategy.Strategy, cfg SessionConfig) *Session {
	l := cfg.Logger
	if l == nil {
		l = logger.Nop()
	}
	return &Session{
		cfg:    cfg,
		strat:  strat,
		broker: NewBroker(cfg.RunID, cfg.Symbol, cfg.InitialCash, cfg.Commission),
		log:    l.With(logger.String("run_id", cfg.RunID), logger.String("symbol", cfg.Symbol)),
	}
}

func (s *Session) Broker() *Broker { return s.broker }

func (s *Session) Bars() int { return s.bars }

// Step feeds one bar. Strategy errors never fail a step; an invalid,
// out-of-order or look-ahead bar does.
func (s *Session) Step(bar models.Bar) (StepResult, error) {
	if err := bar.Validate(); err != nil {
		return StepResult{}, err
	}
	if s.bars > 0 && !bar.Time.After(s.last.Time) {
		return StepResult{}, fmt.Errorf("%w: %s not after %s", ErrOutOfOrder, bar.Time.Format(time.RFC3339), s.last.Time.Format(time.RFC3339))
	}
	var prev time.Time
	if s.bars > 0 {
		prev = s.last.Time
	}
	if _, err := s.cfg.AsOf.Apply(&bar, prev); err != nil {
		return StepResult{}, err
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordBar(s.cfg.Symbol)
	}

	d, err := s.strat.OnBar(bar, s.broker.Position())
	if err != nil {
		d.Action = models.ActionHold
	}
	res := StepResult{Decision: d}
	s.execute(d, bar, s.bars, &res)

	s.last = bar
	s.bars++
	res.Equity = s.mark(bar)
	return res, nil
}

// Finish closes any open position at the last close.
func (s *Session) Finish() StepResult {
	var res StepResult
	if s.bars == 0 {
		return res
	}
	if s.broker.Position().IsOpen() {
		s.close(s.last.Close, s.last.Time, s.bars-1, models.ReasonEndOfData, &res)
	}
	res.Equity = s.mark(s.last)
	return res
}

func (s *Session) mark(bar models.Bar) models.EquityPoint {
	p := models.EquityPoint{
		Time:     bar.Time,
		Equity:   s.broker.Equity(bar.Close),
		Cash:     s.broker.Cash(),
		Exposure: s.broker.Exposure(bar.Close),
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordEquity(s.cfg.Symbol, p.Equity)
	}
	return p
}

func (s *Session) execute(d models.Decision, bar models.Bar, idx int, res *StepResult) {
	price := bar.Close
	if d.Price > 0 {
		price = d.Price
	}
	pos := s.broker.Position()

	switch d.Action {
	case models.ActionSell:
		if pos.IsLong() {
			s.close(price, bar.Time, idx, d.Reason, res)
		}
	case models.ActionCover:
		if pos.IsShort() {
			s.close(price, bar.Time, idx, d.Reason, res)
		}
	case models.ActionBuy:
		s.enter(models.Long, price, d, bar.Time, idx, res)
	case models.ActionShort:
		s.enter(models.Short, price, d, bar.Time, idx, res)
	}
}

// enter opens dir. An opposite position is closed first; with exclusive
// orders the new position is then opened on the same bar.
func (s *Session) enter(dir models.Direction, price float64, d models.Decision, at time.Time, idx int, res *StepResult) {
	pos := s.broker.Position()
	if pos.Direction == dir {
		return
	}
	if pos.IsOpen() {
		s.close(price, at, idx, models.ReasonReversal, res)
		if !s.cfg.ExclusiveOrders {
			return
		}
	}
	fill, err := s.broker.Open(dir, price, d.Size, at, idx, d.TakeProfit)
	if err != nil {
		s.log.Warn("entry skipped", logger.String("direction", dir.String()), logger.Error(err))
		return
	}
	s.recordFill(fill)
	res.Fills = append(res.Fills, fill)
}

func (s *Session) close(price float64, at time.Time, idx int, reason string, res *StepResult) {
	fill, trade, err := s.broker.Close(price, at, idx, reason)
	if err != nil {
		s.log.Warn("exit skipped", logger.Error(err))
		return
	}
	s.recordFill(fill)
	res.Fills = append(res.Fills, fill)
	res.Trades = append(res.Trades, trade)
	s.log.Debug("trade closed",
		logger.String("trade_id", trade.ID),
		logger.String("reason", reason),
		logger.Float64("pnl", trade.PnL),
	)
}

func (s *Session) recordFill(f models.Fill) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordFill(f.Symbol, f.Side.String())
	}
}

// Last returns the most recent bar stepped.
func (s *Session) Last() models.Bar { return s.last }
