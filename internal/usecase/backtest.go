package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"RegimeTrader/internal/domain/models"
	drepo "RegimeTrader/internal/domain/repository"
	"RegimeTrader/internal/services/performance"
	"RegimeTrader/internal/services/strategy"
	"RegimeTrader/internal/services/swarm"
	"RegimeTrader/pkg/config"
	"RegimeTrader/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNoBars          = errors.New("no bars to run")
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// NewStrategy builds the configured strategy kind ("adaptive" or "swarm").
func NewStrategy(cfg *config.Config, kind string, opts ...strategy.Option) (strategy.Strategy, error) {
	if kind == "" {
		kind = cfg.Strategy.Kind
	}
	switch strings.ToLower(kind) {
	case strategy.NameAdaptive:
		return strategy.NewAdaptive(strategy.ParamsFromConfig(cfg.Strategy), opts...)
	case strategy.NameTrend:
		return strategy.NewTrend(strategy.ParamsFromConfig(cfg.Strategy), opts...)
	case swarm.NameSwarm:
		return swarm.NewStrategy(swarm.ParamsFromConfig(cfg.Swarm, cfg.Strategy), swarm.AggregatorFromConfig(cfg.Swarm), opts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
}

// BacktestInput describes one run. Bars, when set, replace the bar source.
type BacktestInput struct {
	Symbol      string
	From, To    time.Time
	Strategy    string
	Bars        []models.Bar
	InitialCash float64
	// Commission nil uses backtest.commission; zero is a commission-free run.
	Commission *float64
	Journal    bool
	Publish    bool
}

type BacktestResult struct {
	RunID    string                   `json:"run_id"`
	Symbol   string                   `json:"symbol"`
	Strategy string                   `json:"strategy"`
	Bars     int                      `json:"bars"`
	From     time.Time                `json:"from"`
	To       time.Time                `json:"to"`
	Fills    []models.Fill            `json:"fills"`
	Trades   []models.TradeRecord     `json:"trades"`
	Equity   []models.EquityPoint     `json:"equity"`
	Report   models.PerformanceReport `json:"report"`
}

// Summary is the registry view of the run.
func (r *BacktestResult) Summary(createdAt time.Time) models.RunSummary {
	return models.RunSummary{
		ID:        r.RunID,
		Symbol:    r.Symbol,
		Strategy:  r.Strategy,
		From:      r.From,
		To:        r.To,
		Bars:      r.Bars,
		CreatedAt: createdAt,
		Report:    r.Report,
	}
}

// BacktestUseCase runs strategies over historical bars and fans the results
// out to the optional journal, fill stream and run registry.
type BacktestUseCase struct {
	cfg     *config.Config
	source  drepo.BarSource
	journal drepo.TradeJournal
	pub     drepo.FillPublisher
	runs    drepo.RunRepository
	metrics drepo.Metrics
	calc    *performance.Calculator
	log     *logger.Logger
}

func NewBacktestUseCase(
	cfg *config.Config,
	source drepo.BarSource,
	journal drepo.TradeJournal,
	pub drepo.FillPublisher,
	runs drepo.RunRepository,
	metrics drepo.Metrics,
	log *logger.Logger,
) *BacktestUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &BacktestUseCase{
		cfg:     cfg,
		source:  source,
		journal: journal,
		pub:     pub,
		runs:    runs,
		metrics: metrics,
		calc: performance.NewCalculator(
			performance.WithRiskFreeRate(cfg.Backtest.RiskFreeRate),
			performance.WithPeriodsPerYear(cfg.Backtest.PeriodsPerYear),
		),
		log: log,
	}
}

// AsOfPolicy is the look-ahead rule bars must satisfy before a run.
func (uc *BacktestUseCase) AsOfPolicy() models.AsOfPolicy { return asOfPolicy(uc.cfg) }

func (uc *BacktestUseCase) Run(ctx context.Context, in BacktestInput) (*BacktestResult, error) {
	start := time.Now()
	if in.Symbol == "" {
		in.Symbol = uc.cfg.Data.Symbol
	}
	if in.InitialCash <= 0 {
		in.InitialCash = uc.cfg.Backtest.InitialCash
	}
	if in.Commission == nil {
		c := uc.cfg.Backtest.Commission
		in.Commission = &c
	}

	bars := in.Bars
	if len(bars) == 0 {
		if uc.source == nil {
			return nil, fmt.Errorf("backtest %s: %w", in.Symbol, ErrNoBars)
		}
		var err error
		bars, err = uc.source.Bars(ctx, in.Symbol, in.From, in.To)
		if err != nil {
			uc.recordError("load_bars")
			return nil, fmt.Errorf("load bars: %w", err)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("backtest %s: %w", in.Symbol, ErrNoBars)
	}

	runID := uuid.NewString()
	log := uc.log.With(logger.String("run_id", runID))
	strat, err := NewStrategy(uc.cfg, in.Strategy, strategy.WithLogger(log), strategy.WithMetrics(uc.metrics))
	if err != nil {
		return nil, err
	}

	res, err := uc.execute(ctx, strat, runID, in, bars, log)
	if err != nil {
		return nil, err
	}
	uc.fanOut(ctx, in, res, log)

	if uc.metrics != nil {
		uc.metrics.RecordLatency("backtest", time.Since(start).Seconds())
	}
	log.Info("backtest finished",
		logger.String("symbol", res.Symbol),
		logger.String("strategy", res.Strategy),
		logger.Int("bars", res.Bars),
		logger.Int("trades", res.Report.Trades),
		logger.Float64("return_pct", res.Report.TotalReturnPct),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (uc *BacktestUseCase) execute(ctx context.Context, strat strategy.Strategy, runID string, in BacktestInput, bars []models.Bar, log *logger.Logger) (*BacktestResult, error) {
	sess := NewSession(strat, SessionConfig{
		RunID:           runID,
		Symbol:          in.Symbol,
		InitialCash:     in.InitialCash,
		Commission:      *in.Commission,
		ExclusiveOrders: uc.cfg.Backtest.ExclusiveOrders,
		AsOf:            asOfPolicy(uc.cfg),
		Logger:          log,
		Metrics:         uc.metrics,
	})

	res := &BacktestResult{
		RunID:    runID,
		Symbol:   in.Symbol,
		Strategy: strat.Name(),
		Bars:     len(bars),
		From:     bars[0].Time,
		To:       bars[len(bars)-1].Time,
		Equity:   make([]models.EquityPoint, 0, len(bars)),
	}
	for i, b := range bars {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		step, err := sess.Step(b)
		if err != nil {
			uc.recordError("step")
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		res.Fills = append(res.Fills, step.Fills...)
		res.Trades = append(res.Trades, step.Trades...)
		res.Equity = append(res.Equity, step.Equity)
	}
	final := sess.Finish()
	res.Fills = append(res.Fills, final.Fills...)
	res.Trades = append(res.Trades, final.Trades...)
	res.Equity[len(res.Equity)-1] = final.Equity

	res.Report = uc.calc.Report(in.InitialCash, res.Equity, res.Trades, bars[0].Close, bars[len(bars)-1].Close)
	return res, nil
}

// fanOut writes results to the optional sinks. Sink failures are logged and
// counted, never fatal to a finished run.
func (uc *BacktestUseCase) fanOut(ctx context.Context, in BacktestInput, res *BacktestResult, log *logger.Logger) {
	journal := (in.Journal || uc.cfg.Backtest.Journal) && uc.journal != nil
	publish := (in.Publish || uc.cfg.Backtest.Publish) && uc.pub != nil

	if publish && len(res.Fills) > 0 {
		if err := uc.pub.PublishBatch(ctx, res.Fills); err != nil {
			uc.recordError("publish_fills")
			log.Error("publish fills failed", logger.Error(err))
		}
	}
	if journal {
		for _, f := range res.Fills {
			if err := uc.journal.RecordFill(ctx, f); err != nil {
				uc.recordError("journal_fill")
				log.Error("journal fill failed", logger.Error(err))
				break
			}
		}
		if err := uc.journal.RecordTrades(ctx, res.Trades); err != nil {
			uc.recordError("journal_trades")
			log.Error("journal trades failed", logger.Error(err))
		}
		if err := uc.journal.RecordEquity(ctx, res.RunID, res.Symbol, res.Equity); err != nil {
			uc.recordError("journal_equity")
			log.Error("journal equity failed", logger.Error(err))
		}
	}
	if uc.runs != nil {
		if err := uc.runs.SaveRun(ctx, res.Summary(time.Now().UTC())); err != nil {
			uc.recordError("save_run")
			log.Error("save run failed", logger.Error(err))
		}
	}
}

// ListRuns reads the run registry.
func (uc *BacktestUseCase) ListRuns(ctx context.Context, symbol string, limit int) ([]models.RunSummary, error) {
	if uc.runs == nil {
		return []models.RunSummary{}, nil
	}
	return uc.runs.ListRuns(ctx, symbol, limit)
}

func (uc *BacktestUseCase) recordError(kind string) {
	if uc.metrics != nil {
		uc.metrics.RecordError(kind)
	}
}
