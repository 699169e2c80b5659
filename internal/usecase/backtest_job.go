package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/pkg/logger"
	"RegimeTrader/pkg/queue"
)

const BacktestJobType = "backtest.run"

// BacktestJobPayload is a queued backtest. Queued runs always read bars from
// the configured data source.
type BacktestJobPayload struct {
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	InitialCash float64   `json:"initial_cash,omitempty"`
	Commission  *float64  `json:"commission,omitempty"`
	Journal     bool      `json:"journal"`
	Publish     bool      `json:"publish"`
}

func (p BacktestJobPayload) input() BacktestInput {
	return BacktestInput{
		Symbol:      p.Symbol,
		Strategy:    p.Strategy,
		From:        p.From,
		To:          p.To,
		InitialCash: p.InitialCash,
		Commission:  p.Commission,
		Journal:     p.Journal,
		Publish:     p.Publish,
	}
}

// BacktestJob runs queued backtests; results land in the run registry and,
// when requested, the trade journal.
type BacktestJob struct {
	uc  *BacktestUseCase
	log *logger.Logger
}

func NewBacktestJob(uc *BacktestUseCase, log *logger.Logger) *BacktestJob {
	if log == nil {
		log = logger.Nop()
	}
	return &BacktestJob{uc: uc, log: log}
}

var _ queue.Job = (*BacktestJob)(nil)

func (j *BacktestJob) Name() string { return "backtest" }
func (j *BacktestJob) Type() string { return BacktestJobType }

func (j *BacktestJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.Decode[BacktestJobPayload](payload)
	if err != nil {
		return err
	}
	res, err := j.uc.Run(ctx, p.input())
	if err != nil {
		if permanentBacktestError(err) {
			return queue.Permanent(err)
		}
		return err
	}
	j.log.Info("queued backtest finished",
		logger.String("run_id", res.RunID),
		logger.String("symbol", res.Symbol),
		logger.Float64("return_pct", res.Report.TotalReturnPct),
	)
	return nil
}

// permanentBacktestError reports errors that a retry cannot fix.
func permanentBacktestError(err error) bool {
	return errors.Is(err, ErrUnknownStrategy) ||
		errors.Is(err, ErrNoBars) ||
		errors.Is(err, models.ErrInvalidInput) ||
		errors.Is(err, models.ErrInvalidBar) ||
		errors.Is(err, models.ErrLookAhead)
}

// SubmitBacktest queues a backtest and returns the job id.
func SubmitBacktest(ctx context.Context, q queue.Enqueuer, p BacktestJobPayload) (string, error) {
	return q.Enqueue(ctx, BacktestJobType, p)
}
