package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	models "RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/usecase"
	xhttp "RegimeTrader/pkg/http"
	xlogger "RegimeTrader/pkg/logger"
	"RegimeTrader/pkg/queue"
	"RegimeTrader/pkg/util"

	"github.com/labstack/echo/v4"
)

// StrategyEchoHandler exposes classification, aggregation, backtests and the
// run registry over HTTP.
type StrategyEchoHandler struct {
	logger   *xlogger.Logger
	signals  *usecase.SignalsUseCase
	backtest *usecase.BacktestUseCase
	trader   *usecase.PaperTrader
	jobs     queue.Enqueuer
}

// NewStrategyEchoHandler wires the handler. trader and jobs may be nil when
// the paper trader or the job queue is not running.
func NewStrategyEchoHandler(
	logger *xlogger.Logger,
	signals *usecase.SignalsUseCase,
	backtest *usecase.BacktestUseCase,
	trader *usecase.PaperTrader,
	jobs queue.Enqueuer,
) *StrategyEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &StrategyEchoHandler{logger: logger, signals: signals, backtest: backtest, trader: trader, jobs: jobs}
}

var _ xhttp.Handler = (*StrategyEchoHandler)(nil)

func (h *StrategyEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.POST("/regime/classify", h.Classify)
	g.POST("/swarm/aggregate", h.Aggregate)
	g.POST("/backtest", h.Backtest)
	g.POST("/backtest/jobs", h.SubmitBacktest)
	g.GET("/runs", h.Runs)
	g.GET("/paper", h.Paper)
}

func (h *StrategyEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *StrategyEchoHandler) Classify(c echo.Context) error {
	req := &models.ClassifyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.signals.Classify(c.Request().Context(), req.Scores)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StrategyEchoHandler) Aggregate(c echo.Context) error {
	req := &models.AggregateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	votes := make([]models.AgentVote, 0, len(req.Votes))
	for _, v := range req.Votes {
		votes = append(votes, models.AgentVote{Agent: v.Agent, Vote: v.Vote, Confidence: v.Confidence})
	}
	return xhttp.SuccessResponse(c, h.signals.Aggregate(c.Request().Context(), votes))
}

func (h *StrategyEchoHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	in, err := backtestInput(req)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	if len(req.Bars) > 0 {
		bars, err := barsFromInput(req.Symbol, req.Bars, h.backtest.AsOfPolicy())
		if err != nil {
			return xhttp.AppErrorResponse(c, h.appError(err))
		}
		in.Bars = bars
	}

	res, err := h.backtest.Run(c.Request().Context(), in)
	if err != nil {
		h.logger.Error("backtest usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// SubmitBacktest queues a backtest over the configured data source. The run
// shows up in /api/runs once a worker finishes it.
func (h *StrategyEchoHandler) SubmitBacktest(c echo.Context) error {
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(xhttp.CodeQueueUnavailable, "job queue is not enabled"))
	}
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.Bars) > 0 {
		return xhttp.AppErrorResponse(c, xhttp.InvalidField(xhttp.CodeBarsNotAllowed, "bars", "queued backtests read bars from the data source"))
	}
	in, err := backtestInput(req)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}

	id, err := usecase.SubmitBacktest(c.Request().Context(), h.jobs, usecase.BacktestJobPayload{
		Symbol:      in.Symbol,
		Strategy:    in.Strategy,
		From:        in.From,
		To:          in.To,
		InitialCash: in.InitialCash,
		Commission:  in.Commission,
		Journal:     in.Journal,
	})
	if err != nil {
		h.logger.Error("submit backtest error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"job_id": id, "type": usecase.BacktestJobType})
}

func backtestInput(req *models.BacktestRequest) (usecase.BacktestInput, error) {
	in := usecase.BacktestInput{
		Symbol:      req.Symbol,
		Strategy:    req.Strategy,
		InitialCash: req.InitialCash,
		Commission:  req.Commission,
		Journal:     req.Journal,
	}
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			return in, xhttp.InvalidField(xhttp.CodeInvalidTime, "from", "from is not a valid time")
		}
		in.From = t
	}
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return in, xhttp.InvalidField(xhttp.CodeInvalidTime, "to", "to is not a valid time")
		}
		in.To = t
	}
	return in, nil
}

func (h *StrategyEchoHandler) Runs(c echo.Context) error {
	req := &models.RunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runs, err := h.backtest.ListRuns(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("runs usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}

func (h *StrategyEchoHandler) Paper(c echo.Context) error {
	if h.trader == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(xhttp.CodeNotFound, "paper trader is not running"))
	}
	snap := h.trader.Snapshot()
	return xhttp.ListResponse(c, snap, int64(len(snap)))
}

// badRequestCodes maps use case sentinels onto 400 error codes.
var badRequestCodes = []struct {
	err  error
	code string
}{
	{models.ErrLookAhead, xhttp.CodeLookAhead},
	{models.ErrInvalidBar, xhttp.CodeInvalidBar},
	{usecase.ErrOutOfOrder, xhttp.CodeOutOfOrder},
	{usecase.ErrUnknownStrategy, xhttp.CodeUnknownStrategy},
	{models.ErrInvalidInput, xhttp.CodeBadRequest},
}

// appError maps use case errors onto HTTP errors.
func (h *StrategyEchoHandler) appError(err error) error {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, m := range badRequestCodes {
		if errors.Is(err, m.err) {
			return xhttp.NewAppError(m.code, "", err.Error(), http.StatusBadRequest).WithError(err)
		}
	}
	switch {
	case errors.Is(err, queue.ErrNotRunning):
		return xhttp.NewAppError(xhttp.CodeQueueUnavailable, "", "job queue is not running", http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, usecase.ErrNoBars):
		return xhttp.NotFoundError(xhttp.CodeNoBars, err.Error()).WithError(err)
	}
	return xhttp.InternalError("internal error").WithError(err)
}

// barsFromInput converts request bars and applies the look-ahead rule.
func barsFromInput(symbol string, in []models.BarInput, policy models.AsOfPolicy) ([]models.Bar, error) {
	out := make([]models.Bar, 0, len(in))
	for i, b := range in {
		ts, ok := util.ParseTime(b.Time)
		if !ok {
			return nil, xhttp.InvalidField(xhttp.CodeInvalidTime, fmt.Sprintf("bars[%d].time", i), "time is not a valid time")
		}
		bar := models.Bar{
			Symbol: symbol, Time: ts,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
			RegimeScore: b.RegimeScore, SentimentScore: b.SentimentScore,
			VIX: math.NaN(),
		}
		if b.VIX != nil {
			bar.VIX = *b.VIX
		}
		if b.SignalsAsOf != "" {
			asOf, ok := util.ParseTime(b.SignalsAsOf)
			if !ok {
				return nil, xhttp.InvalidField(xhttp.CodeInvalidTime, fmt.Sprintf("bars[%d].signals_as_of", i), "signals_as_of is not a valid time")
			}
			bar.SignalsAsOf = asOf
		}
		var prev time.Time
		if i > 0 {
			prev = out[i-1].Time
		}
		if _, err := policy.Apply(&bar, prev); err != nil {
			return nil, fmt.Errorf("bars[%d]: %w", i, err)
		}
		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("bars[%d]: %w", i, err)
		}
		out = append(out, bar)
	}
	return out, nil
}
