package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	drepo "RegimeTrader/internal/domain/repository"
	mid "RegimeTrader/internal/middleware"
	"RegimeTrader/internal/usecase"
	"RegimeTrader/pkg/cache"
	pkgch "RegimeTrader/pkg/clickhouse"
	"RegimeTrader/pkg/config"
	xhttp "RegimeTrader/pkg/http"
	pkgkafka "RegimeTrader/pkg/kafka"
	applogger "RegimeTrader/pkg/logger"
	"RegimeTrader/pkg/queue"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Components is everything the application wires together. Optional
// infrastructure is nil when disabled in config.
type Components struct {
	Config  *config.Config
	Logger  *applogger.Logger
	Metrics drepo.Metrics

	ClickHouse *pkgch.Client
	Producer   *pkgkafka.Producer
	Logs       *applogger.LogCollector
	Postgres   *pgxpool.Pool
	Cache      cache.Service

	Consumer    *pkgkafka.Consumer
	Pipeline    *mid.RealtimePipeline
	BarsHandler *usecase.KafkaBarsHandler
	Collector   *usecase.BarCollector
	Trader      *usecase.PaperTrader
	Fills       *usecase.FillProcessor
	Backtest    *usecase.BacktestUseCase
	Miner       *usecase.Miner
	Jobs        *queue.RedisQueue
	HTTPHandler xhttp.Handler
}

// App encapsulates the entire application lifecycle.
type App struct {
	Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(c Components) *App {
	if c.Logger == nil {
		c.Logger = applogger.Nop()
	}
	return &App{Components: c}
}

// Run starts the HTTP API, the paper trader and the Kafka consumer, then
// blocks until interrupted or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	l := a.Logger

	var handlers []xhttp.Handler
	if a.HTTPHandler != nil {
		handlers = append(handlers, a.HTTPHandler)
	}
	metricsPath := ""
	if a.Config.Metrics.Enabled {
		metricsPath = a.Config.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(handlers,
		xhttp.WithPort(a.Config.Server.Port),
		xhttp.WithTimeouts(a.Config.Server.ReadTimeout, a.Config.Server.WriteTimeout, a.Config.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(a.Config.Server.CORSOrigins),
		xhttp.WithLogger(l),
	)

	if a.Pipeline != nil {
		a.Pipeline.Start(ctx)
	}
	if a.Collector != nil {
		if err := a.Collector.Start(ctx); err != nil {
			l.Error("bar collector error", applogger.Error(err))
		} else {
			l.Info("bar collector started", applogger.Strings("symbols", a.Config.Stream.Symbols))
		}
	}

	if a.Consumer != nil && a.BarsHandler != nil {
		a.Consumer.RegisterHandler(a.BarsHandler)
		if err := a.Consumer.Start(); err != nil {
			l.Error("kafka consumer error", applogger.Error(err))
		} else {
			l.Info("kafka consumer started", applogger.String("topic", a.BarsHandler.Topic()))
		}
	}

	if a.Jobs != nil {
		if err := a.Jobs.Start(); err != nil {
			l.Error("job queue error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("regimetrader serving",
		applogger.String("env", a.Config.Environment),
		applogger.String("backend", a.Config.Backend.Type),
		applogger.String("strategy", a.Config.Strategy.Kind),
	)

	<-ctx.Done()
	l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	l := a.Logger
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Collector != nil {
		if err := a.Collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.Jobs != nil {
		if err := a.Jobs.Stop(ctx); err != nil {
			l.Warn("job queue stop error", applogger.Error(err))
		}
	}
	if a.Pipeline != nil {
		a.Pipeline.Stop()
	}
	if a.Trader != nil {
		_ = a.Trader.Shutdown(ctx)
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	l.Info("shutdown complete")
	return errors.Join(errs...)
}

// Close releases infrastructure clients. It is safe to call on a partially
// wired App.
func (a *App) Close() error {
	var errs []error
	if a.Logs != nil {
		// the final batch needs the producer, so this goes first
		a.Logger.AttachCollector(nil)
		a.Logs.Close()
	}
	if a.Fills != nil {
		// closes the fill publisher, and with it the producer
		a.Fills.Close()
	} else if a.Producer != nil {
		errs = append(errs, a.Producer.Close())
	}
	if a.ClickHouse != nil {
		errs = append(errs, a.ClickHouse.Close())
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	return errors.Join(errs...)
}
