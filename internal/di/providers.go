package di

import (
	"context"
	"fmt"
	"time"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/domain/repository"
	dsvc "RegimeTrader/internal/domain/service"
	"RegimeTrader/internal/handler/api"
	mid "RegimeTrader/internal/middleware"
	internalrepo "RegimeTrader/internal/repository"
	"RegimeTrader/internal/service/barstream"
	"RegimeTrader/internal/services/marketdata"
	"RegimeTrader/internal/services/scoring"
	"RegimeTrader/internal/usecase"
	"RegimeTrader/pkg/cache"
	pkgch "RegimeTrader/pkg/clickhouse"
	"RegimeTrader/pkg/config"
	xhttp "RegimeTrader/pkg/http"
	pkgkafka "RegimeTrader/pkg/kafka"
	"RegimeTrader/pkg/logger"
	"RegimeTrader/pkg/metrics"
	"RegimeTrader/pkg/postgres"
	"RegimeTrader/pkg/queue"
	"RegimeTrader/pkg/server"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and its schema, or nil
// when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *logger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:         ch.Host,
		Port:         ch.Port,
		Database:     ch.Database,
		User:         ch.User,
		Password:     ch.Password,
		UseHTTP:      ch.UseHTTP,
		AsyncInsert:  ch.AsyncInsert,
		WaitForAsync: ch.WaitForAsync,
		DialTimeout:  ch.DialTimeout,
		ReadTimeout:  ch.ReadTimeout,
		MaxExecTime:  ch.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", logger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogCollector ships aggregated warn and error lines to the logs
// topic when Kafka is the backend. It returns nil otherwise.
func ProvideLogCollector(cfg *config.Config, l *logger.Logger, producer *pkgkafka.Producer) *logger.LogCollector {
	if cfg.Backend.Type != "kafka" || producer == nil || cfg.Kafka.LogsTopic == "" {
		return nil
	}
	c := logger.NewLogCollector(logger.CollectorConfig{
		Interval:  cfg.Log.CollectInterval,
		Threshold: cfg.Log.CollectThreshold,
		Topic:     cfg.Kafka.LogsTopic,
		Source:    "regimetrader",
		Publisher: producer,
		Timeout:   cfg.Kafka.Producer.WriteTimeout,
	})
	l.AttachCollector(c)
	l.Info("log collector attached", logger.String("topic", cfg.Kafka.LogsTopic))
	return c
}

// ProvideKafkaConsumer creates the bars consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvidePostgresPool opens the run registry pool when enabled.
func ProvidePostgresPool(cfg *config.Config) (*pgxpool.Pool, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	pc := postgres.DefaultPoolConfig()
	pc.MaxConns = cfg.Postgres.MaxConns
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return postgres.NewPool(ctx, cfg.Postgres.DSN, pc)
}

// ProvideRedisCache connects to Redis when enabled.
func ProvideRedisCache(cfg *config.Config, l *logger.Logger) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis ready", logger.String("host", cfg.Redis.Host), logger.Int("port", cfg.Redis.Port))
	return rc, nil
}

// ProvideCache returns Redis behind an in-process L1, or a memory cache
// without Redis.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryDefaultTTL(cfg.LLM.CacheTTL))
	}
	return cache.NewLayeredCache(rc)
}

// ProvideJobQueue creates the backtest job queue on the Redis connection.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, backtest *usecase.BacktestUseCase, l *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Queue.Prefix))
	q.RegisterJob(usecase.NewBacktestJob(backtest, l))
	return q
}

// ProvideFillPublisher publishes fills to Kafka when a producer exists.
func ProvideFillPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.FillPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaFillPublisher(producer, cfg.Kafka.FillsTopic)
}

// ProvideTradeJournal journals fills, trades and equity in ClickHouse.
func ProvideTradeJournal(ch *pkgch.Client, l *logger.Logger) repository.TradeJournal {
	if ch == nil {
		return nil
	}
	j := internalrepo.NewCHJournal(ch)
	j.SetLogger(l)
	return j
}

// ProvideAsOfPolicy is the look-ahead rule shared by every bar source.
func ProvideAsOfPolicy(cfg *config.Config) models.AsOfPolicy {
	return models.AsOfPolicy{Period: cfg.Data.BarPeriod, Strict: cfg.Data.StrictAsOf}
}

// ProvideBarStore keeps bars in ClickHouse.
func ProvideBarStore(ch *pkgch.Client, policy models.AsOfPolicy, l *logger.Logger) repository.BarStore {
	if ch == nil {
		return nil
	}
	s := internalrepo.NewCHBarStore(ch)
	s.SetAsOfPolicy(policy)
	s.SetLogger(l)
	return s
}

// ProvideBarSource reads historical bars from the configured data source.
func ProvideBarSource(cfg *config.Config, store repository.BarStore, l *logger.Logger) repository.BarSource {
	if cfg.Data.Source == "clickhouse" && store != nil {
		return store
	}
	return internalrepo.NewCSVBarSource(cfg.Data.CSVPath,
		internalrepo.WithBarPeriod(cfg.Data.BarPeriod),
		internalrepo.WithStrictAsOf(cfg.Data.StrictAsOf),
		internalrepo.WithCSVLogger(l),
	)
}

// ProvideRunRepository migrates and returns the Postgres run registry.
func ProvideRunRepository(pool *pgxpool.Pool) (repository.RunRepository, error) {
	if pool == nil {
		return nil, nil
	}
	repo := internalrepo.NewPGRunRepository(pool)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// ProvideMarketData fetches daily history from Yahoo Finance.
func ProvideMarketData(cfg *config.Config, l *logger.Logger) dsvc.MarketData {
	return marketdata.NewYahooClient(cfg.Yahoo.BaseURL, cfg.Yahoo.Timeout, cfg.Yahoo.RPS, l)
}

// ProvideRegimeScorer chains the LLM scorer behind the score cache and the
// rule-based fallback. Without an API key only the rule is used.
func ProvideRegimeScorer(cfg *config.Config, c cache.Service, l *logger.Logger) dsvc.RegimeScorer {
	if cfg.LLM.APIKey == "" {
		l.Warn("no LLM api key configured, regime scores come from the weekly change rule")
		return scoring.NewFallbackScorer(nil, l)
	}
	llm := scoring.NewDeepSeekScorer(cfg.LLM, l)
	cached := scoring.NewCachedScorer(llm, c, llm.Model(), cfg.LLM.CacheTTL, l)
	return scoring.NewFallbackScorer(cached, l)
}

// ProvideMiner creates the data miner use case.
func ProvideMiner(md dsvc.MarketData, scorer dsvc.RegimeScorer, store repository.BarStore, m repository.Metrics, l *logger.Logger) *usecase.Miner {
	return usecase.NewMiner(md, scorer, store, m, l)
}

// ProvideBacktestUseCase creates the backtest use case.
func ProvideBacktestUseCase(
	cfg *config.Config,
	source repository.BarSource,
	journal repository.TradeJournal,
	pub repository.FillPublisher,
	runs repository.RunRepository,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.BacktestUseCase {
	return usecase.NewBacktestUseCase(cfg, source, journal, pub, runs, m, l)
}

// ProvideSignalsUseCase creates the stateless signals use case.
func ProvideSignalsUseCase(cfg *config.Config, l *logger.Logger) *usecase.SignalsUseCase {
	return usecase.NewSignalsUseCase(cfg, l)
}

// ProvideFillProcessor routes live fills by backend.type.
func ProvideFillProcessor(pub repository.FillPublisher, journal repository.TradeJournal, m repository.Metrics, cfg *config.Config) *usecase.FillProcessor {
	return usecase.NewFillProcessor(pub, journal, m, cfg.Backend.Type)
}

// ProvidePaperTrader creates the live paper trader.
func ProvidePaperTrader(cfg *config.Config, fills *usecase.FillProcessor, m repository.Metrics, l *logger.Logger) *usecase.PaperTrader {
	return usecase.NewPaperTrader(cfg, fills, m, l)
}

// ProvidePipeline builds the realtime pipeline in front of the paper trader.
func ProvidePipeline(trader *usecase.PaperTrader, m repository.Metrics, cfg *config.Config) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(trader, m,
		mid.WithMaxRPS(cfg.Stream.MaxRPS),
		mid.WithBufferSize(cfg.Stream.BufferSize),
	)
}

// ProvideBarStream creates the websocket bar stream when enabled.
func ProvideBarStream(cfg *config.Config, policy models.AsOfPolicy, l *logger.Logger) repository.BarStream {
	if !cfg.Stream.Enabled {
		return nil
	}
	c := barstream.New(
		cfg.Stream.URL,
		cfg.Stream.Symbols,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
		l,
	)
	c.SetAsOfPolicy(policy)
	return c
}

// ProvideBarCollector feeds streamed bars to the paper trader.
func ProvideBarCollector(
	stream repository.BarStream,
	trader *usecase.PaperTrader,
	m repository.Metrics,
	pipe *mid.RealtimePipeline,
	l *logger.Logger,
) *usecase.BarCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewBarCollector(stream, trader, m, pipe, l)
}

// ProvideKafkaBarsHandler handles the bars topic: bars are stored when a bar
// store exists and always traded through the pipeline.
func ProvideKafkaBarsHandler(cfg *config.Config, policy models.AsOfPolicy, store repository.BarStore, pipe *mid.RealtimePipeline, m repository.Metrics) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, policy, store, pipe, m)
}

// ProvideHTTPHandler creates the strategy API handler.
func ProvideHTTPHandler(
	l *logger.Logger,
	signals *usecase.SignalsUseCase,
	backtest *usecase.BacktestUseCase,
	trader *usecase.PaperTrader,
	jobs *queue.RedisQueue,
) xhttp.Handler {
	var enq queue.Enqueuer
	if jobs != nil {
		enq = jobs
	}
	return api.NewStrategyEchoHandler(l, signals, backtest, trader, enq)
}

// ProvideApp creates the application from its wired components.
func ProvideApp(c server.Components) *server.App {
	return server.New(c)
}
