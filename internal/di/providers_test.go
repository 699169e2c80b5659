package di

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/repository"
	"RegimeTrader/pkg/config"
	pkgkafka "RegimeTrader/pkg/kafka"
	"RegimeTrader/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAppWithoutInfrastructure(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Nil(t, app.ClickHouse)
	assert.Nil(t, app.Producer)
	assert.Nil(t, app.Logs)
	assert.Nil(t, app.Postgres)
	assert.Nil(t, app.Consumer)
	assert.Nil(t, app.Collector)
	assert.Nil(t, app.Jobs)
	assert.NotNil(t, app.Cache)
	assert.NotNil(t, app.Trader)
	assert.NotNil(t, app.Pipeline)
	assert.NotNil(t, app.Backtest)
	assert.NotNil(t, app.Miner)
	assert.NotNil(t, app.HTTPHandler)
	assert.Equal(t, "none", app.Fills.Backend())
}

func TestOptionalProvidersReturnNilInterfaces(t *testing.T) {
	cfg := config.Default()
	l := logger.Nop()

	assert.Nil(t, ProvideFillPublisher(nil, cfg))
	assert.Nil(t, ProvideTradeJournal(nil, l))
	assert.Nil(t, ProvideBarStore(nil, ProvideAsOfPolicy(cfg), l))
	assert.Nil(t, ProvideBarStream(cfg, ProvideAsOfPolicy(cfg), l))

	assert.Equal(t, models.AsOfPolicy{Period: 24 * time.Hour}, ProvideAsOfPolicy(cfg))

	runs, err := ProvideRunRepository(nil)
	require.NoError(t, err)
	assert.Nil(t, runs)

	_, isCSV := ProvideBarSource(cfg, nil, l).(*repository.CSVBarSource)
	assert.True(t, isCSV)
}

func TestRegimeScorerChain(t *testing.T) {
	cfg := config.Default()
	l := logger.Nop()
	c := ProvideCache(cfg, nil)
	t.Cleanup(func() { _ = c.Close() })

	assert.NotNil(t, ProvideRegimeScorer(cfg, c, l))
	cfg.LLM.APIKey = "sk-test"
	assert.NotNil(t, ProvideRegimeScorer(cfg, c, l))
}

type logsWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *logsWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *logsWriter) Close() error { return nil }

func TestLogCollectorWiredToKafkaBackend(t *testing.T) {
	cfg := config.Default()
	w := &logsWriter{}
	producer := pkgkafka.NewProducerWithWriter(w, "none", nil)
	l := logger.Nop()

	assert.Nil(t, ProvideLogCollector(cfg, l, producer))
	cfg.Backend.Type = "kafka"
	assert.Nil(t, ProvideLogCollector(cfg, l, nil))

	l, err := logger.New(&logger.Config{Level: "warn", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	c := ProvideLogCollector(cfg, l, producer)
	require.NotNil(t, c)

	l.With(logger.String("symbol", "NVDA")).Warn("bar rejected")
	c.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.msgs, 1)
	assert.Equal(t, cfg.Kafka.LogsTopic, w.msgs[0].Topic)
	var entries []logger.AggregatedEntry
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "bar rejected", entries[0].Message)
	assert.Equal(t, "NVDA", entries[0].Fields["symbol"])
}
