package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"RegimeTrader/internal/domain/models"
	mid "RegimeTrader/internal/middleware"
	"RegimeTrader/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	mu    sync.Mutex
	fails int
	calls int
	fills []models.Fill
}

func (p *flakyPublisher) Publish(ctx context.Context, f models.Fill) error {
	return p.PublishBatch(ctx, []models.Fill{f})
}

func (p *flakyPublisher) PublishBatch(_ context.Context, f []models.Fill) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fails > 0 {
		p.fails--
		return errors.New("broker down")
	}
	p.fills = append(p.fills, f...)
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func (p *flakyPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fills)
}

func TestFillProcessorRoutesByBackend(t *testing.T) {
	ctx := context.Background()
	fill := models.Fill{Symbol: "NVDA", Side: models.ActionBuy, Price: 100, Units: 10}
	trade := models.TradeRecord{ID: "t1", Symbol: "NVDA"}

	pub := &flakyPublisher{}
	kp := NewFillProcessor(pub, nil, nil, BackendKafka)
	require.NoError(t, kp.Process(ctx, fill))
	require.NoError(t, kp.ProcessBatch(ctx, []models.Fill{fill, fill}))
	require.NoError(t, kp.RecordTrades(ctx, []models.TradeRecord{trade}))
	assert.Len(t, pub.fills, 3)

	journal := &fakeJournal{}
	cp := NewFillProcessor(nil, journal, nil, BackendClickHouse)
	require.NoError(t, cp.ProcessBatch(ctx, []models.Fill{fill, fill}))
	require.NoError(t, cp.RecordTrades(ctx, []models.TradeRecord{trade}))
	assert.Len(t, journal.fills, 2)
	assert.Len(t, journal.trades, 1)

	np := NewFillProcessor(nil, nil, nil, "")
	assert.Equal(t, BackendNone, np.Backend())
	assert.NoError(t, np.Process(ctx, fill))

	assert.Error(t, NewFillProcessor(nil, nil, nil, BackendKafka).Process(ctx, fill))
	assert.Error(t, NewFillProcessor(nil, nil, nil, "s3").Process(ctx, fill))

	journal.err = errors.New("insert failed")
	assert.ErrorIs(t, cp.Process(ctx, fill), journal.err)
}

func TestPaperTraderRetriesFillsOnRedelivery(t *testing.T) {
	ctx := context.Background()
	pub := &flakyPublisher{fails: 1}
	trader := NewPaperTrader(config.Default(), NewFillProcessor(pub, nil, nil, BackendKafka), nil, nil)

	b0 := mkBar(0, 99, 101, 98, 100, 0.8, 0.1)
	err := trader.Process(ctx, &b0)
	require.Error(t, err)
	assert.Equal(t, 1, trader.Pending())

	// same bar again only retries routing; the session does not step twice
	require.NoError(t, trader.Process(ctx, &b0))
	assert.Zero(t, trader.Pending())
	assert.Equal(t, 1, pub.published())

	stale := mkBar(-1, 99, 101, 98, 100, 0.8, 0.1)
	require.NoError(t, trader.Process(ctx, &stale))

	b1 := mkBar(1, 101, 106, 100, 105, 0.8, -0.6)
	require.NoError(t, trader.Process(ctx, &b1))
	assert.Equal(t, 2, pub.published())

	snap := trader.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "NVDA", snap[0].Symbol)
	assert.Equal(t, 2, snap[0].Bars)
	assert.False(t, snap[0].Position.IsOpen())
	assert.NotEmpty(t, snap[0].RunID)
	require.NoError(t, trader.Shutdown(ctx))
}

func TestPaperTraderRejectsInvalidBar(t *testing.T) {
	trader := NewPaperTrader(config.Default(), nil, nil, nil)
	bad := mkBar(0, 100, 99, 101, 100, 0, 0)
	assert.ErrorIs(t, trader.Process(context.Background(), &bad), models.ErrInvalidBar)
	assert.ErrorIs(t, trader.Process(context.Background(), nil), models.ErrInvalidBar)
}

type memBarStore struct {
	mu   sync.Mutex
	bars []models.Bar
	err  error
}

func (s *memBarStore) Bars(context.Context, string, time.Time, time.Time) ([]models.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Bar(nil), s.bars...), nil
}

func (s *memBarStore) StoreBars(_ context.Context, bars []models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.bars = append(s.bars, bars...)
	return nil
}

func (s *memBarStore) Close() error { return nil }

func TestKafkaBarsHandler(t *testing.T) {
	ctx := context.Background()
	store := &memBarStore{}
	trader := NewPaperTrader(config.Default(), nil, nil, nil)
	h := NewKafkaBarsHandler("regimetrader.bars", models.AsOfPolicy{}, store, trader, nil)
	assert.Equal(t, "regimetrader.bars", h.Topic())

	msg := `{"symbol":"NVDA","time":"2024-01-02T00:00:00Z","open":99,"high":101,"low":98,"close":100,"volume":10,"vix":14.5,"regime_score":0.8,"sentiment_score":0.1,"signals_as_of":"2024-01-01T00:00:00Z"}`
	require.NoError(t, h.Handle(ctx, []byte(msg)))
	require.Len(t, store.bars, 1)
	assert.Equal(t, 14.5, store.bars[0].VIX)
	assert.True(t, trader.Snapshot()[0].Position.IsLong())

	ahead := `{"symbol":"NVDA","time":"2024-01-03T00:00:00Z","open":99,"high":101,"low":98,"close":100,"signals_as_of":"2024-01-05T00:00:00Z"}`
	assert.ErrorIs(t, h.Handle(ctx, []byte(ahead)), models.ErrLookAhead)
	assert.Error(t, h.Handle(ctx, []byte(`{"symbol":`)))
	assert.ErrorIs(t, h.Handle(ctx, []byte(`{"symbol":"NVDA","time":"2024-01-03T00:00:00Z"}`)), models.ErrInvalidBar)

	store.err = errors.New("ch down")
	ok := `{"symbol":"NVDA","time":"2024-01-04T00:00:00Z","open":99,"high":101,"low":98,"close":100}`
	assert.ErrorIs(t, h.Handle(ctx, []byte(ok)), store.err)
}

func TestKafkaBarsHandlerAsOfPolicy(t *testing.T) {
	ctx := context.Background()
	unstamped := func(day string) []byte {
		return []byte(`{"symbol":"NVDA","time":"` + day + `T00:00:00Z","open":99,"high":101,"low":98,"close":100,"regime_score":0.8,"sentiment_score":0.1}`)
	}

	store := &memBarStore{}
	h := NewKafkaBarsHandler("bars", models.AsOfPolicy{}, store, nil, nil)
	require.NoError(t, h.Handle(ctx, unstamped("2024-01-02")))
	require.NoError(t, h.Handle(ctx, unstamped("2024-01-03")))
	require.Len(t, store.bars, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), store.bars[0].SignalsAsOf)
	assert.Equal(t, store.bars[0].Time, store.bars[1].SignalsAsOf)

	strict := NewKafkaBarsHandler("bars", models.AsOfPolicy{Strict: true}, &memBarStore{}, nil, nil)
	assert.ErrorIs(t, strict.Handle(ctx, unstamped("2024-01-02")), models.ErrLookAhead)

	hourly := NewKafkaBarsHandler("bars", models.AsOfPolicy{Period: time.Hour}, &memBarStore{}, nil, nil)
	late := `{"symbol":"NVDA","time":"2024-01-02T10:00:00Z","open":99,"high":101,"low":98,"close":100,"signals_as_of":"2024-01-02T11:00:00Z"}`
	assert.ErrorIs(t, hourly.Handle(ctx, []byte(late)), models.ErrLookAhead)
}

type fakeStream struct {
	bars      []*models.Bar
	connected bool
	reads     int
}

func (s *fakeStream) Connect(context.Context) error   { s.connected = true; return nil }
func (s *fakeStream) Subscribe(context.Context) error { return nil }
func (s *fakeStream) Read(context.Context) (<-chan *models.Bar, <-chan error) {
	s.reads++
	bars := make(chan *models.Bar, len(s.bars))
	errs := make(chan error)
	for _, b := range s.bars {
		bars <- b
	}
	close(bars)
	close(errs)
	return bars, errs
}
func (s *fakeStream) Reconnect(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (s *fakeStream) Close() error      { s.connected = false; return nil }
func (s *fakeStream) IsConnected() bool { return s.connected }

func TestBarCollectorFeedsTraderThroughPipeline(t *testing.T) {
	b0 := mkBar(0, 99, 101, 98, 100, 0.8, 0.1)
	b1 := mkBar(1, 101, 106, 100, 105, 0.8, 0.2)
	stream := &fakeStream{bars: []*models.Bar{&b0, &b1}}
	pub := &flakyPublisher{}
	trader := NewPaperTrader(config.Default(), NewFillProcessor(pub, nil, nil, BackendKafka), nil, nil)
	pipe := mid.NewRealtimePipeline(trader, nil, mid.WithMaxRPS(1000))
	c := NewBarCollector(stream, trader, nil, pipe, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsConnected())

	require.Eventually(t, func() bool {
		s := trader.Snapshot()
		return len(s) == 1 && s[0].Bars == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pub.published())
	assert.Same(t, trader, c.Trader())

	cancel()
	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, c.IsConnected())
}
