package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"RegimeTrader/internal/domain/models"
	domrepo "RegimeTrader/internal/domain/repository"
	mid "RegimeTrader/internal/middleware"
	pkgkafka "RegimeTrader/pkg/kafka"
)

// KafkaBarsHandler consumes finished bars from Kafka, stores them when a bar
// store is configured and feeds them to the paper trader.
type KafkaBarsHandler struct {
	topic   string
	policy  models.AsOfPolicy
	store   domrepo.BarStore
	proc    mid.Proc
	metrics domrepo.Metrics

	mu   sync.Mutex
	last map[string]time.Time
}

// NewKafkaBarsHandler wires the handler; store and proc are both optional.
func NewKafkaBarsHandler(topic string, policy models.AsOfPolicy, store domrepo.BarStore, proc mid.Proc, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{
		topic:   topic,
		policy:  policy,
		store:   store,
		proc:    proc,
		metrics: metrics,
		last:    make(map[string]time.Time),
	}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// barMessage is the wire schema; vix is null when the feed has none.
type barMessage struct {
	Symbol         string     `json:"symbol"`
	Time           time.Time  `json:"time"`
	Open           float64    `json:"open"`
	High           float64    `json:"high"`
	Low            float64    `json:"low"`
	Close          float64    `json:"close"`
	Volume         float64    `json:"volume"`
	VIX            *float64   `json:"vix"`
	RegimeScore    float64    `json:"regime_score"`
	SentimentScore float64    `json:"sentiment_score"`
	SignalsAsOf    *time.Time `json:"signals_as_of"`
}

func (m barMessage) bar() models.Bar {
	b := models.Bar{
		Symbol: m.Symbol, Time: m.Time,
		Open: m.Open, High: m.High, Low: m.Low, Close: m.Close, Volume: m.Volume,
		RegimeScore: m.RegimeScore, SentimentScore: m.SentimentScore,
		VIX: math.NaN(),
	}
	if m.VIX != nil {
		b.VIX = *m.VIX
	}
	if m.SignalsAsOf != nil {
		b.SignalsAsOf = *m.SignalsAsOf
	}
	return b
}

func (h *KafkaBarsHandler) Handle(ctx context.Context, payload []byte) error {
	var m barMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		h.recordError("consumer_unmarshal")
		return fmt.Errorf("decode bar: %w", err)
	}
	b := m.bar()
	if err := b.Validate(); err != nil {
		h.recordError("consumer_invalid")
		return err
	}
	if err := h.stamp(&b); err != nil {
		h.recordError("consumer_look_ahead")
		return fmt.Errorf("bar %s: %w", b.Symbol, err)
	}
	h.recordLatency("ingest_e2e_seconds", time.Since(b.Time).Seconds())

	if h.store != nil {
		start := time.Now()
		if err := h.store.StoreBars(ctx, []models.Bar{b}); err != nil {
			h.recordError("consumer_store")
			return err
		}
		h.recordLatency("ch_insert_seconds", time.Since(start).Seconds())
	}
	if h.proc != nil {
		if err := h.proc.Process(ctx, &b); err != nil {
			h.recordError("consumer_trade")
			return err
		}
	}
	return nil
}

// stamp applies the look-ahead rule; an unstamped bar lags the latest bar
// consumed for its symbol.
func (h *KafkaBarsHandler) stamp(b *models.Bar) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.last[b.Symbol]
	if !prev.Before(b.Time) {
		prev = time.Time{}
	}
	if _, err := h.policy.Apply(b, prev); err != nil {
		return err
	}
	if b.Time.After(h.last[b.Symbol]) {
		h.last[b.Symbol] = b.Time
	}
	return nil
}

func (h *KafkaBarsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

func (h *KafkaBarsHandler) recordLatency(op string, v float64) {
	if h.metrics != nil {
		h.metrics.RecordLatency(op, v)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
