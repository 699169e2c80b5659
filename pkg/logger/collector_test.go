package logger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	mu      sync.Mutex
	topic   string
	key     string
	batches [][]AggregatedEntry
	err     error
}

func (p *memPublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic, p.key = topic, string(key)
	p.batches = append(p.batches, value.([]AggregatedEntry))
	return p.err
}

func (p *memPublisher) all() []AggregatedEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestLogCollectorDeduplicates(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(CollectorConfig{Interval: time.Hour, Topic: "regimetrader.logs", Source: "regimetrader", Publisher: pub})

	for i := 0; i < 5; i++ {
		c.Add("error", "publish fill failed", map[string]interface{}{"symbol": "NVDA"}, "usecase/fills.go:40")
	}
	c.Add("error", "publish fill failed", map[string]interface{}{"symbol": "AAPL"}, "usecase/fills.go:40")
	c.Close()

	entries := pub.all()
	require.Len(t, entries, 2)
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Fields["symbol"].(string)] = e.Count
		assert.False(t, e.LastSeen.Before(e.FirstSeen))
	}
	assert.Equal(t, map[string]int{"NVDA": 5, "AAPL": 1}, counts)
	assert.Equal(t, "regimetrader.logs", pub.topic)
	assert.Equal(t, "regimetrader", pub.key)
}

func TestLogCollectorThresholdFlush(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(CollectorConfig{Interval: time.Hour, Threshold: 2, Publisher: pub})
	c.Add("warn", "a", nil, "x:1")
	c.Add("warn", "b", nil, "x:2")

	assert.Eventually(t, func() bool { return len(pub.all()) == 2 }, time.Second, 5*time.Millisecond)
	c.Close()
	assert.Len(t, pub.all(), 2)
}

func TestLogCollectorIntervalFlush(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(CollectorConfig{Interval: 10 * time.Millisecond, Publisher: pub})
	defer c.Close()
	c.Add("warn", "slow request", nil, "x:1")
	assert.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestLogCollectorPublishErrorDropsBatch(t *testing.T) {
	pub := &memPublisher{err: errors.New("broker down")}
	c := NewLogCollector(CollectorConfig{Interval: time.Hour, Publisher: pub})
	c.Add("error", "x", nil, "x:1")
	c.Flush()
	c.Flush()
	c.Close()
	assert.Len(t, pub.batches, 1)
}

func TestLoggerFeedsCollector(t *testing.T) {
	l, err := New(&Config{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "app.log")})
	require.NoError(t, err)
	child := l.With(String("run_id", "r1"))

	pub := &memPublisher{}
	c := NewLogCollector(CollectorConfig{Interval: time.Hour, Publisher: pub})
	l.AttachCollector(c)

	child.Info("not collected")
	for i := 0; i < 2; i++ {
		child.Warn("bar rejected", String("symbol", "NVDA"))
	}
	l.Error("journal write failed", Error(errors.New("timeout")))
	c.Close()

	entries := pub.all()
	require.Len(t, entries, 2)
	for _, e := range entries {
		switch e.Message {
		case "bar rejected":
			assert.Equal(t, "warn", e.Level)
			assert.Equal(t, 2, e.Count)
			assert.Equal(t, "r1", e.Fields["run_id"])
			assert.Equal(t, "NVDA", e.Fields["symbol"])
			assert.Contains(t, e.Caller, "logger/collector_test.go:")
		case "journal write failed":
			assert.Equal(t, "error", e.Level)
		default:
			t.Fatalf("unexpected entry %q", e.Message)
		}
	}
}
