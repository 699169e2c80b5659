package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries. The Kafka producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectorConfig struct {
	Interval  time.Duration // flush period
	Threshold int           // distinct entries that force an early flush
	Topic     string
	Source    string // message key, usually the service name
	Publisher Publisher
	Timeout   time.Duration // per publish
}

// AggregatedEntry is one distinct warn or error line and how often it
// repeated since the last flush.
type AggregatedEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates warn and error lines so a noisy failure loop
// ships one entry with a count instead of thousands of lines.
type LogCollector struct {
	cfg     CollectorConfig
	mu      sync.Mutex
	entries map[string]*AggregatedEntry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sendWg  sync.WaitGroup
	closed  bool
}

func NewLogCollector(cfg CollectorConfig) *LogCollector {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[string]*AggregatedEntry),
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.loop(ctx)
	return c
}

func (c *LogCollector) Add(level, msg string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, msg, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedEntry{
			Level: level, Message: msg, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	if len(c.entries) >= c.cfg.Threshold {
		batch := c.drainLocked()
		c.sendWg.Add(1)
		go func() {
			defer c.sendWg.Done()
			c.send(batch)
		}()
	}
}

func entryKey(level, msg string, fields map[string]interface{}, caller string) string {
	// json.Marshal sorts map keys, so equal field sets hash equally.
	raw, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, msg, fields, caller})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (c *LogCollector) loop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// Flush publishes whatever is pending and waits for it.
func (c *LogCollector) Flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	c.send(batch)
}

func (c *LogCollector) drainLocked() []AggregatedEntry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.entries = make(map[string]*AggregatedEntry)
	return out
}

// send cannot log through Logger without feeding itself, so failures go to
// stderr.
func (c *LogCollector) send(batch []AggregatedEntry) {
	if len(batch) == 0 || c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	if err := c.cfg.Publisher.Publish(ctx, c.cfg.Topic, []byte(c.cfg.Source), batch); err != nil {
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(batch), c.cfg.Topic, err)
	}
}

// Close stops the ticker and publishes the final batch. Call it before the
// publisher is closed.
func (c *LogCollector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.sendWg.Wait()

	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	c.send(batch)
}
