package barstream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"RegimeTrader/internal/domain/models"
	drepo "RegimeTrader/internal/domain/repository"
	"RegimeTrader/pkg/logger"
	"RegimeTrader/pkg/util"

	"github.com/gorilla/websocket"
)

// Client implements a BarStream over a websocket feed that pushes finished
// bars as JSON frames:
//
//	{"type":"bar","data":[{"s":"NVDA","t":"2024-01-02","o":..,"h":..,"l":..,"c":..,"v":..,"vix":..,"rs":..,"ss":..,"as_of":".."}]}
type Client struct {
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	policy models.AsOfPolicy
	lastMu sync.Mutex
	last   map[string]time.Time
}

// New creates a new bar stream client.
func New(rawURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		url:            rawURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
		last:           make(map[string]time.Time),
	}
}

// SetAsOfPolicy sets the look-ahead rule applied to every streamed bar.
func (c *Client) SetAsOfPolicy(p models.AsOfPolicy) { c.policy = p }

var _ drepo.BarStream = (*Client)(nil)

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := url.Parse(c.url); err != nil {
		return fmt.Errorf("barstream url: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("barstream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("barstream connected", logger.String("url", c.url))
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("barstream not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.log.Info("barstream subscribed", logger.String("symbol", s))
	}
	return nil
}

type wireBar struct {
	S    string   `json:"s"`
	T    string   `json:"t"`
	O    float64  `json:"o"`
	H    float64  `json:"h"`
	L    float64  `json:"l"`
	C    float64  `json:"c"`
	V    float64  `json:"v"`
	VIX  *float64 `json:"vix"`
	RS   float64  `json:"rs"`
	SS   float64  `json:"ss"`
	AsOf string   `json:"as_of"`
}

type wireMessage struct {
	Type string    `json:"type"`
	Data []wireBar `json:"data"`
}

func (w wireBar) bar() (*models.Bar, error) {
	ts, ok := util.ParseTime(w.T)
	if !ok {
		return nil, fmt.Errorf("bar time %q", w.T)
	}
	b := &models.Bar{
		Symbol: w.S, Time: ts,
		Open: w.O, High: w.H, Low: w.L, Close: w.C, Volume: w.V,
		RegimeScore: w.RS, SentimentScore: w.SS,
		VIX: math.NaN(),
	}
	if w.VIX != nil {
		b.VIX = *w.VIX
	}
	if w.AsOf != "" {
		asOf, ok := util.ParseTime(w.AsOf)
		if !ok {
			return nil, fmt.Errorf("bar as_of %q", w.AsOf)
		}
		b.SignalsAsOf = asOf
	}
	return b, nil
}

// stamp applies the look-ahead rule. The lag reference is the latest bar
// seen for the symbol, kept across reconnects.
func (c *Client) stamp(b *models.Bar) error {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	prev := c.last[b.Symbol]
	if !prev.Before(b.Time) {
		prev = time.Time{}
	}
	if _, err := c.policy.Apply(b, prev); err != nil {
		return err
	}
	if b.Time.After(c.last[b.Symbol]) {
		c.last[b.Symbol] = b.Time
	}
	return nil
}

// Read streams bars and errors until ctx ends or the connection fails.
func (c *Client) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
				c.mu.Unlock()
			}
		}
	}()

	// read loop
	go func() {
		defer close(bars)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("barstream conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("barstream read: %w", err)
				}
				return
			}
			var m wireMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "bar" {
				continue
			}
			for _, d := range m.Data {
				bar, err := d.bar()
				if err == nil {
					err = c.stamp(bar)
				}
				if err != nil {
					c.log.Warn("barstream frame dropped", logger.String("symbol", d.S), logger.Error(err))
					continue
				}
				// bars are low frequency; block rather than drop
				select {
				case bars <- bar:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return bars, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
