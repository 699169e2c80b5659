package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidBar = errors.New("invalid bar")

// Bar is one trading-period snapshot with the externally supplied signals for that period.
type Bar struct {
	Symbol         string    `json:"symbol"`
	Time           time.Time `json:"time"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	RegimeScore    float64   `json:"regime_score"`
	SentimentScore float64   `json:"sentiment_score"`
	// VIX is NaN when the feed carries no volatility index.
	VIX float64 `json:"vix"`
	// SignalsAsOf is when RegimeScore and SentimentScore became known.
	SignalsAsOf time.Time `json:"signals_as_of"`
}

// HasVIX reports whether the bar carries a usable VIX reading.
func (b Bar) HasVIX() bool {
	return !math.IsNaN(b.VIX) && !math.IsInf(b.VIX, 0) && b.VIX > 0
}

// Validate checks price sanity. Signal ranges are handled by the strategies.
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("%w: time is zero", ErrInvalidBar)
	}
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidBar, name, v)
		}
	}
	if b.Volume < 0 || math.IsNaN(b.Volume) {
		return fmt.Errorf("%w: volume=%v", ErrInvalidBar, b.Volume)
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %v below low %v", ErrInvalidBar, b.High, b.Low)
	}
	if b.Close > b.High || b.Close < b.Low || b.Open > b.High || b.Open < b.Low {
		return fmt.Errorf("%w: open/close outside high-low range", ErrInvalidBar)
	}
	return nil
}

// Return is the simple return from prev to b.
func (b Bar) Return(prev Bar) float64 {
	if prev.Close == 0 {
		return 0
	}
	return b.Close/prev.Close - 1
}

// DefaultBarPeriod is the length of a daily bar.
const DefaultBarPeriod = 24 * time.Hour

// AsOfPolicy is the look-ahead rule applied wherever bars enter the system.
// A bar closes at Time+Period and its signals must be stamped strictly
// before that.
type AsOfPolicy struct {
	Period time.Duration
	// Strict rejects bars without a stamp instead of assuming a one-bar lag.
	Strict bool
}

func (p AsOfPolicy) period() time.Duration {
	if p.Period <= 0 {
		return DefaultBarPeriod
	}
	return p.Period
}

// Apply stamps a missing SignalsAsOf and checks the bar against the rule.
// prev is the time of the preceding bar, zero when there is none; a missing
// stamp becomes prev, or Time-Period on the first bar. It reports whether
// the stamp was assumed.
func (p AsOfPolicy) Apply(b *Bar, prev time.Time) (assumed bool, err error) {
	if b.SignalsAsOf.IsZero() {
		if p.Strict {
			return false, fmt.Errorf("%w: signals_as_of missing", ErrLookAhead)
		}
		b.SignalsAsOf = b.Time.Add(-p.period())
		if !prev.IsZero() {
			b.SignalsAsOf = prev
		}
		assumed = true
	}
	return assumed, b.CheckAsOf(p.period())
}

// CheckAsOf fails with ErrLookAhead unless the signals were stamped strictly
// before the bar closed. A zero stamp fails too.
func (b Bar) CheckAsOf(period time.Duration) error {
	if period <= 0 {
		period = DefaultBarPeriod
	}
	closeAt := b.Time.Add(period)
	if b.SignalsAsOf.IsZero() || !b.SignalsAsOf.Before(closeAt) {
		return fmt.Errorf("%w: bar %s as of %s, closes %s", ErrLookAhead,
			b.Time.Format(time.RFC3339), b.SignalsAsOf.Format(time.RFC3339), closeAt.Format(time.RFC3339))
	}
	return nil
}
