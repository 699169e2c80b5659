package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// ADXNeutral is reported until enough bars exist for a first reading. It sits
// below any usable trend threshold.
const ADXNeutral = 20.0

// adxHistory bars per period are kept; Wilder smoothing has mostly converged
// by then.
const adxHistory = 5

// ADX is the average directional index over a bounded bar history.
type ADX struct {
	period            int
	high, low, closes *Window
	value             float64
}

func NewADX(period int) *ADX {
	if period < 2 {
		period = 14
	}
	n := adxHistory * period
	return &ADX{
		period: period,
		high:   NewWindow(n),
		low:    NewWindow(n),
		closes: NewWindow(n),
		value:  ADXNeutral,
	}
}

// Ready reports whether Value is a computed reading.
func (a *ADX) Ready() bool { return a.closes.Len() >= 2*a.period }

func (a *ADX) Value() float64 { return a.value }

// Update applies one bar and returns the current reading.
func (a *ADX) Update(high, low, closePrice float64) float64 {
	a.high.Push(high)
	a.low.Push(low)
	a.closes.Push(closePrice)
	if !a.Ready() {
		return a.value
	}
	out := talib.Adx(a.high.Values(), a.low.Values(), a.closes.Values(), a.period)
	if v := out[len(out)-1]; !math.IsNaN(v) && !math.IsInf(v, 0) {
		a.value = v
	}
	return a.value
}
