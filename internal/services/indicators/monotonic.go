package indicators

import "math"

type slot struct {
	idx int
	v   float64
}

// MonotonicWindow tracks the max (or min) of the last size values with a
// monotonic deque. Push is amortised O(1).
type MonotonicWindow struct {
	size  int
	count int
	q     []slot
	// evict reports whether the tail value is dominated by the incoming one.
	evict func(tail, v float64) bool
}

// NewRollingMax tracks the maximum of the last size values.
func NewRollingMax(size int) *MonotonicWindow {
	return newMonotonic(size, func(tail, v float64) bool { return tail <= v })
}

// NewRollingMin tracks the minimum of the last size values.
func NewRollingMin(size int) *MonotonicWindow {
	return newMonotonic(size, func(tail, v float64) bool { return tail >= v })
}

func newMonotonic(size int, evict func(tail, v float64) bool) *MonotonicWindow {
	if size < 1 {
		size = 1
	}
	return &MonotonicWindow{size: size, evict: evict, q: make([]slot, 0, size)}
}

func (m *MonotonicWindow) Push(v float64) {
	i := m.count
	m.count++
	for len(m.q) > 0 && m.evict(m.q[len(m.q)-1].v, v) {
		m.q = m.q[:len(m.q)-1]
	}
	m.q = append(m.q, slot{idx: i, v: v})
	for m.q[0].idx <= i-m.size {
		m.q = m.q[1:]
	}
}

// Value returns the current extreme, NaN when nothing was pushed.
func (m *MonotonicWindow) Value() float64 {
	if len(m.q) == 0 {
		return math.NaN()
	}
	return m.q[0].v
}

func (m *MonotonicWindow) Len() int {
	if m.count < m.size {
		return m.count
	}
	return m.size
}

func (m *MonotonicWindow) Full() bool { return m.count >= m.size }
