package indicators

import "math"

// resyncEvery bounds floating-point drift of the running sums.
const resyncEvery = 4096

// Window is a fixed-size ring buffer that keeps a running sum and sum of
// squares, so mean and variance are O(1) per push.
type Window struct {
	buf    []float64
	head   int
	n      int
	sum    float64
	sumSq  float64
	pushes int
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]float64, size)}
}

// Push appends v, evicting the oldest value once the window is full.
func (w *Window) Push(v float64) {
	if w.n == len(w.buf) {
		old := w.buf[w.head]
		w.sum -= old
		w.sumSq -= old * old
	} else {
		w.n++
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	w.sum += v
	w.sumSq += v * v

	w.pushes++
	if w.pushes%resyncEvery == 0 {
		w.resync()
	}
}

func (w *Window) resync() {
	w.sum, w.sumSq = 0, 0
	for i := 0; i < w.n; i++ {
		v := w.At(i)
		w.sum += v
		w.sumSq += v * v
	}
}

func (w *Window) Len() int   { return w.n }
func (w *Window) Cap() int   { return len(w.buf) }
func (w *Window) Full() bool { return w.n == len(w.buf) }

// At returns the i-th value, 0 being the oldest.
func (w *Window) At(i int) float64 {
	if i < 0 || i >= w.n {
		return math.NaN()
	}
	start := (w.head - w.n + len(w.buf)) % len(w.buf)
	return w.buf[(start+i)%len(w.buf)]
}

// Last returns the newest value, NaN when empty.
func (w *Window) Last() float64 { return w.At(w.n - 1) }

func (w *Window) Sum() float64 { return w.sum }

func (w *Window) Mean() float64 {
	if w.n == 0 {
		return math.NaN()
	}
	return w.sum / float64(w.n)
}

// Variance is the population variance (ddof 0).
func (w *Window) Variance() float64 {
	if w.n == 0 {
		return math.NaN()
	}
	n := float64(w.n)
	mean := w.sum / n
	v := w.sumSq/n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

// SampleVariance is the unbiased variance (ddof 1).
func (w *Window) SampleVariance() float64 {
	if w.n < 2 {
		return math.NaN()
	}
	n := float64(w.n)
	mean := w.sum / n
	v := (w.sumSq - n*mean*mean) / (n - 1)
	if v < 0 {
		return 0
	}
	return v
}

func (w *Window) Std() float64       { return math.Sqrt(w.Variance()) }
func (w *Window) SampleStd() float64 { return math.Sqrt(w.SampleVariance()) }

// Values copies the window contents, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}
