package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	barsProcessed *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	fills         *prometheus.CounterVec
	stops         *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	equity        *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		barsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimetrader_bars_processed_total",
				Help: "Total number of bars fed to a strategy",
			},
			[]string{"symbol"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimetrader_decisions_total",
				Help: "Strategy decisions by action",
			},
			[]string{"strategy", "action"},
		),
		fills: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimetrader_fills_total",
				Help: "Executed fills by side",
			},
			[]string{"symbol", "side"},
		),
		stops: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimetrader_stop_triggers_total",
				Help: "Risk overlay exits by kind",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimetrader_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		equity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regimetrader_equity",
				Help: "Last marked equity per symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regimetrader_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordBar(symbol string) {
	r.barsProcessed.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordDecision(strategy, action string) {
	r.decisions.WithLabelValues(strategy, action).Inc()
}

func (r *Recorder) RecordFill(symbol, side string) {
	r.fills.WithLabelValues(symbol, side).Inc()
}

func (r *Recorder) RecordStop(kind string) {
	r.stops.WithLabelValues(kind).Inc()
}

// RecordEquity sets the equity gauge for a symbol.
func (r *Recorder) RecordEquity(symbol string, equity float64) {
	r.equity.WithLabelValues(symbol).Set(equity)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
