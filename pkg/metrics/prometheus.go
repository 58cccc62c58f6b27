package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal      *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	missingWindows *prometheus.GaugeVec
	lastEntropy    *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comove_analysis_runs_total",
				Help: "Total number of analysis runs by primary series and outcome",
			},
			[]string{"primary", "status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comove_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		missingWindows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "comove_missing_windows",
				Help: "Windows without enough overlapping data in the last run",
			},
			[]string{"primary", "label"},
		),
		lastEntropy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "comove_last_entropy_bits",
				Help: "Entropy of the latest window of the last run",
			},
			[]string{"primary"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "comove_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRun counts a finished run.
func (r *Recorder) RecordRun(primary, status string) {
	r.runsTotal.WithLabelValues(primary, status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordMissingWindows(primary, label string, n int) {
	r.missingWindows.WithLabelValues(primary, label).Set(float64(n))
}

func (r *Recorder) RecordEntropy(primary string, h float64) {
	r.lastEntropy.WithLabelValues(primary).Set(h)
}
