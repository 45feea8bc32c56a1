package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the gate-scan processor.
type Metrics struct {
	ScanOutcomes *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	ScanRetries  prometheus.Counter
}

// New creates a new Metrics instance with all scan module metrics registered.
func New() *Metrics {
	return &Metrics{
		ScanOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passage_scans_total",
			Help: "Total gate scans by outcome",
		}, []string{"outcome", "kind"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "passage_scan_duration_seconds",
			Help:    "Duration of ProcessScan (gate critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ScanRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_scan_transition_retries_total",
			Help: "Transition retries after losing a per-visit write race",
		}),
	}
}

// ObserveScan records one processed scan.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveScan(start time.Time, outcome, kind string) {
	m.ScanDuration.Observe(time.Since(start).Seconds())
	m.ScanOutcomes.WithLabelValues(outcome, kind).Inc()
}
