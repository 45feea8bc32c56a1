package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ban registry.
type Metrics struct {
	BansCreated      prometheus.Counter
	BansLifted       prometheus.Counter
	BansExpired      prometheus.Counter
	CheckDuration    prometheus.Histogram
	ChecksDenied     prometheus.Counter
}

// New creates a new Metrics instance with all ban module metrics registered.
func New() *Metrics {
	return &Metrics{
		BansCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_bans_created_total",
			Help: "Total number of bans created",
		}),
		BansLifted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_bans_lifted_total",
			Help: "Total number of bans lifted",
		}),
		BansExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_bans_expired_total",
			Help: "Total number of bans expired by the sweep",
		}),
		CheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "passage_ban_check_duration_seconds",
			Help:    "Duration of ban checks (visit creation and gate scan paths)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ChecksDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_ban_checks_denied_total",
			Help: "Total number of ban checks that found an active ban",
		}),
	}
}

// ObserveCheck records the duration of a ban check.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCheck(start time.Time) {
	m.CheckDuration.Observe(time.Since(start).Seconds())
}
