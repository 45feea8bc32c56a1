package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the visit module.
type Metrics struct {
	VisitsCreated        prometheus.Counter
	VisitsCancelled      prometheus.Counter
	VisitsExpired        prometheus.Counter
	CodesReissued        prometheus.Counter
	CreateVisitDuration  prometheus.Histogram
}

// New creates a new Metrics instance with all visit module metrics registered.
func New() *Metrics {
	return &Metrics{
		VisitsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_visits_created_total",
			Help: "Total number of visits created",
		}),
		VisitsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_visits_cancelled_total",
			Help: "Total number of visits cancelled",
		}),
		VisitsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_visits_expired_total",
			Help: "Total number of visits expired by the sweep",
		}),
		CodesReissued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passage_qr_codes_reissued_total",
			Help: "Total number of QR codes re-issued",
		}),
		CreateVisitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "passage_create_visit_duration_seconds",
			Help:    "Duration of CreateVisit operations (host invitation path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveCreateVisit records the duration of a CreateVisit operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreateVisit(start time.Time) {
	m.CreateVisitDuration.Observe(time.Since(start).Seconds())
}
