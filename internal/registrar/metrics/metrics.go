package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ownership ledger.
type Metrics struct {
	NamesRegistered  prometheus.Counter
	NamesMigrated    prometheus.Counter
	Transfers        prometheus.Counter
	Reclaims         prometheus.Counter
	RegisterDuration prometheus.Histogram
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		NamesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_names_registered_total",
			Help: "Total number of names registered through controllers",
		}),
		NamesMigrated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_names_migrated_total",
			Help: "Total number of names imported through bulk migration",
		}),
		Transfers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_name_transfers_total",
			Help: "Total number of name token transfers",
		}),
		Reclaims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_name_reclaims_total",
			Help: "Total number of naming-system owner re-syncs",
		}),
		RegisterDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "namereg_register_duration_seconds",
			Help:    "Duration of ledger register operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveRegister records the duration of a register operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}
