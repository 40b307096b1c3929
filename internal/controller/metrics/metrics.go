// Package metrics provides observability shared by both registration
// protocols.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Commits            prometheus.Counter
	Reveals            prometheus.Counter
	Purchases          *prometheus.CounterVec
	GasPriceRejections prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Commits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_commits_total",
			Help: "Total number of accepted name commits",
		}),
		Reveals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_reveals_total",
			Help: "Total number of successful reveals",
		}),
		Purchases: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_purchases_total",
			Help: "Total number of paid registrations by protocol",
		}, []string{"protocol"}),
		GasPriceRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_gas_price_rejections_total",
			Help: "Registrations refused for exceeding the gas price ceiling",
		}),
	}
}
