// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "settlement"

var (
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_placed_total",
		Help:      "Order placements by outcome.",
	}, []string{"outcome"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_status_transitions_total",
		Help:      "Staff status changes by kind (forward, backward, lateral, unchanged).",
	}, []string{"kind", "to"})

	ReturnsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "returns_total",
		Help:      "Return requests by outcome.",
	}, []string{"outcome"})

	CascadeRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "return_cascade_attempts_total",
		Help:      "Attempts to mirror a refunded return onto its order.",
	}, []string{"result"})

	CascadeDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "return_cascade_drift",
		Help:      "Refunded returns whose order is not refunded, as of the last check.",
	})

	LoyaltyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loyalty_cas_conflicts_total",
		Help:      "Loyalty balance writes that lost a compare-and-swap.",
	})

	PlacementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "order_placement_seconds",
		Help:      "Latency of the placement transaction.",
		Buckets:   prometheus.DefBuckets,
	})
)
