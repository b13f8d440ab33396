// Package metrics exposes Prometheus counters for the ring protocol and
// order lifecycle, served on /metrics by every node the same way the
// teacher's HTTP services expose theirs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RingMetrics counts ring-protocol and order-lifecycle events for one
// node.
type RingMetrics struct {
	MessagesTotal        *prometheus.CounterVec
	OrdersTotal          *prometheus.CounterVec
	ElectionsTotal        prometheus.Counter
	TokensRemintedTotal   prometheus.Counter
	StockCompensatedGrams *prometheus.CounterVec
}

// New creates ring metrics for a service, name-spaced the way the
// teacher's NewHTTPMetrics/NewGRPCMetrics name-space theirs.
func New(serviceName string) *RingMetrics {
	return &RingMetrics{
		MessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_ring_messages_total",
				Help: "Total number of ring messages sent or received, by kind and direction.",
			},
			[]string{"kind", "direction"},
		),
		OrdersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_orders_total",
				Help: "Total number of orders by terminal outcome.",
			},
			[]string{"outcome"},
		),
		ElectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_elections_total",
				Help: "Total number of leader elections held.",
			},
		),
		TokensRemintedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_tokens_reminted_total",
				Help: "Total number of flavor tokens re-minted after loss detection.",
			},
		),
		StockCompensatedGrams: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_stock_compensated_grams_total",
				Help: "Total grams refunded back into stock after a robot died mid-order.",
			},
			[]string{"flavor"},
		),
	}
}

// RecordMessage records one ring message send or receive.
func (m *RingMetrics) RecordMessage(kind, direction string) {
	m.MessagesTotal.WithLabelValues(kind, direction).Inc()
}

// RecordOrder records one order reaching a terminal outcome
// ("committed" or "aborted"; the gateway also records "rejected").
func (m *RingMetrics) RecordOrder(outcome string) {
	m.OrdersTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
