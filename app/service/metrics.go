package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_orders_created_total",
			Help: "Orders inserted by the checkout, by product type.",
		},
		[]string{"product_type"},
	)

	chargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_charges_total",
			Help: "Charge attempts by method, gateway and outcome.",
		},
		[]string{"method", "gateway", "outcome"},
	)

	gatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_gateway_request_duration_seconds",
			Help:    "Latency of gateway charge calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"gateway", "method"},
	)

	reservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_reservations_total",
			Help: "Session reservation outcomes.",
		},
		[]string{"outcome"},
	)

	completionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_completions_total",
			Help: "Order completions by confirmation source.",
		},
		[]string{"source"},
	)

	cancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_cancellations_total",
			Help: "Orders closed without payment, by reason.",
		},
		[]string{"reason"},
	)

	webhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_webhooks_total",
			Help: "Gateway callbacks by gateway and result.",
		},
		[]string{"gateway", "result"},
	)

	gatewayAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_gateway_alerts_total",
			Help: "Charges where every gateway failed, by method.",
		},
		[]string{"method"},
	)

	inventoryDriftTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_inventory_resync_total",
			Help: "Inventory counter resyncs, by session type and whether the counter drifted.",
		},
		[]string{"type", "drifted"},
	)

	subscriptionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_subscriptions_expired_total",
			Help: "Active subscriptions moved to expired after their billing date.",
		},
	)
)
