package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_fulfillment",
			Name:      "events_received_total",
			Help:      "Total number of marketplace events read from the event stream.",
		},
		[]string{"type"}, // "order_received", "buyer_message"
	)

	eventsDroppedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_fulfillment",
			Name:      "events_dropped_total",
			Help:      "Total number of marketplace events dropped before processing.",
		},
		[]string{"reason"}, // "cooldown", "category", "self", "no_session", "malformed", "panic"
	)

	deliveriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_fulfillment",
			Name:      "deliveries_total",
			Help:      "Total number of stars delivery attempts.",
		},
		[]string{"result", "category"}, // result: "success", "failure"
	)

	deliveryDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stars_fulfillment",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of stars delivery attempts, including re-authentication.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	refundsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_fulfillment",
			Name:      "refunds_total",
			Help:      "Total number of refund decisions after failed deliveries.",
		},
		[]string{"result"}, // "success", "failure", "disabled"
	)

	listingsDeactivatedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stars_fulfillment",
			Name:      "listings_deactivated_total",
			Help:      "Total number of listings switched off because of a low wallet balance.",
		},
	)

	walletBalanceGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stars_fulfillment",
			Name:      "wallet_balance",
			Help:      "Last known wallet balance.",
		},
	)

	activeSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stars_fulfillment",
			Name:      "active_sessions",
			Help:      "Number of buyers currently in the nickname conversation.",
		},
	)
)
