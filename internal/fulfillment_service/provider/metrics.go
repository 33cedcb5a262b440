package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	walletRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stars_fulfillment",
			Name:      "wallet_request_duration_seconds",
			Help:      "Duration of HTTP requests to the wallet provider.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "status_class"},
	)

	walletReauthCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_fulfillment",
			Name:      "wallet_reauth_total",
			Help:      "Wallet re-authentications triggered by 401/403 responses.",
		},
		[]string{"result"}, // "success", "failure"
	)
)
