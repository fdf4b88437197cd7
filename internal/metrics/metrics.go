package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_events_total",
			Help: "Event lifecycle counter by stage",
		},
		[]string{"stage"}, // published|fanned_out
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_deliveries_total",
			Help: "Delivery attempt outcomes",
		},
		[]string{"outcome"}, // ok|skipped|failed|retried
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookrelay_delivery_duration_seconds",
			Help:    "Outbound request duration for delivery attempts",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	SecretDecryptFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookrelay_secret_decrypt_failures_total",
			Help: "Endpoint secret decryption failures (degraded to empty signing key)",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		DeliveriesTotal,
		DeliveryDuration,
		SecretDecryptFailures,
	)
}
