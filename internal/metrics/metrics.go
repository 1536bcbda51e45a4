package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payev_events_total",
			Help: "Provider events by processing result and event type",
		},
		[]string{"result", "type"}, // succeeded|failed|duplicate , payment_intent.succeeded|...
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payev_retry_attempts_total",
			Help: "Dead-letter retry attempts by outcome",
		},
		[]string{"outcome"}, // succeeded|failed|dead_lettered|skipped
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payev_notifications_total",
			Help: "Notification deliveries by result",
		},
		[]string{"result"}, // sent|failed|dropped
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		RetryAttemptsTotal,
		NotificationsTotal,
	)
}
