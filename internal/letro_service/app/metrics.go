package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unsupportedContentTypeLabel = "unsupported"

var (
	dispatchedMessagesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "letro",
			Name:      "service_messages_dispatched_total",
			Help:      "Total number of incoming service messages dispatched.",
		},
		[]string{"content_type", "instruction"},
	)

	dispatchDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "letro",
			Name:      "service_message_handling_duration_seconds",
			Help:      "Duration of incoming service message handling.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"content_type"},
	)

	pairingEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "letro",
			Name:      "contact_pairing_events_total",
			Help:      "Contact pairing requests by result.",
		},
		[]string{"result"}, // stored, matched, refused
	)

	accountCreationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "letro",
			Name:      "account_creations_total",
			Help:      "VeraId account creation attempts by result.",
		},
		[]string{"result"},
	)

	userNameConflictsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "letro",
			Name:      "veraid_user_name_conflicts_total",
			Help:      "Member creations refused because the user name was taken.",
		},
	)

	connectionParamsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "letro",
			Name:      "connection_params_requests_total",
			Help:      "Connection params retrievals by result.",
		},
		[]string{"result"},
	)

	expiredPairingRequestsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "letro",
			Name:      "expired_pairing_requests_deleted_total",
			Help:      "Pairing requests deleted after their retention window.",
		},
	)
)
