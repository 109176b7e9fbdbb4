package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modqueue_notifications_total",
			Help: "Notification delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	ReviewResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modqueue_review_resolutions_total",
			Help: "Resolved reviews by verdict",
		},
		[]string{"verdict"},
	)

	PendingRedeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modqueue_pending_redeliveries_total",
			Help: "Queued notifications flushed after a user opened a DM",
		},
	)
)
