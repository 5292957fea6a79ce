package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Events counts accepted check-ins and check-outs by event status.
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "events_total",
		Help:      "Accepted attendance events.",
	}, []string{"type", "status"})

	// Rejections counts refused events by error kind.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "rejections_total",
		Help:      "Rejected attendance events.",
	}, []string{"type", "kind"})

	// EventDuration observes end-to-end processing time of one event.
	EventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "event_duration_seconds",
		Help:      "Time to process a check-in or check-out.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})

	// Absences counts absence entries written by the reconciler.
	Absences = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "absences_marked_total",
		Help:      "Absence entries written by reconciliation sweeps.",
	})

	// Sweeps counts reconciliation sweeps by outcome.
	Sweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "reconcile_sweeps_total",
		Help:      "Reconciliation sweeps.",
	}, []string{"outcome"})

	// SweepFailures counts per-student failures inside sweeps.
	SweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "reconcile_failures_total",
		Help:      "Per-student reconciliation failures.",
	}, []string{"retryable"})

	// Notifications counts delivered and failed notifications.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "notifications_total",
		Help:      "Notification deliveries by result.",
	}, []string{"result"})
)
