// Package metrics registers the Prometheus instruments for the lead router.
// Counters are package-level and registered via promauto; cmd/server exposes
// them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LeadsAssigned counts successful assignment writes by funnel.
	LeadsAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadrouter",
		Name:      "leads_assigned_total",
		Help:      "Leads assigned to an organization or user.",
	}, []string{"funnel"})

	// LeadsUnassigned counts terminal unassigned outcomes by funnel and reason.
	LeadsUnassigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadrouter",
		Name:      "leads_unassigned_total",
		Help:      "Leads that exhausted every candidate rule.",
	}, []string{"funnel", "reason"})

	// Notifications counts channel sends by channel and outcome.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadrouter",
		Name:      "notifications_total",
		Help:      "Notification channel sends.",
	}, []string{"channel", "outcome"})

	// CapRejections counts candidates skipped because a period cap was hit.
	CapRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadrouter",
		Name:      "cap_rejections_total",
		Help:      "Assignment candidates rejected by a period cap.",
	}, []string{"period"})

	// BatchMessages counts processed queue messages by handler and outcome
	// (ok, failed, dropped, skipped).
	BatchMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadrouter",
		Name:      "batch_messages_total",
		Help:      "Queue messages processed by the batch handlers.",
	}, []string{"handler", "outcome"})
)
