// Package observability exposes Prometheus collectors for roster changes.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	membershipChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "directory",
		Name:      "membership_changes_total",
		Help:      "Number of accepted signups and unregistrations, labeled by activity and operation.",
	}, []string{"activity", "operation"})

	rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "directory",
		Name:      "rejections_total",
		Help:      "Number of rejected membership requests, labeled by operation and reason.",
	}, []string{"operation", "reason"})

	rosterSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signup_service",
		Subsystem: "directory",
		Name:      "roster_size",
		Help:      "Current number of participants per activity.",
	}, []string{"activity"})

	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Number of membership events that could not be handed to the publisher.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(membershipChanges, rejections, rosterSize, publishFailures)
}

// RecordMembershipChange counts an accepted change and updates the roster gauge.
func RecordMembershipChange(activity, operation string, count int) {
	membershipChanges.WithLabelValues(activity, operation).Inc()
	rosterSize.WithLabelValues(activity).Set(float64(count))
}

// RecordRosterSize sets the roster gauge directly, used when seeding.
func RecordRosterSize(activity string, count int) {
	rosterSize.WithLabelValues(activity).Set(float64(count))
}

// RecordRejection counts a rejected membership request.
func RecordRejection(operation, reason string) {
	rejections.WithLabelValues(operation, reason).Inc()
}

// RecordPublishFailure counts an event the publisher refused.
func RecordPublishFailure(eventType string) {
	publishFailures.WithLabelValues(eventType).Inc()
}
