// Package metrics holds the Prometheus collectors for the responder and the
// admin HTTP surface. Labels are fixed enumerations to keep cardinality
// bounded; contact identifiers never become labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// InboundMessages counts inbound messages by how the engine handled them
	// (responded, ignored, paused, reactivated, handoff, failed).
	InboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_inbound_messages_total",
			Help: "Inbound chat messages by outcome.",
		},
		[]string{"outcome"},
	)

	// Matches counts matcher results by kind and by the step that matched.
	Matches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_matches_total",
			Help: "Trigger matcher results.",
		},
		[]string{"kind", "by"},
	)

	PartsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_parts_sent_total",
			Help: "Response parts delivered to the transport.",
		},
		[]string{"kind"},
	)

	DispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_dispatch_errors_total",
			Help: "Response parts the transport failed to deliver.",
		},
		[]string{"kind"},
	)

	// ScheduledMessages counts scheduler outcomes per item (sent, failed).
	ScheduledMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_scheduled_messages_total",
			Help: "Scheduled message dispatch results.",
		},
		[]string{"result"},
	)

	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoresponder_processing_duration_seconds",
			Help:    "Time spent handling one inbound message, including delivery.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(
		InboundMessages, Matches, PartsSent, DispatchErrors, ScheduledMessages, ProcessingDuration,
		httpReqs, httpLat, httpInflight,
	)
}
