// Package metrics exposes Prometheus collectors for the relay pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrelay_messages_processed_total",
			Help: "Total number of inbound messages handled by the pipeline",
		},
		[]string{"outcome"}, // duplicate, denied, no_match, forwarded, persistence_error
	)

	ForwardDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailrelay_forward_duration_seconds",
			Help:    "Duration of the delivery step per forwarded message",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Delivery metrics
var (
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrelay_delivery_attempts_total",
			Help: "Total number of per-recipient send attempts",
		},
		[]string{"result"},
	)

	RecipientOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrelay_recipient_outcomes_total",
			Help: "Final per-recipient delivery outcomes after retries",
		},
		[]string{"status"},
	)
)

// Notification metrics
var (
	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailrelay_notification_failures_total",
			Help: "Total number of sender notifications that failed to send",
		},
	)
)
