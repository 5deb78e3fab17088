// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HoldAttempts counts HOLD creation attempts by outcome
	// (created, replayed, slot_unavailable, rate_limited, invalid, error).
	HoldAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_hold_attempts_total",
			Help: "HOLD creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_reservation_transitions_total",
			Help: "Committed reservation state transitions",
		},
		[]string{"from", "to"},
	)

	LockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clinic_doctor_lock_wait_seconds",
			Help:    "Time spent waiting for the per-doctor lock",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	SweeperExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_sweeper_expired_total",
			Help: "Reservations moved to EXPIRED by the sweeper, by previous status",
		},
		[]string{"from"},
	)

	RemindersQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_reminders_queued_total",
			Help: "REMINDER_24H records created",
		},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_notification_deliveries_total",
			Help: "Notification delivery attempts by resulting status",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinic_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
