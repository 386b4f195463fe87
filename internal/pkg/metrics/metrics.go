// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkmail_dispatch_runs_total",
		Help: "Dispatch runs by final result",
	}, []string{"result"})

	DispatchSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkmail_dispatch_sends_total",
		Help: "Per-recipient send attempts by outcome",
	}, []string{"transport", "outcome"})

	DispatchSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulkmail_dispatch_send_duration_seconds",
		Help:    "Time taken by a single transport send",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport"})

	DispatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulkmail_dispatch_runs_in_flight",
		Help: "Dispatch runs currently in their send loop",
	})

	TrackingEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkmail_tracking_events_total",
		Help: "Inbound tracking events by type and result",
	}, []string{"event", "result"})

	WatchdogReverted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkmail_watchdog_reverted_total",
		Help: "Stale sending campaigns rolled back to draft",
	})
)
