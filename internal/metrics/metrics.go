package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync metrics
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peyk_poll_cycles_total",
			Help: "Total poll cycles by result",
		},
		[]string{"result"}, // "ok", "transport_error", "store_error"
	)

	EventsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peyk_events_fetched_total",
			Help: "Total events returned by the feed",
		},
	)

	EventsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peyk_events_applied_total",
			Help: "Total events applied as new messages",
		},
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peyk_events_skipped_total",
			Help: "Total events consumed without producing a message",
		},
		[]string{"reason"}, // "duplicate", "ignored"
	)

	// Dispatch metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peyk_messages_sent_total",
			Help: "Total messages sent through the dispatcher",
		},
	)

	SubmitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peyk_submit_failures_total",
			Help: "Total feed submissions that failed or timed out",
		},
	)

	// Store metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peyk_store_latency_seconds",
			Help:    "Event store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"op"},
	)

	ProcessedPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peyk_processed_pruned_total",
			Help: "Total processed-event markers removed by retention sweeps",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peyk_http_requests_total",
			Help: "Total HTTP requests on the local API",
		},
		[]string{"method", "path", "status"},
	)
)
