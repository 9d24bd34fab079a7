package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsHandled tracks classified errors by kind and severity
	ErrorsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_errors_handled_total",
			Help: "Total number of errors classified by the handler",
		},
		[]string{"kind", "severity", "source"},
	)

	// CrashReports tracks crash reporter submissions
	CrashReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_crash_reports_total",
			Help: "Total number of reports sent to the crash reporter",
		},
		[]string{"type", "result"},
	)

	// RetriesScheduled tracks automatic retries scheduled by the handler
	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retries_scheduled_total",
			Help: "Total number of automatic retries scheduled",
		},
		[]string{"kind"},
	)

	// RetryTimers tracks outstanding retry timers
	RetryTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_retry_timers",
			Help: "Number of retry timers currently waiting to fire",
		},
	)

	// QueueItems tracks queued actions by status
	QueueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_queue_items",
			Help: "Number of items in the offline queue by status",
		},
		[]string{"status"},
	)

	// QueueProcessed tracks per-item outcomes of process passes
	QueueProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_queue_processed_total",
			Help: "Total number of queue items processed by outcome",
		},
		[]string{"type", "result"},
	)

	// QueueEvictions tracks items dropped to keep the queue bounded
	QueueEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_queue_evictions_total",
			Help: "Total number of queue items evicted at capacity",
		},
		[]string{"status"},
	)

	// QueueStoreLatency tracks persisted store round trips
	QueueStoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_queue_store_latency_seconds",
			Help:    "Latency of queue store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Deferrals tracks execution wrapper decisions
	Deferrals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_run_or_defer_total",
			Help: "Total number of run-or-defer decisions by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// Online is 1 while the network monitor reports connectivity
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_network_online",
			Help: "1 when the device is online, 0 otherwise",
		},
	)

	// SyncPasses tracks reconnect-driven and manual process passes
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_sync_passes_total",
			Help: "Total number of queue process passes",
		},
		[]string{"trigger"},
	)
)
