package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "card_inventory"

// Ledger Metrics
var (
	LedgerAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_adjustments_total",
			Help:      "Ledger events appended, by event type.",
		},
		[]string{"type"},
	)

	LedgerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rejections_total",
			Help:      "Adjustments refused, by error kind.",
		},
		[]string{"kind"},
	)

	LedgerConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_version_conflicts_total",
			Help:      "Compare-and-set retries on lot ledger versions.",
		},
	)
)

// Channel Metrics
var (
	ChannelPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_pushes_total",
			Help:      "Quantity pushes to sales channels, by provider and result.",
		},
		[]string{"provider", "result"},
	)

	ChannelPushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_push_duration_seconds",
			Help:      "Latency of quantity pushes.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	OrdersApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_order_lines_total",
			Help:      "Order lines pulled from channels, by outcome.",
		},
		[]string{"provider", "outcome"},
	)
)

// Reconciliation Metrics
var (
	MismatchesRaised = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mismatches_raised_total",
			Help:      "Pending mismatches created by scans.",
		},
	)

	MismatchesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mismatches_resolved_total",
			Help:      "Mismatches closed, by resolution.",
		},
		[]string{"resolution"},
	)

	ScanPollFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_poll_failures_total",
			Help:      "Channel polls that failed during scans.",
		},
	)
)

// Import Metrics
var (
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Import rows processed, by outcome.",
		},
		[]string{"outcome"},
	)

	ImportTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_tasks_total",
			Help:      "Import tasks finished, by final status.",
		},
		[]string{"status"},
	)
)

// Worker Metrics
var (
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_jobs_total",
			Help:      "Background jobs processed, by job name and result.",
		},
		[]string{"job", "result"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Jobs waiting in the worker queue.",
		},
	)
)
