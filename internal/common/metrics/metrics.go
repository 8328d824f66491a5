// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueItemsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_queue_items_enqueued_total",
			Help: "Total number of work items added to the queue",
		},
		[]string{"queue_type"},
	)

	QueueItemsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_queue_items_completed_total",
			Help: "Total number of work items completed",
		},
		[]string{"queue_type"},
	)

	QueueItemsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_queue_items_failed_total",
			Help: "Total number of work item attempts that failed",
		},
		[]string{"queue_type", "error_code", "terminal"},
	)

	QueueItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notifier_queue_item_duration_seconds",
			Help: "Duration of work item handling in seconds",
		},
		[]string{"queue_type"},
	)

	QueueTicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_queue_ticks_skipped_total",
			Help: "Processor ticks skipped because a batch was still running",
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifier_queue_depth",
			Help: "Number of work items per status and queue type",
		},
		[]string{"status", "queue_type"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_total",
			Help: "Total number of notification deliveries by outcome",
		},
		[]string{"type", "status"},
	)

	NotificationsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_deduplicated_total",
			Help: "Jobs dropped from a notification because they were already sent",
		},
		[]string{"type"},
	)

	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_task_runs_total",
			Help: "Total number of scheduled task runs by outcome",
		},
		[]string{"task", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notifier_task_duration_seconds",
			Help: "Duration of scheduled task runs in seconds",
		},
		[]string{"task"},
	)

	TasksActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifier_tasks_active",
			Help: "Number of scheduled task runs in progress",
		},
		[]string{"task"},
	)
)
