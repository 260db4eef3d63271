package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Trigger engine metrics
	TriggerOutcomes *prometheus.CounterVec
	RenderWarnings  prometheus.Counter
	HandleLatency   prometheus.Histogram

	// Dispatch metrics
	MessagesQueued  prometheus.Counter
	MessagesSent    prometheus.Counter
	MessagesFailed  prometheus.Counter
	DispatchRetries *prometheus.CounterVec
	DispatchLatency prometheus.Histogram
	QueueDepth      prometheus.Gauge

	// Delivery tracker metrics
	ReceiptsApplied   *prometheus.CounterVec
	ReceiptsDiscarded prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		TriggerOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "trigger_outcomes_total",
			Help:      "Trigger engine outcomes by trigger type and result",
		}, []string{"trigger_type", "outcome"}),
		RenderWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "render_warnings_total",
			Help:      "Renders with unresolved placeholders or truncation",
		}),
		HandleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handle_event_duration_seconds",
			Help:      "Time spent evaluating a trigger event",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		MessagesQueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_queued_total",
			Help:      "Messages accepted for dispatch",
		}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Messages accepted by the carrier",
		}),
		MessagesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_failed_total",
			Help:      "Messages that reached terminal failed status",
		}),
		DispatchRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_retry_attempts_total",
			Help:      "Retry attempts against the carrier",
		}, []string{"error_class"}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent submitting a message to the carrier",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_queue_depth",
			Help:      "Messages waiting in the dispatch queue",
		}),
		ReceiptsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "receipts_applied_total",
			Help:      "Delivery receipts applied by resulting status",
		}, []string{"status"}),
		ReceiptsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "receipts_discarded_total",
			Help:      "Receipts for unknown refs or terminal messages",
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}
