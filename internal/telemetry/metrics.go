// Package telemetry assembles the pipeline observability record from spec
// §6: timestamp, pipeline name, per-partition queue metrics, worker
// counters, recent errors, and host resource usage. Grounded on the
// teacher's tracing package (tracing/metrics.go's promauto.New*Vec
// registration style) and its logrus-field-based observability elsewhere —
// no tracing spans are added, since distributed tracing belongs to the
// out-of-scope HTTP/MCP gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the pipeline registers.
type Metrics struct {
	QueueDepth    *prometheus.GaugeVec
	OldestEventAgeSeconds *prometheus.GaugeVec
	PartitionLag  *prometheus.GaugeVec
	Throughput    *prometheus.GaugeVec
	ErrorRate     *prometheus.GaugeVec

	WorkersActive   *prometheus.GaugeVec
	TasksProcessed  *prometheus.CounterVec
	TasksFailed     *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec

	BatchesCommitted *prometheus.CounterVec
	BatchesFailed    *prometheus.CounterVec

	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics registers every collector under namespace (defaulting to
// "memento" like the teacher defaults tracing metrics to "eve_tracing").
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "memento"
	}

	return &Metrics{
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of pending events per partition.",
		}, []string{"partition"}),

		OldestEventAgeSeconds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_oldest_event_age_seconds",
			Help:      "Age of the oldest unprocessed event per partition.",
		}, []string{"partition"}),

		PartitionLag: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_partition_lag",
			Help:      "Number of events behind the head per partition.",
		}, []string{"partition"}),

		Throughput: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_throughput_per_second",
			Help:      "Events processed per second, by stage.",
		}, []string{"stage"}),

		ErrorRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_error_rate",
			Help:      "Fraction of recent operations that failed, by stage.",
		}, []string{"stage"}),

		WorkersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_active",
			Help:      "Currently busy workers per task type.",
		}, []string{"task_type"}),

		TasksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_tasks_processed_total",
			Help:      "Tasks completed successfully per task type.",
		}, []string{"task_type"}),

		TasksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_tasks_failed_total",
			Help:      "Tasks that failed permanently per task type.",
		}, []string{"task_type"}),

		TaskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_task_duration_seconds",
			Help:      "Task processing duration by task type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task_type"}),

		BatchesCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_commits_total",
			Help:      "Batches committed per fragment type.",
		}, []string{"fragment_type"}),

		BatchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_commit_failures_total",
			Help:      "Batches that exhausted retries per fragment type.",
		}, []string{"fragment_type"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors observed across the pipeline, by error code.",
		}, []string{"code"}),
	}
}
