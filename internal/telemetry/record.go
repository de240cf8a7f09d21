package telemetry

import (
	"context"
	"strconv"
	"time"
)

// QueueSnapshot is one partition's metrics field in the telemetry record,
// spec §6: queueDepth, oldestEventAge, partitionLag, throughputPerSecond,
// errorRate.
type QueueSnapshot struct {
	Partition           int
	Depth               int
	OldestEventAge      time.Duration
	Lag                 int
	ThroughputPerSecond float64
	ErrorRate           float64
}

// WorkerSnapshot is one task type's row in the telemetry record's workers[]
// field.
type WorkerSnapshot struct {
	TaskType  string
	Active    int64
	Completed int64
	Failed    int64
}

// ErrorSample is one recent error kept for the errors.samples field.
type ErrorSample struct {
	Code      string
	Message   string
	Timestamp time.Time
}

// ErrorSummary is the telemetry record's errors{count,types,samples} field.
type ErrorSummary struct {
	Count   int
	Types   map[string]int
	Samples []ErrorSample
}

// Record is the full telemetry snapshot of spec §6:
// {timestamp, pipeline, queues, workers[], errors{count,types,samples},
// performance{cpu,memory,diskIO,networkIO}}.
type Record struct {
	Timestamp   time.Time
	Pipeline    string // pipeline name passed to NewCollector; no run state is tracked
	Queues      []QueueSnapshot
	Workers     []WorkerSnapshot
	Errors      ErrorSummary
	Performance HostPerformance
}

// QueueSource reports per-partition queue depth. Collector fills only
// QueueSnapshot.Depth from it; OldestEventAge, Lag, ThroughputPerSecond and
// ErrorRate stay zero.
type QueueSource interface {
	Depth(ctx context.Context, partition int) (int, error)
}

// WorkerSource reports the current worker-pool snapshot. Adapted from
// workerpool.Pool.Metrics() by the caller wiring the pool together, since
// Pool tracks aggregate counters rather than a telemetry-shaped struct.
type WorkerSource interface {
	Snapshot() []WorkerSnapshot
}

// Collector assembles Records on demand from its wired sources. Grounded on
// tracing/metrics.go's registration style for the Prometheus side and the
// teacher's logrus-field error logging for the rolling error-sample buffer.
type Collector struct {
	pipelineName string
	queues       QueueSource
	partitions   int
	workers      WorkerSource
	sampler      *Sampler
	metrics      *Metrics

	errs *errorRing
}

// NewCollector builds a Collector. sampler may be nil (performance fields
// stay zero), workers may be nil (workers[] stays empty).
func NewCollector(pipelineName string, queues QueueSource, partitions int, workers WorkerSource, sampler *Sampler, metrics *Metrics) *Collector {
	return &Collector{
		pipelineName: pipelineName,
		queues:       queues,
		partitions:   partitions,
		workers:      workers,
		sampler:      sampler,
		metrics:      metrics,
		errs:         newErrorRing(50),
	}
}

// RecordError appends an error observation, surfaced in the next Snapshot's
// errors.samples and counted toward errors.types.
func (c *Collector) RecordError(code, message string) {
	c.errs.add(ErrorSample{Code: code, Message: message, Timestamp: time.Now()})
	if c.metrics != nil {
		c.metrics.ErrorsTotal.WithLabelValues(code).Inc()
	}
}

// Snapshot assembles one Record from the collector's wired sources.
func (c *Collector) Snapshot(ctx context.Context) Record {
	rec := Record{
		Timestamp: time.Now(),
		Pipeline:  c.pipelineName,
	}

	if c.queues != nil {
		for p := 0; p < c.partitions; p++ {
			depth, err := c.queues.Depth(ctx, p)
			if err != nil {
				continue
			}
			snap := QueueSnapshot{Partition: p, Depth: depth}
			if c.metrics != nil {
				c.metrics.QueueDepth.WithLabelValues(strconv.Itoa(p)).Set(float64(depth))
			}
			rec.Queues = append(rec.Queues, snap)
		}
	}

	if c.workers != nil {
		rec.Workers = c.workers.Snapshot()
	}

	if c.sampler != nil {
		rec.Performance = c.sampler.Latest()
	}

	count, types, samples := c.errs.summary()
	rec.Errors = ErrorSummary{Count: count, Types: types, Samples: samples}

	return rec
}
