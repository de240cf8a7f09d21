// Package eventbus implements the partitioned change-event ingestion queue
// of spec §4.7. Grounded on queue/redis/queue.go's blocking-dequeue/
// processing-set shape (generalized here into in-process channels instead
// of Redis list operations) and worker/pool.go's Queue interface, which
// internal/workerpool consumes without caring whether events came from an
// in-memory bus or a broker-backed one.
package eventbus

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// Config tunes the bus per spec §6's pipeline.queues block.
type Config struct {
	PartitionCount int
	MaxSize        int // total events across all partitions; 0 = unbounded
}

// DefaultConfig returns reasonable defaults for a single-process bus.
func DefaultConfig() Config {
	return Config{PartitionCount: 8, MaxSize: 10000}
}

// Metrics is one point-in-time snapshot of Bus.Metrics.
type Metrics struct {
	QueueDepth          int
	OldestEventAge       time.Duration
	PartitionLag        map[int]int
	ThroughputPerSecond float64
	ErrorRate           float64
}

type partition struct {
	mu      sync.Mutex
	events  []queuedEvent
	emitted int64
	errors  int64
	started time.Time
}

type queuedEvent struct {
	event     graphmodel.ChangeEvent
	enqueued  time.Time
}

// Bus is the partitioned, bounded ingestion queue. Within one partition,
// FIFO order is preserved. Each partition has its own lock, but every
// Enqueue and Dequeue also takes the bus-wide lock guarding the total size,
// so operations on different partitions are not lock-free.
type Bus struct {
	cfg        Config
	log        *logrus.Entry
	partitions []*partition

	mu        sync.Mutex
	totalSize int
}

// New constructs a Bus with cfg.PartitionCount partitions.
func New(cfg Config, log *logrus.Entry) *Bus {
	if cfg.PartitionCount <= 0 {
		cfg.PartitionCount = 8
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	b := &Bus{cfg: cfg, log: log.WithField("component", "eventbus")}
	b.partitions = make([]*partition, cfg.PartitionCount)
	for i := range b.partitions {
		b.partitions[i] = &partition{started: time.Now()}
	}
	return b
}

// PartitionFor returns the partition index a change event is routed to,
// hashing {namespace, module, filePath} per spec §4.7.
func (b *Bus) PartitionFor(e graphmodel.ChangeEvent) int {
	h := fnv.New32a()
	h.Write([]byte(e.Namespace))
	h.Write([]byte{0})
	h.Write([]byte(e.Module))
	h.Write([]byte{0})
	h.Write([]byte(e.FilePath))
	return int(h.Sum32() % uint32(len(b.partitions)))
}

// Enqueue adds an event to its partition. If cfg.MaxSize is set and the bus
// is at capacity, it raises QueueOverflowError naming the bus ("eventbus")
// and its bus-wide current/max sizes; the error is not retryable.
func (b *Bus) Enqueue(e graphmodel.ChangeEvent) error {
	idx := b.PartitionFor(e)
	p := b.partitions[idx]

	b.mu.Lock()
	if b.cfg.MaxSize > 0 && b.totalSize >= b.cfg.MaxSize {
		b.mu.Unlock()
		return &graphmodel.QueueOverflowError{
			QueueName: "eventbus",
			Size:      b.totalSize,
			MaxSize:   b.cfg.MaxSize,
		}
	}
	b.totalSize++
	b.mu.Unlock()

	p.mu.Lock()
	p.events = append(p.events, queuedEvent{event: e, enqueued: time.Now()})
	p.mu.Unlock()

	b.log.WithFields(logrus.Fields{"partition": idx, "eventType": e.EventType}).Debug("event enqueued")
	return nil
}

// Dequeue pops the oldest event from the given partition, or ok=false if
// empty.
func (b *Bus) Dequeue(partitionIdx int) (graphmodel.ChangeEvent, bool) {
	if partitionIdx < 0 || partitionIdx >= len(b.partitions) {
		return graphmodel.ChangeEvent{}, false
	}
	p := b.partitions[partitionIdx]

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return graphmodel.ChangeEvent{}, false
	}
	qe := p.events[0]
	p.events = p.events[1:]
	p.emitted++

	b.mu.Lock()
	b.totalSize--
	b.mu.Unlock()

	return qe.event, true
}

// RecordError increments a partition's error counter for error-rate metrics.
func (b *Bus) RecordError(partitionIdx int) {
	if partitionIdx < 0 || partitionIdx >= len(b.partitions) {
		return
	}
	p := b.partitions[partitionIdx]
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Metrics computes the spec §4.7 metric set across all partitions.
func (b *Bus) Metrics() Metrics {
	m := Metrics{PartitionLag: make(map[int]int, len(b.partitions))}

	var oldest time.Time
	var totalEmitted, totalErrors int64
	var elapsed time.Duration

	for i, p := range b.partitions {
		p.mu.Lock()
		m.QueueDepth += len(p.events)
		m.PartitionLag[i] = len(p.events)
		if len(p.events) > 0 {
			if oldest.IsZero() || p.events[0].enqueued.Before(oldest) {
				oldest = p.events[0].enqueued
			}
		}
		totalEmitted += p.emitted
		totalErrors += p.errors
		if d := time.Since(p.started); d > elapsed {
			elapsed = d
		}
		p.mu.Unlock()
	}

	if !oldest.IsZero() {
		m.OldestEventAge = time.Since(oldest)
	}
	if elapsed > 0 {
		m.ThroughputPerSecond = float64(totalEmitted) / elapsed.Seconds()
	}
	if totalEmitted+totalErrors > 0 {
		m.ErrorRate = float64(totalErrors) / float64(totalEmitted+totalErrors)
	}
	return m
}
