package batchcoordinator

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/graphmodel"
	"github.com/memento-graph/memento/internal/logging"
)

// Writer is the idempotent write layer a committed batch is handed to.
// Implementations key de-duplication on Batch.ID so reprocessing the same
// batch twice is a no-op, per spec §4.9 and the round-trip property in §8.
type Writer interface {
	WriteBatch(ctx context.Context, batch Batch) (processed, failed int, itemErrs map[string]string, err error)
}

// idempotencyEntry records when a batch ID was last successfully committed,
// mirroring queue/redis/queue.go's processing-ZSET-with-deadline idiom: a
// TTL-bounded dedup window instead of an unbounded set.
type idempotencyEntry struct {
	committedAt time.Time
}

// Coordinator accumulates fragments per FragmentType, flushes on size cap /
// timeout / epoch boundary, orders each flush's fragments topologically,
// and commits through a Writer with retry and idempotency.
type Coordinator struct {
	cfg    Config
	writer Writer
	log    *logrus.Entry

	mu      sync.Mutex
	pending map[FragmentType]*pendingBatch
	epoch   string

	idemMu sync.Mutex
	idem   map[string]idempotencyEntry

	flushSem chan struct{}
}

type pendingBatch struct {
	fragments []graphmodel.ChangeFragment
	firstAt   time.Time
}

// New builds a Coordinator bound to writer.
func New(writer Writer, cfg Config, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		writer:   writer,
		log:      logging.OrDefault(log, "batchcoordinator"),
		pending:  make(map[FragmentType]*pendingBatch),
		idem:     make(map[string]idempotencyEntry),
		flushSem: make(chan struct{}, maxInt(cfg.MaxConcurrentBatches, 1)),
	}
}

// SetEpoch crosses an epoch boundary, forcing every currently pending batch
// to flush under the old epoch before new fragments accumulate under the new
// one, per spec §4.9's "epochId boundary" flush trigger.
func (c *Coordinator) SetEpoch(ctx context.Context, epochID string) error {
	c.mu.Lock()
	oldEpoch := c.epoch
	c.epoch = epochID
	types := make([]FragmentType, 0, len(c.pending))
	for t, b := range c.pending {
		if len(b.fragments) > 0 {
			types = append(types, t)
		}
	}
	c.mu.Unlock()

	for _, t := range types {
		if err := c.flush(ctx, t, oldEpoch); err != nil {
			return err
		}
	}
	return nil
}

// Submit adds a fragment to its type's pending batch, flushing immediately
// if the size cap is reached.
func (c *Coordinator) Submit(ctx context.Context, fragment graphmodel.ChangeFragment) error {
	t := fragmentType(fragment)

	c.mu.Lock()
	b, ok := c.pending[t]
	if !ok {
		b = &pendingBatch{firstAt: time.Now()}
		c.pending[t] = b
	}
	if len(b.fragments) == 0 {
		b.firstAt = time.Now()
	}
	b.fragments = append(b.fragments, fragment)
	full := len(b.fragments) >= c.cfg.sizeCapFor(t)
	epoch := c.epoch
	c.mu.Unlock()

	if full {
		return c.flush(ctx, t, epoch)
	}
	return nil
}

// FlushStale flushes any pending batch whose oldest fragment has sat longer
// than cfg.FlushTimeout, the (b) trigger from spec §4.9. Callers run this on
// a ticker.
func (c *Coordinator) FlushStale(ctx context.Context) error {
	c.mu.Lock()
	var due []FragmentType
	now := time.Now()
	for t, b := range c.pending {
		if len(b.fragments) > 0 && now.Sub(b.firstAt) >= c.cfg.FlushTimeout {
			due = append(due, t)
		}
	}
	epoch := c.epoch
	c.mu.Unlock()

	for _, t := range due {
		if err := c.flush(ctx, t, epoch); err != nil {
			return err
		}
	}
	return nil
}

// flush drains the pending batch for t, orders it topologically, and
// commits it (bounded by cfg.MaxConcurrentBatches via flushSem).
func (c *Coordinator) flush(ctx context.Context, t FragmentType, epoch string) error {
	c.mu.Lock()
	b, ok := c.pending[t]
	if !ok || len(b.fragments) == 0 {
		c.mu.Unlock()
		return nil
	}
	fragments := b.fragments
	c.pending[t] = &pendingBatch{firstAt: time.Now()}
	c.mu.Unlock()

	order := TopologicalOrder(fragments)
	if len(order.Cycles) > 0 {
		c.log.WithFields(logrus.Fields{"type": t, "cycleFragments": order.Cycles}).
			Warn("dependency cycle detected in batch, processing in arbitrary order")
	}

	batch := Batch{
		ID:               uuid.NewString(),
		EpochID:          epoch,
		Type:             t,
		Fragments:        order.Ordered,
		CreatedAt:        time.Now(),
		CycleDiagnostics: order.Cycles,
	}

	c.flushSem <- struct{}{}
	defer func() { <-c.flushSem }()

	return c.commitWithRetry(ctx, batch)
}

func (c *Coordinator) commitWithRetry(ctx context.Context, batch Batch) error {
	if c.alreadyCommitted(batch.ID) {
		c.log.WithField("batch", batch.ID).Debug("batch already committed, skipping (idempotent)")
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = c.cfg.RetryPolicy.MaxBackoff
	b.Multiplier = c.cfg.RetryPolicy.BackoffMultiplier

	var lastProcessed, lastFailed int
	var lastItemErrs map[string]string
	attempts := 0

	err := backoff.Retry(func() error {
		attempts++
		processed, failed, itemErrs, err := c.writer.WriteBatch(ctx, batch)
		lastProcessed, lastFailed, lastItemErrs = processed, failed, itemErrs
		if err != nil {
			if attempts >= c.cfg.RetryPolicy.MaxAttempts {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithMaxRetries(b, uint64(maxInt(c.cfg.RetryPolicy.MaxAttempts-1, 0))))

	if err != nil {
		return &graphmodel.BatchProcessingError{
			BatchID:        batch.ID,
			ProcessedCount: lastProcessed,
			FailedCount:    lastFailed,
			ItemFailures:   lastItemErrs,
		}
	}

	c.markCommitted(batch.ID)
	return nil
}

func (c *Coordinator) alreadyCommitted(batchID string) bool {
	c.idemMu.Lock()
	defer c.idemMu.Unlock()
	entry, ok := c.idem[batchID]
	if !ok {
		return false
	}
	if time.Since(entry.committedAt) > c.cfg.IdempotencyTTL {
		delete(c.idem, batchID)
		return false
	}
	return true
}

func (c *Coordinator) markCommitted(batchID string) {
	c.idemMu.Lock()
	c.idem[batchID] = idempotencyEntry{committedAt: time.Now()}
	c.idemMu.Unlock()
}

// SweepIdempotencyKeys evicts dedup entries past cfg.IdempotencyTTL, bounding
// memory growth the way the teacher bounds its Redis processing ZSET with a
// deadline score.
func (c *Coordinator) SweepIdempotencyKeys() int {
	c.idemMu.Lock()
	defer c.idemMu.Unlock()
	removed := 0
	now := time.Now()
	for id, entry := range c.idem {
		if now.Sub(entry.committedAt) > c.cfg.IdempotencyTTL {
			delete(c.idem, id)
			removed++
		}
	}
	return removed
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
