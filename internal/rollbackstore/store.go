// Package rollbackstore is the LRU+TTL container for rollback points and
// operations (spec §4.4). Grounded on statemanager/manager.go's Manager
// (map + linear-scan eviction) and statemanager/operation.go's
// OperationState/Status enum, but the hand-rolled oldest-scan is replaced by
// hashicorp/golang-lru/v2 for O(1) eviction with the same
// least-recently-accessed semantics. Lifecycle events are published through
// an eventstream.Broker grounded on cuemby-warren/pkg/events.Broker.
package rollbackstore

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/eventstream"
	"github.com/memento-graph/memento/internal/graphmodel"
)

// Config matches spec §6's Store configuration.
type Config struct {
	MaxItems          int
	DefaultTTL        time.Duration
	EnableLRU         bool
	CleanupInterval   time.Duration
	OperationRetention time.Duration // completed operations older than this are swept
}

// DefaultConfig returns spec §6 defaults.
func DefaultConfig() Config {
	return Config{
		MaxItems:           50,
		DefaultTTL:         24 * time.Hour,
		EnableLRU:          true,
		CleanupInterval:    5 * time.Minute,
		OperationRetention: 24 * time.Hour,
	}
}

type pointEntry struct {
	point *graphmodel.RollbackPoint
}

type opEntry struct {
	op *graphmodel.RollbackOperation
}

// Store holds rollback points and operations with LRU eviction and lazy/eager
// TTL expiry.
type Store struct {
	mu         sync.Mutex
	points     *lru.Cache[string, *pointEntry]
	operations *lru.Cache[string, *opEntry]
	cfg        Config
	broker     *eventstream.Broker
	log        *logrus.Entry
}

// New constructs a Store. broker may be nil, in which case lifecycle events
// are not published.
func New(cfg Config, broker *eventstream.Broker, log *logrus.Entry) (*Store, error) {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig().MaxItems
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "rollbackstore")
	}

	s := &Store{cfg: cfg, broker: broker, log: log}

	points, err := lru.NewWithEvict[string, *pointEntry](cfg.MaxItems, func(id string, _ *pointEntry) {
		s.publish("rollback-point-removed", map[string]interface{}{"id": id, "reason": "lru_eviction"})
	})
	if err != nil {
		return nil, err
	}
	operations, err := lru.New[string, *opEntry](cfg.MaxItems)
	if err != nil {
		return nil, err
	}
	s.points = points
	s.operations = operations
	return s, nil
}

func (s *Store) publish(name string, data map[string]interface{}) {
	if s.broker != nil {
		s.broker.Publish(name, data)
	}
}

// PutPoint stores a rollback point, evicting the least-recently-used point
// if the store is at capacity.
func (s *Store) PutPoint(p *graphmodel.RollbackPoint) {
	s.mu.Lock()
	s.points.Add(p.ID, &pointEntry{point: p})
	s.mu.Unlock()
	s.publish("rollback-point-stored", map[string]interface{}{"id": p.ID})
}

// GetPoint returns the rollback point for id. TTL is enforced lazily: if
// ExpiresAt has passed, the point is evicted and ROLLBACK_POINT_EXPIRED is
// raised instead of a found value.
func (s *Store) GetPoint(id string) (*graphmodel.RollbackPoint, error) {
	s.mu.Lock()
	entry, ok := s.points.Get(id)
	if !ok {
		s.mu.Unlock()
		return nil, graphmodel.New(graphmodel.ErrRollbackPointNotFound, "rollback point not found", map[string]interface{}{"id": id})
	}
	if entry.point.ExpiresAt != nil && entry.point.ExpiresAt.Before(time.Now()) {
		s.points.Remove(id)
		s.mu.Unlock()
		s.publish("rollback-point-expired", map[string]interface{}{"id": id})
		return nil, graphmodel.New(graphmodel.ErrRollbackPointExpired, "rollback point expired", map[string]interface{}{"id": id})
	}
	s.mu.Unlock()
	return entry.point, nil
}

// PeekPoint returns the rollback point without refreshing its LRU recency or
// checking expiry, so reading through it does not perturb eviction order.
func (s *Store) PeekPoint(id string) (*graphmodel.RollbackPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.points.Peek(id)
	if !ok {
		return nil, false
	}
	return entry.point, true
}

// DeletePoint removes a rollback point. Returns false without error if it
// did not exist, per spec §8's boundary behavior.
func (s *Store) DeletePoint(id string) bool {
	s.mu.Lock()
	removed := s.points.Remove(id)
	s.mu.Unlock()
	if removed {
		s.publish("rollback-point-removed", map[string]interface{}{"id": id, "reason": "deleted"})
	}
	return removed
}

// ListPoints returns every currently-held rollback point (no TTL filtering).
func (s *Store) ListPoints() []*graphmodel.RollbackPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.points.Keys()
	out := make([]*graphmodel.RollbackPoint, 0, len(keys))
	for _, k := range keys {
		if entry, ok := s.points.Peek(k); ok {
			out = append(out, entry.point)
		}
	}
	return out
}

// PutOperation stores or updates an operation.
func (s *Store) PutOperation(op *graphmodel.RollbackOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations.Add(op.ID, &opEntry{op: op})
}

// GetOperation returns the operation for id.
func (s *Store) GetOperation(id string) (*graphmodel.RollbackOperation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.operations.Get(id)
	if !ok {
		return nil, false
	}
	return entry.op, true
}

// ListOperations returns every tracked operation.
func (s *Store) ListOperations() []*graphmodel.RollbackOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.operations.Keys()
	out := make([]*graphmodel.RollbackOperation, 0, len(keys))
	for _, k := range keys {
		if entry, ok := s.operations.Peek(k); ok {
			out = append(out, entry.op)
		}
	}
	return out
}

// CleanupResult reports what Cleanup removed.
type CleanupResult struct {
	RemovedPoints     int
	RemovedOperations int
}

// Cleanup removes expired rollback points and completed operations older
// than OperationRetention (spec §4.4).
func (s *Store) Cleanup() CleanupResult {
	now := time.Now()
	var result CleanupResult

	s.mu.Lock()
	var expiredPoints []string
	for _, id := range s.points.Keys() {
		entry, ok := s.points.Peek(id)
		if !ok {
			continue
		}
		if entry.point.ExpiresAt != nil && entry.point.ExpiresAt.Before(now) {
			expiredPoints = append(expiredPoints, id)
		}
	}
	for _, id := range expiredPoints {
		s.points.Remove(id)
	}
	result.RemovedPoints = len(expiredPoints)

	var staleOps []string
	for _, id := range s.operations.Keys() {
		entry, ok := s.operations.Peek(id)
		if !ok {
			continue
		}
		if entry.op.IsTerminal() && entry.op.CompletedAt != nil &&
			now.Sub(*entry.op.CompletedAt) > s.cfg.OperationRetention {
			staleOps = append(staleOps, id)
		}
	}
	for _, id := range staleOps {
		s.operations.Remove(id)
	}
	result.RemovedOperations = len(staleOps)
	s.mu.Unlock()

	for _, id := range expiredPoints {
		s.publish("rollback-point-expired", map[string]interface{}{"id": id})
	}
	s.publish("cleanup-completed", map[string]interface{}{
		"removedPoints": result.RemovedPoints, "removedOperations": result.RemovedOperations,
	})
	return result
}

// Clear empties both maps and publishes store-cleared.
func (s *Store) Clear() {
	s.mu.Lock()
	s.points.Purge()
	s.operations.Purge()
	s.mu.Unlock()
	s.publish("store-cleared", nil)
}

// Shutdown publishes store-shutdown; the caller is responsible for stopping
// any background sweeper it started separately (see Sweeper).
func (s *Store) Shutdown() {
	s.publish("store-shutdown", nil)
}
