package snapshotstore

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// Backend is an optional persistence layer beneath the in-memory store. The
// default Store works entirely in memory; a BoltBackend (bolt.go) is used
// when configuration requests enablePersistence with persistenceType=bolt.
type Backend interface {
	Save(s *graphmodel.Snapshot) error
	Load(id string) (*graphmodel.Snapshot, error)
	Delete(id string) error
}

// Config tunes the store, matching spec §6's Rollback config surface for the
// snapshot-relevant fields.
type Config struct {
	MaxSnapshotSize int64 // bytes, default 10 MiB
	Backend         Backend
}

// DefaultConfig returns spec §6 defaults.
func DefaultConfig() Config {
	return Config{MaxSnapshotSize: 10 * 1024 * 1024}
}

// Store is the checksum-validated snapshot container from spec §4.3.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*graphmodel.Snapshot
	byPoint   map[string]map[string]bool // rollbackPointId -> set<snapshotId>
	totalSize int64
	cfg       Config
	log       *logrus.Entry
}

// New constructs a Store. A nil logger falls back to a component-scoped
// entry off the standard logger.
func New(cfg Config, log *logrus.Entry) *Store {
	if cfg.MaxSnapshotSize <= 0 {
		cfg.MaxSnapshotSize = DefaultConfig().MaxSnapshotSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "snapshotstore")
	}
	return &Store{
		snapshots: make(map[string]*graphmodel.Snapshot),
		byPoint:   make(map[string]map[string]bool),
		cfg:       cfg,
		log:       log,
	}
}

// Create deep-clones data, serializes it to the canonical tagged form,
// rejects oversized payloads, and indexes the result under rollbackPointID.
func (s *Store) Create(rollbackPointID string, typ graphmodel.SnapshotType, data interface{}, metadata map[string]interface{}) (*graphmodel.Snapshot, error) {
	payload, err := Serialize(data)
	if err != nil {
		return nil, graphmodel.Wrap(graphmodel.ErrSnapshotCorrupted, "failed to serialize snapshot data", err, false)
	}

	size := int64(len(payload))
	if size > s.cfg.MaxSnapshotSize {
		return nil, graphmodel.New(graphmodel.ErrSnapshotTooLarge, "snapshot exceeds maxSnapshotSize", map[string]interface{}{
			"size": size, "maxSnapshotSize": s.cfg.MaxSnapshotSize,
		})
	}

	sum := sha256.Sum256(payload)
	snap := &graphmodel.Snapshot{
		ID:              uuid.NewString(),
		RollbackPointID: rollbackPointID,
		Type:            typ,
		Data:            payload,
		Size:            size,
		CreatedAt:       time.Now(),
		Checksum:        hex.EncodeToString(sum[:]),
		Metadata:        metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID] = snap
	if s.byPoint[rollbackPointID] == nil {
		s.byPoint[rollbackPointID] = make(map[string]bool)
	}
	s.byPoint[rollbackPointID][snap.ID] = true
	s.totalSize += size

	if s.cfg.Backend != nil {
		if err := s.cfg.Backend.Save(snap); err != nil {
			s.log.WithError(err).WithField("snapshot_id", snap.ID).Warn("snapshot persistence backend write failed")
		}
	}

	return snap, nil
}

// Get returns the snapshot for id, verifying its checksum. A mismatch
// raises SNAPSHOT_CORRUPTED per spec §3's integrity invariant.
func (s *Store) Get(id string) (*graphmodel.Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[id]
	s.mu.RUnlock()
	if !ok {
		return nil, graphmodel.New(graphmodel.ErrSnapshotNotFound, "snapshot not found", map[string]interface{}{"id": id})
	}

	sum := sha256.Sum256(snap.Data)
	if hex.EncodeToString(sum[:]) != snap.Checksum {
		return nil, graphmodel.New(graphmodel.ErrSnapshotCorrupted, "checksum mismatch", map[string]interface{}{"id": id})
	}
	return snap, nil
}

// Restore deserializes a snapshot's data, re-materializing tagged containers.
func (s *Store) Restore(id string) (interface{}, error) {
	snap, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return Deserialize(snap.Data)
}

// Delete removes one snapshot, updating the reverse index and size counter.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil // idempotent
	}
	delete(s.snapshots, id)
	s.totalSize -= snap.Size
	if set, ok := s.byPoint[snap.RollbackPointID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byPoint, snap.RollbackPointID)
		}
	}
	if s.cfg.Backend != nil {
		if err := s.cfg.Backend.Delete(id); err != nil {
			s.log.WithError(err).WithField("snapshot_id", id).Warn("snapshot persistence backend delete failed")
		}
	}
	return nil
}

// DeleteForPoint removes every snapshot owned by rollbackPointID.
func (s *Store) DeleteForPoint(rollbackPointID string) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byPoint[rollbackPointID]))
	for id := range s.byPoint[rollbackPointID] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.Delete(id); err != nil {
			return err
		}
	}
	return nil
}

// IDsForPoint returns the snapshot IDs currently owned by rollbackPointID.
func (s *Store) IDsForPoint(rollbackPointID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byPoint[rollbackPointID]))
	for id := range s.byPoint[rollbackPointID] {
		ids = append(ids, id)
	}
	return ids
}

// TotalSize returns the sum of Size across all stored snapshots.
func (s *Store) TotalSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSize
}

// Cleanup deletes snapshots no longer referenced by any rollback point. The
// caller (rollback store) supplies the set of currently-live point IDs since
// this package doesn't itself track rollback point lifecycle.
func (s *Store) Cleanup(livePointIDs map[string]bool) int {
	s.mu.Lock()
	var orphaned []string
	for pointID, ids := range s.byPoint {
		if livePointIDs[pointID] {
			continue
		}
		for id := range ids {
			orphaned = append(orphaned, id)
		}
	}
	s.mu.Unlock()

	for _, id := range orphaned {
		_ = s.Delete(id)
	}
	return len(orphaned)
}
