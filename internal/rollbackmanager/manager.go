// Package rollbackmanager ties snapshot capture, diff generation, and
// strategy execution together into named, restorable rollback points.
// Grounded on statemanager/manager.go (StartOperation/CompleteOperation
// bookkeeping) and coordinator/coordinator.go (background-goroutine
// lifecycle with context cancellation and callback-driven phase/progress
// reporting).
package rollbackmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/collaborators"
	"github.com/memento-graph/memento/internal/diffengine"
	"github.com/memento-graph/memento/internal/eventstream"
	"github.com/memento-graph/memento/internal/graphmodel"
	"github.com/memento-graph/memento/internal/rollbackstore"
	"github.com/memento-graph/memento/internal/rollbackstrategy"
	"github.com/memento-graph/memento/internal/snapshotstore"
)

// Config mirrors spec §6's enumerated rollback configuration.
type Config struct {
	MaxRollbackPoints    int
	DefaultTTL           time.Duration
	AutoCleanup          bool
	CleanupInterval      time.Duration
	MaxSnapshotSize      int64
	RequireDatabaseReady bool
}

// DefaultConfig returns spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRollbackPoints:    50,
		DefaultTTL:           24 * time.Hour,
		AutoCleanup:          true,
		CleanupInterval:      5 * time.Minute,
		MaxSnapshotSize:      10 * 1024 * 1024,
		RequireDatabaseReady: true,
	}
}

// CreatePointOptions tunes CreatePoint.
type CreatePointOptions struct {
	Name        string
	Description string
	Metadata    map[string]interface{}
	TTL         time.Duration
}

// RollbackOptions tunes Rollback.
type RollbackOptions struct {
	Strategy       string // empty = use Recommend
	ConflictPolicy rollbackstrategy.ConflictStrategy
	Resolver       rollbackstrategy.Resolver
	DryRun         bool
}

// Manager is the façade every caller (CLI, API, pipeline) drives rollback
// points and operations through.
type Manager struct {
	cfg Config
	log *logrus.Entry

	snapshots *snapshotstore.Store
	points    *rollbackstore.Store
	broker    *eventstream.Broker

	graph   collaborators.KnowledgeGraphService
	session collaborators.SessionManager
	fs      collaborators.FileSystemService
	db      collaborators.DatabaseService

	mu         sync.Mutex
	operations map[string]context.CancelFunc
}

// New wires a Manager from its collaborators and storage layers. Any
// collaborator may be nil except the graph service, which is required for
// snapshot capture to produce anything meaningful.
func New(cfg Config, snapshots *snapshotstore.Store, points *rollbackstore.Store, broker *eventstream.Broker, graph collaborators.KnowledgeGraphService, session collaborators.SessionManager, fs collaborators.FileSystemService, db collaborators.DatabaseService, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		cfg:        cfg,
		log:        log.WithField("component", "rollbackmanager"),
		snapshots:  snapshots,
		points:     points,
		broker:     broker,
		graph:      graph,
		session:    session,
		fs:         fs,
		db:         db,
		operations: make(map[string]context.CancelFunc),
	}
}

func (m *Manager) publish(name string, data map[string]interface{}) {
	if m.broker != nil {
		m.broker.Publish(name, data)
	}
}

// CreatePoint captures a rollback point from every configured collaborator.
// If RequireDatabaseReady is set and the database reports not ready, it
// raises DATABASE_NOT_READY before touching any collaborator.
func (m *Manager) CreatePoint(ctx context.Context, opts CreatePointOptions) (*graphmodel.RollbackPoint, error) {
	if m.cfg.RequireDatabaseReady && m.db != nil {
		ready, err := m.db.IsReady(ctx)
		if err != nil {
			return nil, err
		}
		if !ready {
			return nil, graphmodel.New(graphmodel.ErrDatabaseNotReady, "database is not ready for rollback-point creation", nil)
		}
	}

	id := uuid.NewString()
	snapIDs, err := m.captureSnapshots(ctx, id)
	if err != nil {
		return nil, err
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	sessionID := ""
	if m.session != nil {
		sessionID, _ = m.session.GetCurrentSessionID(ctx)
	}

	point := &graphmodel.RollbackPoint{
		ID:          id,
		Name:        opts.Name,
		Description: opts.Description,
		Timestamp:   time.Now(),
		Metadata:    opts.Metadata,
		SessionID:   sessionID,
		ExpiresAt:   expiresAt,
		SnapshotIDs: snapIDs,
	}
	m.points.PutPoint(point)
	m.publish("rollback-point-created", map[string]interface{}{"pointId": point.ID})
	return point, nil
}

// captureSnapshots fans out sequentially across the configured
// collaborators (spec §5: "proceeds per-collaborator sequentially inside
// one capture to simplify ordering") and returns the created snapshot IDs.
func (m *Manager) captureSnapshots(ctx context.Context, pointID string) ([]string, error) {
	var ids []string

	if m.graph != nil {
		entities, err := m.graph.GetEntities(ctx)
		if err != nil {
			return nil, err
		}
		snap, err := m.snapshots.Create(pointID, graphmodel.SnapshotEntity, entities, nil)
		if err != nil {
			return nil, err
		}
		ids = append(ids, snap.ID)

		rels, err := m.graph.QueryRelationships(ctx, collaborators.RelationshipQuery{})
		if err != nil {
			return nil, err
		}
		snap, err = m.snapshots.Create(pointID, graphmodel.SnapshotRelationship, rels, nil)
		if err != nil {
			return nil, err
		}
		ids = append(ids, snap.ID)
	}

	if m.session != nil {
		sessionID, err := m.session.GetCurrentSessionID(ctx)
		if err == nil && sessionID != "" {
			data, err := m.session.GetSessionData(ctx, sessionID)
			if err == nil && data != nil {
				snap, err := m.snapshots.Create(pointID, graphmodel.SnapshotSessionState, data, nil)
				if err != nil {
					return nil, err
				}
				ids = append(ids, snap.ID)
			}
		}
	}

	if m.fs != nil {
		data, err := m.fs.Snapshot(ctx)
		if err == nil && data != nil {
			snap, err := m.snapshots.Create(pointID, graphmodel.SnapshotFileSystem, data, nil)
			if err != nil {
				return nil, err
			}
			ids = append(ids, snap.ID)
		}
	}

	return ids, nil
}

// GenerateDiff captures the current state to a throwaway point, pairs its
// snapshots with the target point's by type, diffs each pair, and
// concatenates the results. The throwaway snapshots are deleted afterward.
// Entry paths are prefixed with "<type>:" so a later Apply can route a
// resolved entry back to the structure it belongs to.
func (m *Manager) GenerateDiff(ctx context.Context, pointID string) ([]graphmodel.DiffEntry, error) {
	entries, _, err := m.diffWithBaseline(ctx, pointID)
	return entries, err
}

// diffWithBaseline is GenerateDiff plus the restored current-state value per
// snapshot type, which Rollback needs as the working copy strategies apply
// entries against.
func (m *Manager) diffWithBaseline(ctx context.Context, pointID string) ([]graphmodel.DiffEntry, map[graphmodel.SnapshotType]interface{}, error) {
	target, err := m.points.GetPoint(pointID)
	if err != nil {
		return nil, nil, err
	}

	tmpID := "tmp:" + uuid.NewString()
	tmpSnapIDs, err := m.captureSnapshots(ctx, tmpID)
	if err != nil {
		return nil, nil, err
	}
	defer m.snapshots.DeleteForPoint(tmpID)

	targetByType := make(map[graphmodel.SnapshotType]*graphmodel.Snapshot)
	for _, sid := range target.SnapshotIDs {
		s, err := m.snapshots.Get(sid)
		if err != nil {
			continue
		}
		targetByType[s.Type] = s
	}

	var all []graphmodel.DiffEntry
	baseline := make(map[graphmodel.SnapshotType]interface{})
	for _, sid := range tmpSnapIDs {
		cur, err := m.snapshots.Get(sid)
		if err != nil {
			continue
		}
		tgt, ok := targetByType[cur.Type]
		if !ok {
			continue
		}
		if cur.Type != tgt.Type {
			return nil, nil, graphmodel.New(graphmodel.ErrSnapshotTypeMismatch, "snapshot type mismatch during diff generation", nil)
		}

		curValue, err := m.snapshots.Restore(cur.ID)
		if err != nil {
			return nil, nil, err
		}
		tgtValue, err := m.snapshots.Restore(tgt.ID)
		if err != nil {
			return nil, nil, err
		}
		baseline[cur.Type] = curValue

		entries := diffengine.GenerateObjectDiff(curValue, tgtValue, diffengine.DefaultOptions())
		for _, e := range entries {
			e.Path = prefixPath(cur.Type, e.Path)
			all = append(all, e)
		}
	}

	return all, baseline, nil
}

func prefixPath(t graphmodel.SnapshotType, path string) string {
	return string(t) + ":" + path
}

func splitPrefixed(path string) (graphmodel.SnapshotType, string) {
	for i := 0; i < len(path); i++ {
		if path[i] == ':' {
			return graphmodel.SnapshotType(path[:i]), path[i+1:]
		}
	}
	return "", path
}

// Rollback creates and persists an operation, selects a strategy, validates
// it, and executes asynchronously. It returns immediately with a pending
// operation handle; progress and log callbacks propagate through the
// strategy context and are published on the event bus.
func (m *Manager) Rollback(ctx context.Context, pointID string, opts RollbackOptions) (*graphmodel.RollbackOperation, error) {
	point, err := m.points.GetPoint(pointID)
	if err != nil {
		return nil, err
	}

	diff, baseline, err := m.diffWithBaseline(ctx, pointID)
	if err != nil {
		return nil, err
	}
	working := &workingState{values: baseline}

	strategy, err := m.resolveStrategy(opts.Strategy, len(diff), time.Since(point.Timestamp))
	if err != nil {
		return nil, err
	}

	op := &graphmodel.RollbackOperation{
		ID:                    uuid.NewString(),
		Type:                  graphmodel.OperationFull,
		TargetRollbackPointID: pointID,
		Status:                graphmodel.OperationPending,
		StartedAt:             time.Now(),
		Strategy:              strategy.Name(),
	}
	m.points.PutOperation(op)

	if opts.DryRun {
		op.Status = graphmodel.OperationCompleted
		now := time.Now()
		op.CompletedAt = &now
		m.points.PutOperation(op)
		return op, nil
	}

	sc := &rollbackstrategy.Context{
		Diff:             diff,
		RollbackPointAge: time.Since(point.Timestamp),
		ConflictPolicy:   opts.ConflictPolicy,
		Resolver:         opts.Resolver,
		OnProgress: func(p int) {
			op.Progress = p
			m.points.PutOperation(op)
			m.publish("rollback-progress", map[string]interface{}{"operationId": op.ID, "progress": p})
		},
		OnLog: func(entry graphmodel.LogEntry) {
			op.Log = append(op.Log, entry)
			m.points.PutOperation(op)
		},
		Apply:           working.apply,
		DetectConflicts: working.detectConflicts,
		SafetyBackup:    m.safetyBackup(pointID),
	}

	if !strategy.Validate(sc) {
		op.Status = graphmodel.OperationFailed
		op.Error = "strategy validation failed"
		now := time.Now()
		op.CompletedAt = &now
		m.points.PutOperation(op)
		return op, graphmodel.New(graphmodel.ErrStrategyValidationFail, "selected strategy refused this rollback point", map[string]interface{}{
			"strategy": strategy.Name(),
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	rollbackstrategy.Bind(sc, runCtx)

	m.mu.Lock()
	m.operations[op.ID] = cancel
	m.mu.Unlock()

	op.Status = graphmodel.OperationInProgress
	m.points.PutOperation(op)
	m.publish("rollback-started", map[string]interface{}{"operationId": op.ID, "pointId": pointID, "strategy": strategy.Name()})

	go m.run(runCtx, op, strategy, sc, working)

	return op, nil
}

func (m *Manager) run(ctx context.Context, op *graphmodel.RollbackOperation, strategy rollbackstrategy.Strategy, sc *rollbackstrategy.Context, working *workingState) {
	err := strategy.Execute(sc)

	m.mu.Lock()
	delete(m.operations, op.ID)
	m.mu.Unlock()

	now := time.Now()
	op.CompletedAt = &now
	if err != nil {
		if ctx.Err() != nil {
			op.Status = graphmodel.OperationCancelled
			m.points.PutOperation(op)
			m.publish("rollback-cancelled", map[string]interface{}{"operationId": op.ID})
			return
		}
		op.Status = graphmodel.OperationFailed
		op.Error = err.Error()
		m.points.PutOperation(op)
		m.publish("rollback-failed", map[string]interface{}{"operationId": op.ID, "error": err.Error()})
		return
	}

	if persistErr := m.persist(context.Background(), working); persistErr != nil {
		op.Status = graphmodel.OperationFailed
		op.Error = persistErr.Error()
		m.points.PutOperation(op)
		m.publish("rollback-failed", map[string]interface{}{"operationId": op.ID, "error": persistErr.Error()})
		return
	}

	op.Status = graphmodel.OperationCompleted
	op.Progress = 100
	m.points.PutOperation(op)
	m.publish("rollback-completed", map[string]interface{}{"operationId": op.ID})
}

// GetOperation returns a previously started rollback operation by ID, for
// callers polling progress/status.
func (m *Manager) GetOperation(operationID string) (*graphmodel.RollbackOperation, bool) {
	return m.points.GetOperation(operationID)
}

// Cancel marks an in_progress operation cancelled. It is only valid while
// the operation is running.
func (m *Manager) Cancel(operationID string) error {
	op, ok := m.points.GetOperation(operationID)
	if !ok {
		return graphmodel.New(graphmodel.ErrRollbackPointNotFound, "operation not found", map[string]interface{}{"operationId": operationID})
	}
	if op.Status != graphmodel.OperationInProgress {
		return graphmodel.New(graphmodel.ErrStrategyValidationFail, "operation is not in_progress", map[string]interface{}{"status": string(op.Status)})
	}

	m.mu.Lock()
	cancel, ok := m.operations[operationID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// DeletePoint deletes a point's snapshots then the point itself. Deleting a
// point that no longer exists is a no-op.
func (m *Manager) DeletePoint(pointID string) error {
	if err := m.snapshots.DeleteForPoint(pointID); err != nil {
		return err
	}
	m.points.DeletePoint(pointID)
	return nil
}

func (m *Manager) resolveStrategy(name string, diffLen int, age time.Duration) (rollbackstrategy.Strategy, error) {
	switch name {
	case "":
		return rollbackstrategy.Recommend(diffLen, age), nil
	case "immediate":
		return rollbackstrategy.Immediate{}, nil
	case "gradual":
		return rollbackstrategy.NewGradual(), nil
	case "safe":
		return rollbackstrategy.Safe{}, nil
	case "force":
		return rollbackstrategy.Force{}, nil
	default:
		return nil, graphmodel.New(graphmodel.ErrUnknownStrategy, fmt.Sprintf("unknown rollback strategy %q", name), nil)
	}
}

// workingState holds the in-memory structures a rollback operation mutates
// as its strategy applies resolved diff entries, keyed by snapshot type and
// addressed through type-prefixed diff paths (see prefixPath). It is the
// seam between the generic structural diff engine and the typed graph
// collaborator the manager ultimately writes through.
type workingState struct {
	mu     sync.Mutex
	values map[graphmodel.SnapshotType]interface{}
}

func (w *workingState) apply(entry graphmodel.DiffEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	typ, subPath := splitPrefixed(entry.Path)
	sub := entry
	sub.Path = subPath

	current := w.values[typ]
	w.values[typ] = diffengine.ApplyDiff(current, []graphmodel.DiffEntry{sub})
	return nil
}

// detectConflicts reports a VALUE_MISMATCH whenever the live working value
// at an entry's path no longer matches the OldValue the diff was computed
// against — i.e. something else changed that path concurrently.
func (w *workingState) detectConflicts(entries []graphmodel.DiffEntry) []graphmodel.RollbackConflict {
	w.mu.Lock()
	defer w.mu.Unlock()

	var conflicts []graphmodel.RollbackConflict
	for _, e := range entries {
		if e.Operation != graphmodel.DiffUpdate && e.Operation != graphmodel.DiffDelete {
			continue
		}
		typ, subPath := splitPrefixed(e.Path)
		actual, ok := diffengine.GetAtPath(w.values[typ], subPath)
		if !ok {
			continue
		}
		if !diffengine.DeepEquals(actual, e.OldValue, diffengine.DefaultOptions()) {
			conflicts = append(conflicts, graphmodel.RollbackConflict{
				Path:     e.Path,
				Kind:     graphmodel.ConflictValueMismatch,
				Expected: e.OldValue,
				Actual:   actual,
			})
		}
	}
	return conflicts
}

// persist writes the final working structures back through the graph
// collaborator: entities via CreateOrUpdateEntity, relationships via
// CreateRelationshipsBulk. Session-state and file-system snapshots are
// read-only rollback context, not collaborators the manager writes back to.
func (m *Manager) persist(ctx context.Context, working *workingState) error {
	if m.graph == nil {
		return nil
	}
	working.mu.Lock()
	defer working.mu.Unlock()

	if entities, ok := toSlice(working.values[graphmodel.SnapshotEntity]); ok {
		for _, raw := range entities {
			var e collaborators.Entity
			if err := remarshal(raw, &e); err != nil {
				return err
			}
			if err := m.graph.CreateOrUpdateEntity(ctx, &e); err != nil {
				return err
			}
		}
	}

	if rels, ok := toSlice(working.values[graphmodel.SnapshotRelationship]); ok {
		batch := make([]*collaborators.Relationship, 0, len(rels))
		for _, raw := range rels {
			var r collaborators.Relationship
			if err := remarshal(raw, &r); err != nil {
				return err
			}
			batch = append(batch, &r)
		}
		if len(batch) > 0 {
			if err := m.graph.CreateRelationshipsBulk(ctx, batch, collaborators.BulkCreateOptions{}); err != nil {
				return err
			}
		}
	}

	return nil
}

func toSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

// remarshal converts a generic map[string]interface{} (the shape every
// restored snapshot value takes) back into a typed collaborator struct.
func remarshal(src interface{}, dst interface{}) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// safetyBackup captures the current state as a snapshot set under a
// throwaway backup ID. The closure it returns deletes that snapshot set and
// writes no state back; a failed run never reaches persist, so the graph
// keeps its pre-rollback state. On success the closure is not called and the
// backup snapshots stay in the snapshot store.
func (m *Manager) safetyBackup(pointID string) func() (func() error, error) {
	return func() (func() error, error) {
		backupID := "backup:" + uuid.NewString()
		if _, err := m.captureSnapshots(context.Background(), backupID); err != nil {
			return nil, err
		}
		restore := func() error {
			return m.snapshots.DeleteForPoint(backupID)
		}
		return restore, nil
	}
}
