// Package memento exercises the six end-to-end scenarios seeded in spec §8,
// wiring the rollback, temporal, and incident subsystems together the way a
// real caller would rather than unit-testing any one package in isolation.
package memento

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-graph/memento/internal/collaborators"
	"github.com/memento-graph/memento/internal/eventstream"
	"github.com/memento-graph/memento/internal/graphmodel"
	"github.com/memento-graph/memento/internal/incident"
	"github.com/memento-graph/memento/internal/rollbackmanager"
	"github.com/memento-graph/memento/internal/rollbackstore"
	"github.com/memento-graph/memento/internal/rollbackstrategy"
	"github.com/memento-graph/memento/internal/snapshotstore"
	"github.com/memento-graph/memento/internal/temporal"
)

func newManager(t *testing.T, graph *collaborators.FakeGraphService) *rollbackmanager.Manager {
	t.Helper()
	snaps := snapshotstore.New(snapshotstore.DefaultConfig(), nil)
	broker := eventstream.NewBroker()
	points, err := rollbackstore.New(rollbackstore.DefaultConfig(), broker, nil)
	require.NoError(t, err)

	cfg := rollbackmanager.DefaultConfig()
	cfg.RequireDatabaseReady = false
	return rollbackmanager.New(cfg, snaps, points, broker, graph, nil, nil, nil, nil)
}

// Scenario 1: create -> diff -> rollback (spec §8 scenario 1).
func TestScenario_CreateDiffRollback(t *testing.T) {
	graph := collaborators.NewFakeGraphService()
	ctx := context.Background()
	require.NoError(t, graph.CreateEntity(ctx, &collaborators.Entity{
		ID: "1", Type: "function", Path: "a.go", Attributes: map[string]interface{}{"name": "A"},
	}))

	mgr := newManager(t, graph)
	point, err := mgr.CreatePoint(ctx, rollbackmanager.CreatePointOptions{Name: "before-rename"})
	require.NoError(t, err)

	require.NoError(t, graph.CreateEntity(ctx, &collaborators.Entity{
		ID: "1", Type: "function", Path: "a.go", Attributes: map[string]interface{}{"name": "B"},
	}))

	diff, err := mgr.GenerateDiff(ctx, point.ID)
	require.NoError(t, err)
	assert.Len(t, diff, 1)
	assert.Equal(t, graphmodel.DiffUpdate, diff[0].Operation)

	op, err := mgr.Rollback(ctx, point.ID, rollbackmanager.RollbackOptions{Strategy: "immediate"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, ok := mgr.GetOperation(op.ID)
		return ok && got.IsTerminal()
	}, time.Second, 5*time.Millisecond)

	final, ok := mgr.GetOperation(op.ID)
	require.True(t, ok)
	assert.Equal(t, graphmodel.OperationCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)

	entity, err := graph.GetEntity(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "A", entity.Attributes["name"])
}

// Scenario 2: LRU eviction with maxItems=2 (spec §8 scenario 2).
func TestScenario_LRUEviction(t *testing.T) {
	cfg := rollbackstore.DefaultConfig()
	cfg.MaxItems = 2
	store, err := rollbackstore.New(cfg, nil, nil)
	require.NoError(t, err)

	store.PutPoint(&graphmodel.RollbackPoint{ID: "p1"})
	store.PutPoint(&graphmodel.RollbackPoint{ID: "p2"})
	_, err = store.GetPoint("p1") // access p1, so p2 becomes the LRU victim
	require.NoError(t, err)
	store.PutPoint(&graphmodel.RollbackPoint{ID: "p3"})

	_, err = store.GetPoint("p2")
	assert.Error(t, err)
	_, err = store.GetPoint("p1")
	assert.NoError(t, err)
	_, err = store.GetPoint("p3")
	assert.NoError(t, err)
}

// Scenario 3: TTL expiry (spec §8 scenario 3).
func TestScenario_TTLExpiry(t *testing.T) {
	store, err := rollbackstore.New(rollbackstore.DefaultConfig(), nil, nil)
	require.NoError(t, err)

	expiry := time.Now().Add(100 * time.Millisecond)
	store.PutPoint(&graphmodel.RollbackPoint{ID: "p1", ExpiresAt: &expiry})

	time.Sleep(150 * time.Millisecond)

	_, err = store.GetPoint("p1")
	require.Error(t, err)
	var gmErr *graphmodel.Error
	require.ErrorAs(t, err, &gmErr)
	assert.Equal(t, graphmodel.ErrRollbackPointExpired, gmErr.Code)
}

// Scenario 4: conflict abort (spec §8 scenario 4) — inject one VALUE_MISMATCH
// conflict and confirm the operation fails with a RollbackConflictError.
func TestScenario_ConflictAbort(t *testing.T) {
	graph := collaborators.NewFakeGraphService()
	ctx := context.Background()
	require.NoError(t, graph.CreateEntity(ctx, &collaborators.Entity{
		ID: "1", Type: "function", Path: "a.go", Attributes: map[string]interface{}{"name": "A"},
	}))

	diff := []graphmodel.DiffEntry{
		{Path: "name", Operation: graphmodel.DiffUpdate, OldValue: "A", NewValue: "Z"},
	}
	sc := &rollbackstrategy.Context{
		Diff:           diff,
		ConflictPolicy: rollbackstrategy.ConflictAbort,
		DetectConflicts: func([]graphmodel.DiffEntry) []graphmodel.RollbackConflict {
			return []graphmodel.RollbackConflict{
				{Path: "name", Kind: graphmodel.ConflictValueMismatch, Expected: "A", Actual: "B"},
			}
		},
		Apply: func(e graphmodel.DiffEntry) error { return nil },
	}

	err := rollbackstrategy.Immediate{}.Execute(sc)
	require.Error(t, err)
	var conflictErr *graphmodel.RollbackConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, graphmodel.ConflictValueMismatch, conflictErr.Conflicts[0].Kind)
}

// Scenario 5: flaky detection over 20 alternating pass/fail executions
// (spec §8 scenario 5).
func TestScenario_FlakyDetection(t *testing.T) {
	graph := collaborators.NewFakeGraphService()
	ctx := context.Background()
	tracker := temporal.New(temporal.NewMemoryStore(), temporal.NewGraphEmitter(graph), temporal.DefaultConfig(), nil)

	base := time.Now().Add(-20 * time.Minute)
	var last temporal.RecordResult
	for i := 0; i < 20; i++ {
		status := graphmodel.TestPassed
		if i%2 == 1 {
			status = graphmodel.TestFailed
		}
		suite := graphmodel.TestSuite{Results: []graphmodel.TestResult{{
			TestID:       "test-flaky",
			TestName:     "TestFlaky",
			Status:       status,
			TargetSymbol: "pkg.Func",
			RunID:        fmt.Sprintf("run-%d", i),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}}}
		results, err := tracker.RecordTestResults(ctx, suite)
		require.NoError(t, err)
		require.Len(t, results, 1)
		last = results[0]
	}

	assert.GreaterOrEqual(t, last.Entity.FlakyScore, 0.4)
	require.NotNil(t, last.Flaky)
	assert.Contains(t, last.Flaky.Recommendations, "investigate race conditions or timing dependencies")
}

// Scenario 6: incident checkpoint on a failing suite (spec §8 scenario 6).
func TestScenario_IncidentCheckpoint(t *testing.T) {
	graph := collaborators.NewFakeGraphService()
	ctx := context.Background()
	require.NoError(t, graph.CreateRelationship(ctx, &collaborators.Relationship{
		ID:           "rel-1",
		FromEntityID: "test-1",
		ToEntityID:   "E",
		Type:         graphmodel.RelTests,
	}))

	tracker := temporal.New(temporal.NewMemoryStore(), temporal.NewGraphEmitter(graph), temporal.DefaultConfig(), nil)
	watcher := incident.New(incident.DefaultConfig(), graph, nil)

	suite := graphmodel.TestSuite{Results: []graphmodel.TestResult{{
		TestID:       "test-1",
		TestName:     "TestOne",
		Status:       graphmodel.TestFailed,
		TargetSymbol: "E",
		Timestamp:    time.Now(),
	}}}
	results, err := tracker.RecordTestResults(ctx, suite)
	require.NoError(t, err)

	checkpoints, err := watcher.Observe(ctx, suite, results)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)

	calls := graph.Checkpoints()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"test-1", "E"}, calls[0].SeedIDs)
}
