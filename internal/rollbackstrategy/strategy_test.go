package rollbackstrategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memento-graph/memento/internal/graphmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diffOf(paths ...string) []graphmodel.DiffEntry {
	out := make([]graphmodel.DiffEntry, 0, len(paths))
	for _, p := range paths {
		out = append(out, graphmodel.DiffEntry{Operation: graphmodel.DiffUpdate, Path: p})
	}
	return out
}

func TestImmediate_AppliesAllEntriesInOrder(t *testing.T) {
	var applied []string
	sc := &Context{
		Diff: diffOf("a", "b", "c"),
		Apply: func(e graphmodel.DiffEntry) error {
			applied = append(applied, e.Path)
			return nil
		},
	}

	err := Immediate{}.Execute(sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, applied)
}

func TestImmediate_AbortPolicyStopsOnConflict(t *testing.T) {
	sc := &Context{
		Diff:           diffOf("a", "b"),
		ConflictPolicy: ConflictAbort,
		DetectConflicts: func(entries []graphmodel.DiffEntry) []graphmodel.RollbackConflict {
			return []graphmodel.RollbackConflict{{Path: "a", Kind: graphmodel.ConflictValueMismatch}}
		},
		Apply: func(e graphmodel.DiffEntry) error { return nil },
	}

	err := Immediate{}.Execute(sc)
	require.Error(t, err)
	var conflictErr *graphmodel.RollbackConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Len(t, conflictErr.Conflicts, 1)
}

func TestImmediate_SkipPolicyFiltersConflictedPaths(t *testing.T) {
	var applied []string
	sc := &Context{
		Diff:           diffOf("a", "b"),
		ConflictPolicy: ConflictSkip,
		DetectConflicts: func(entries []graphmodel.DiffEntry) []graphmodel.RollbackConflict {
			return []graphmodel.RollbackConflict{{Path: "a", Kind: graphmodel.ConflictValueMismatch}}
		},
		Apply: func(e graphmodel.DiffEntry) error {
			applied = append(applied, e.Path)
			return nil
		},
	}

	err := Immediate{}.Execute(sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, applied)
}

func TestGradual_ValidateRejectsSmallDiffs(t *testing.T) {
	g := NewGradual()
	assert.False(t, g.Validate(&Context{Diff: diffOf("a", "b", "c")}))
	assert.True(t, g.Validate(&Context{Diff: diffOf("a", "b", "c", "d", "e", "f")}))
}

func TestGradual_BatchesAndDelays(t *testing.T) {
	g := &Gradual{BatchSize: 2, BatchDelay: time.Millisecond}
	var applied []string
	sc := &Context{
		Diff: diffOf("a", "b", "c", "d", "e", "f"),
		Apply: func(e graphmodel.DiffEntry) error {
			applied = append(applied, e.Path)
			return nil
		},
	}

	start := time.Now()
	err := g.Execute(sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, applied)
	// 3 batches (2,2,2) -> 2 inter-batch delays.
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)
}

func TestGradual_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &Gradual{BatchSize: 1, BatchDelay: time.Hour}
	sc := &Context{
		Diff:  diffOf("a", "b", "c", "d", "e", "f"),
		Apply: func(e graphmodel.DiffEntry) error { return nil },
	}
	sc.ctx = ctx

	err := g.Execute(sc)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSafe_ValidateRejectsPointsOlderThanSevenDays(t *testing.T) {
	s := Safe{}
	assert.True(t, s.Validate(&Context{RollbackPointAge: 6 * 24 * time.Hour}))
	assert.False(t, s.Validate(&Context{RollbackPointAge: 8 * 24 * time.Hour}))
}

func TestSafe_RestoresFromBackupOnApplyFailure(t *testing.T) {
	restored := false
	sc := &Context{
		Diff:             diffOf("a"),
		RollbackPointAge: time.Hour,
		SafetyBackup: func() (func() error, error) {
			return func() error {
				restored = true
				return nil
			}, nil
		},
		Apply: func(e graphmodel.DiffEntry) error {
			return errors.New("boom")
		},
	}

	err := Safe{}.Execute(sc)
	require.Error(t, err)
	assert.True(t, restored)
	assert.Contains(t, err.Error(), "boom")
}

func TestSafe_SurfacesRestoreErrorAlongsideOriginal(t *testing.T) {
	sc := &Context{
		Diff:             diffOf("a"),
		RollbackPointAge: time.Hour,
		SafetyBackup: func() (func() error, error) {
			return func() error { return errors.New("restore failed") }, nil
		},
		Apply: func(e graphmodel.DiffEntry) error { return errors.New("boom") },
	}

	err := Safe{}.Execute(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "restore failed")
}

func TestForce_AppliesEverythingIgnoringConflicts(t *testing.T) {
	var applied []string
	sc := &Context{
		Diff: diffOf("a", "b"),
		DetectConflicts: func(entries []graphmodel.DiffEntry) []graphmodel.RollbackConflict {
			t.Fatal("Force must never call conflict detection")
			return nil
		},
		Apply: func(e graphmodel.DiffEntry) error {
			applied = append(applied, e.Path)
			return nil
		},
	}

	err := Force{}.Execute(sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, applied)
}

func TestRecommend_FollowsSpecTable(t *testing.T) {
	assert.Equal(t, "immediate", Recommend(3, time.Hour).Name())
	assert.Equal(t, "safe", Recommend(10, 48*time.Hour).Name())
	assert.Equal(t, "gradual", Recommend(60, time.Hour).Name())
	assert.Equal(t, "immediate", Recommend(20, time.Hour).Name())
}
