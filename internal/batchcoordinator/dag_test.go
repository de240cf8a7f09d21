package batchcoordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memento-graph/memento/internal/graphmodel"
)

func frag(id string, deps ...string) graphmodel.ChangeFragment {
	return graphmodel.ChangeFragment{ID: id, DependsOn: deps}
}

func TestTopologicalOrder_RespectsDependencies(t *testing.T) {
	fragments := []graphmodel.ChangeFragment{
		frag("c", "b"),
		frag("b", "a"),
		frag("a"),
	}

	result := TopologicalOrder(fragments)
	assert.Empty(t, result.Cycles)
	requireOrder(t, result.Ordered, "a", "b", "c")
}

func TestTopologicalOrder_DetectsCycleWithoutDroppingFragments(t *testing.T) {
	fragments := []graphmodel.ChangeFragment{
		frag("x", "y"),
		frag("y", "x"),
		frag("z"),
	}

	result := TopologicalOrder(fragments)
	assert.Len(t, result.Ordered, 3, "cycle members must still be processed, never dropped")
	assert.ElementsMatch(t, []string{"x", "y"}, result.Cycles)
}

func TestTopologicalOrder_IgnoresDependencyOutsideBatch(t *testing.T) {
	fragments := []graphmodel.ChangeFragment{
		frag("a", "outside-the-batch"),
	}
	result := TopologicalOrder(fragments)
	assert.Empty(t, result.Cycles)
	requireOrder(t, result.Ordered, "a")
}

func requireOrder(t *testing.T, got []graphmodel.ChangeFragment, wantIDs ...string) {
	t.Helper()
	gotIDs := make([]string, len(got))
	for i, f := range got {
		gotIDs[i] = f.ID
	}
	assert.Equal(t, wantIDs, gotIDs)
}
