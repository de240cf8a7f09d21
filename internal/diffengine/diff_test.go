package diffengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-graph/memento/internal/graphmodel"
)

func TestGenerateObjectDiff_SimpleUpdate(t *testing.T) {
	a := map[string]interface{}{
		"entities": []interface{}{
			map[string]interface{}{"id": "1", "name": "A"},
		},
	}
	b := map[string]interface{}{
		"entities": []interface{}{
			map[string]interface{}{"id": "1", "name": "B"},
		},
	}

	entries := GenerateObjectDiff(a, b, DefaultOptions())
	require.Len(t, entries, 1)
	assert.Equal(t, "entities[0].name", entries[0].Path)
	assert.Equal(t, "A", entries[0].OldValue)
	assert.Equal(t, "B", entries[0].NewValue)
}

func TestApplyDiff_RoundTrip(t *testing.T) {
	a := map[string]interface{}{"x": 1.0, "y": map[string]interface{}{"z": "old"}}
	b := map[string]interface{}{"x": 2.0, "y": map[string]interface{}{"z": "new"}}

	entries := GenerateObjectDiff(a, b, DefaultOptions())
	result := ApplyDiff(a, entries)

	assert.True(t, DeepEquals(result, b, DefaultOptions()))
	// source is untouched
	assert.Equal(t, 1.0, a["x"])
}

func TestApplyDiff_MixOfCreateUpdateDelete(t *testing.T) {
	a := map[string]interface{}{"a": "1", "b": "2"}
	b := map[string]interface{}{"b": "2-updated", "c": "3"}

	diffs := GenerateObjectDiff(a, b, DefaultOptions())
	result := ApplyDiff(a, diffs)

	assert.True(t, DeepEquals(result, b, DefaultOptions()))
}

func TestDeepEquals_IgnoresConfiguredProperties(t *testing.T) {
	a := map[string]interface{}{"name": "x", "__version": 1.0}
	b := map[string]interface{}{"name": "x", "__version": 2.0}
	assert.True(t, DeepEquals(a, b, DefaultOptions()))
}

func TestDeepEquals_Reflexive(t *testing.T) {
	v := map[string]interface{}{"a": []interface{}{1.0, 2.0, "three"}}
	assert.True(t, DeepEquals(v, v, DefaultOptions()))
}

func TestSummarizeDiff_Complexity(t *testing.T) {
	var low []graphmodel.DiffEntry
	for i := 0; i < 5; i++ {
		low = append(low, graphmodel.DiffEntry{Path: "a", Operation: graphmodel.DiffUpdate})
	}
	assert.Equal(t, ComplexityLow, SummarizeDiff(low).Complexity)

	var medium []graphmodel.DiffEntry
	for i := 0; i < 50; i++ {
		medium = append(medium, graphmodel.DiffEntry{Path: "a", Operation: graphmodel.DiffUpdate})
	}
	assert.Equal(t, ComplexityMedium, SummarizeDiff(medium).Complexity)

	var high []graphmodel.DiffEntry
	for i := 0; i < 150; i++ {
		high = append(high, graphmodel.DiffEntry{Path: "a", Operation: graphmodel.DiffUpdate})
	}
	assert.Equal(t, ComplexityHigh, SummarizeDiff(high).Complexity)
}

func TestSummarizeDiff_ExtractsRootPaths(t *testing.T) {
	entries := []graphmodel.DiffEntry{
		{Path: "entities[0].name", Operation: graphmodel.DiffUpdate},
		{Path: "entities[1].name", Operation: graphmodel.DiffUpdate},
		{Path: "metadata.owner", Operation: graphmodel.DiffCreate},
	}
	summary := SummarizeDiff(entries)
	assert.ElementsMatch(t, []string{"entities", "metadata"}, summary.RootPaths)
}

func TestApplyDiff_AutoVivifiesMissingPath(t *testing.T) {
	entries := GenerateObjectDiff(nil, map[string]interface{}{
		"a": map[string]interface{}{"b": []interface{}{map[string]interface{}{"c": "val"}}},
	}, DefaultOptions())

	result := ApplyDiff(nil, entries)
	m, ok := result.(map[string]interface{})
	require.True(t, ok)
	a, ok := m["a"].(map[string]interface{})
	require.True(t, ok)
	b, ok := a["b"].([]interface{})
	require.True(t, ok)
	require.Len(t, b, 1)
}

func TestApplyDiff_DeleteOfAbsentPathIsNoop(t *testing.T) {
	src := map[string]interface{}{"a": "1"}
	result := ApplyDiff(src, []graphmodel.DiffEntry{
		{Path: "missing.key", Operation: graphmodel.DiffDelete},
	})
	assert.Equal(t, src, result)
}

func TestApplyDiff_ReorderingRespectingPriorityConverges(t *testing.T) {
	a := map[string]interface{}{"a": "1", "b": "2", "d": "4"}
	b := map[string]interface{}{"b": "2-updated", "c": "3"}
	diffs := GenerateObjectDiff(a, b, DefaultOptions())

	reversed := make([]graphmodel.DiffEntry, len(diffs))
	for i, e := range diffs {
		reversed[len(diffs)-1-i] = e
	}

	result1 := ApplyDiff(a, diffs)
	result2 := ApplyDiff(a, reversed)
	assert.True(t, DeepEquals(result1, result2, DefaultOptions()))
}

func TestParsePath_NegativeIndexIgnoredOnApply(t *testing.T) {
	src := map[string]interface{}{"items": []interface{}{"x"}}
	result := setAt(deepClone(src), parsePath("items[-1]"), "y")
	assert.Equal(t, src, result)
}
