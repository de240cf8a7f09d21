package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memento-graph/memento/internal/graphmodel"
)

func TestCanonicalRelationshipID_StableAcrossQualifierOrder(t *testing.T) {
	base := &graphmodel.Relationship{
		FromEntityID: "entity-a",
		ToEntityID:   "entity-b",
		Type:         graphmodel.RelCalls,
	}
	rel1 := *base
	rel1.Qualifiers = map[string][]string{"acceptanceCriteriaIds": {"c2", "c1", "c3"}}
	rel2 := *base
	rel2.Qualifiers = map[string][]string{"acceptanceCriteriaIds": {"c1", "c3", "c2"}}

	assert.Equal(t, CanonicalRelationshipID(&rel1), CanonicalRelationshipID(&rel2))
}

func TestCanonicalRelationshipID_DifferentTuplesDiffer(t *testing.T) {
	rel1 := &graphmodel.Relationship{FromEntityID: "a", ToEntityID: "b", Type: graphmodel.RelCalls}
	rel2 := &graphmodel.Relationship{FromEntityID: "a", ToEntityID: "c", Type: graphmodel.RelCalls}

	assert.NotEqual(t, CanonicalRelationshipID(rel1), CanonicalRelationshipID(rel2))
}

func TestCanonicalRelationshipID_SessionFamilyUsesSequence(t *testing.T) {
	rel := &graphmodel.Relationship{
		Type:           graphmodel.RelSessionEvent,
		SessionID:      "sess-1",
		SequenceNumber: 3,
	}
	id := CanonicalRelationshipID(rel)
	assert.Contains(t, id, prefixSession)

	relDup := &graphmodel.Relationship{
		Type:           graphmodel.RelSessionEvent,
		SessionID:      "sess-1",
		SequenceNumber: 3,
	}
	assert.Equal(t, id, CanonicalRelationshipID(relDup))
}

func TestCanonicalRelationshipID_NegativeSequenceCoercesToZero(t *testing.T) {
	relNeg := &graphmodel.Relationship{Type: graphmodel.RelSessionEvent, SessionID: "s", SequenceNumber: -5}
	relZero := &graphmodel.Relationship{Type: graphmodel.RelSessionEvent, SessionID: "s", SequenceNumber: 0}
	assert.Equal(t, CanonicalRelationshipID(relNeg), CanonicalRelationshipID(relZero))
}

func TestCanonicalRelationshipID_PerformanceFamilyIncludesMetricTuple(t *testing.T) {
	rel1 := &graphmodel.Relationship{
		Type: graphmodel.RelPerformanceMetric, FromEntityID: "a", ToEntityID: "b",
		MetricID: "latency", Environment: "prod", Scenario: "checkout",
	}
	rel2 := &graphmodel.Relationship{
		Type: graphmodel.RelPerformanceMetric, FromEntityID: "a", ToEntityID: "b",
		MetricID: "latency", Environment: "staging", Scenario: "checkout",
	}
	assert.NotEqual(t, CanonicalRelationshipID(rel1), CanonicalRelationshipID(rel2))
}

func TestCanonicalRelationshipID_PrefersStructuredToRef(t *testing.T) {
	relRef := &graphmodel.Relationship{
		Type:         graphmodel.RelCalls,
		FromEntityID: "a",
		ToEntityID:   "should-be-ignored",
		ToRef:        &graphmodel.TargetRef{Kind: graphmodel.TargetFS, File: "pkg/foo.go", Symbol: "Bar"},
	}
	relRaw := &graphmodel.Relationship{
		Type:         graphmodel.RelCalls,
		FromEntityID: "a",
		ToEntityID:   "should-be-ignored",
	}
	assert.NotEqual(t, CanonicalRelationshipID(relRef), CanonicalRelationshipID(relRaw))
}

func TestCanonicalRelationshipID_NilNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		CanonicalRelationshipID(nil)
	})
}

func TestSequenceTracker_DetectsDuplicateAndOutOfOrder(t *testing.T) {
	tr := NewSequenceTracker()

	assert.Equal(t, AnomalyNone, tr.Observe("sess", "TYPE_A", 1))
	assert.Equal(t, AnomalyNone, tr.Observe("sess", "TYPE_A", 2))
	assert.Equal(t, AnomalyDuplicate, tr.Observe("sess", "TYPE_A", 2))
	assert.Equal(t, AnomalyOutOfOrder, tr.Observe("sess", "TYPE_A", 1))
}

func TestSequenceTracker_NextSequenceMonotonic(t *testing.T) {
	tr := NewSequenceTracker()
	first := tr.NextSequence("sess")
	second := tr.NextSequence("sess")
	assert.Equal(t, first+1, second)
}
