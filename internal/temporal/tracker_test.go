package temporal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-graph/memento/internal/graphmodel"
)

type fakeEmitter struct {
	emitted []*graphmodel.Relationship
}

func (f *fakeEmitter) EmitRelationship(_ context.Context, rel *graphmodel.Relationship) error {
	f.emitted = append(f.emitted, rel)
	return nil
}

func newTestTracker() (*Tracker, *fakeEmitter) {
	emit := &fakeEmitter{}
	tr := New(NewMemoryStore(), emit, DefaultConfig(), nil)
	return tr, emit
}

func TestRecordTestResults_EmitsBrokeInThenFixedIn(t *testing.T) {
	tr, emit := newTestTracker()
	ctx := context.Background()

	_, err := tr.RecordTestResults(ctx, graphmodel.TestSuite{Results: []graphmodel.TestResult{
		{TestID: "t1", TestName: "T1", Status: graphmodel.TestPassed, Duration: 10 * time.Millisecond, Timestamp: time.Now(), RunID: "r1"},
	}})
	require.NoError(t, err)
	assert.Empty(t, emit.emitted)

	results, err := tr.RecordTestResults(ctx, graphmodel.TestSuite{Results: []graphmodel.TestResult{
		{TestID: "t1", TestName: "T1", Status: graphmodel.TestFailed, Duration: 10 * time.Millisecond, Timestamp: time.Now(), RunID: "r2"},
	}})
	require.NoError(t, err)
	require.True(t, results[0].Transitioned)
	require.Len(t, emit.emitted, 1)
	assert.Equal(t, graphmodel.RelBrokeIn, emit.emitted[0].Type)
	assert.Equal(t, 1, emit.emitted[0].SequenceNumber)

	results, err = tr.RecordTestResults(ctx, graphmodel.TestSuite{Results: []graphmodel.TestResult{
		{TestID: "t1", TestName: "T1", Status: graphmodel.TestPassed, Duration: 10 * time.Millisecond, Timestamp: time.Now(), RunID: "r3"},
	}})
	require.NoError(t, err)
	require.True(t, results[0].Transitioned)
	require.Len(t, emit.emitted, 2)
	assert.Equal(t, graphmodel.RelFixedIn, emit.emitted[1].Type)
	assert.Equal(t, 2, emit.emitted[1].SequenceNumber)
}

func TestRecordTestResults_RejectsInvalidResult(t *testing.T) {
	tr, _ := newTestTracker()
	_, err := tr.RecordTestResults(context.Background(), graphmodel.TestSuite{Results: []graphmodel.TestResult{
		{TestID: "", TestName: "T1", Status: graphmodel.TestPassed},
	}})
	require.Error(t, err)
}

func TestRecordTestResults_DedupsByExecutionID(t *testing.T) {
	tr, emit := newTestTracker()
	ctx := context.Background()
	res := graphmodel.TestResult{TestID: "t1", TestName: "T1", Status: graphmodel.TestFailed, Duration: time.Millisecond, Timestamp: time.Now(), RunID: "r1"}

	_, err := tr.RecordTestResults(ctx, graphmodel.TestSuite{Results: []graphmodel.TestResult{res}})
	require.NoError(t, err)
	_, err = tr.RecordTestResults(ctx, graphmodel.TestSuite{Results: []graphmodel.TestResult{res}})
	require.NoError(t, err)

	entity, ok := tr.store.Get("t1")
	require.True(t, ok)
	assert.Len(t, entity.ExecutionHistory, 1)
	assert.Len(t, emit.emitted, 1, "second submission of the same run must not re-emit BROKE_IN")
}

func TestRecordTestResults_AlternatingHistoryIsFlaky(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()

	statuses := []graphmodel.TestStatus{}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			statuses = append(statuses, graphmodel.TestFailed)
		} else {
			statuses = append(statuses, graphmodel.TestPassed)
		}
	}

	var lastResults []RecordResult
	for i, status := range statuses {
		results, err := tr.RecordTestResults(ctx, graphmodel.TestSuite{Results: []graphmodel.TestResult{
			{TestID: "flaky", TestName: "Flaky", Status: status, Duration: time.Millisecond, Timestamp: time.Now(), RunID: "r" + string(rune('a'+i))},
		}})
		require.NoError(t, err)
		lastResults = results
	}

	entity := lastResults[0].Entity
	assert.GreaterOrEqual(t, entity.FlakyScore, 0.4)
	require.NotNil(t, lastResults[0].Flaky)
	found := false
	for _, rec := range lastResults[0].Flaky.Recommendations {
		if strings.Contains(rec, "race conditions or timing dependencies") {
			found = true
		}
	}
	assert.True(t, found, "expected a race-condition recommendation for alternating history, got %v", lastResults[0].Flaky.Recommendations)
}
