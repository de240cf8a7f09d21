package batchcoordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-graph/memento/internal/graphmodel"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches []Batch
	failN   int // fail the first failN calls
	calls   int
}

func (w *fakeWriter) WriteBatch(_ context.Context, batch Batch) (int, int, map[string]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failN {
		return 0, len(batch.Fragments), nil, errors.New("transient failure")
	}
	w.batches = append(w.batches, batch)
	return len(batch.Fragments), 0, nil, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EntityBatchSize = 2
	cfg.RelationshipBatchSize = 2
	cfg.FlushTimeout = time.Hour // disable timer-based flush in these tests
	cfg.RetryPolicy = RetryPolicy{MaxAttempts: 3, BackoffMultiplier: 1.0, MaxBackoff: 10 * time.Millisecond}
	return cfg
}

func TestCoordinator_FlushesOnSizeCap(t *testing.T) {
	writer := &fakeWriter{}
	c := New(writer, testConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, graphmodel.ChangeFragment{ID: "e1", Kind: graphmodel.FragmentEntity}))
	require.NoError(t, c.Submit(ctx, graphmodel.ChangeFragment{ID: "e2", Kind: graphmodel.FragmentEntity}))

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.batches, 1)
	assert.Len(t, writer.batches[0].Fragments, 2)
}

func TestCoordinator_FlushStaleFlushesPartialBatch(t *testing.T) {
	writer := &fakeWriter{}
	cfg := testConfig()
	cfg.FlushTimeout = time.Millisecond
	c := New(writer, cfg, nil)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, graphmodel.ChangeFragment{ID: "e1", Kind: graphmodel.FragmentEntity}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.FlushStale(ctx))

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.batches, 1)
	assert.Len(t, writer.batches[0].Fragments, 1)
}

func TestCoordinator_RetriesThenSucceeds(t *testing.T) {
	writer := &fakeWriter{failN: 2}
	c := New(writer, testConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, graphmodel.ChangeFragment{ID: "e1", Kind: graphmodel.FragmentEntity}))
	require.NoError(t, c.Submit(ctx, graphmodel.ChangeFragment{ID: "e2", Kind: graphmodel.FragmentEntity}))

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.batches, 1)
	assert.Equal(t, 3, writer.calls)
}

func TestCoordinator_ExhaustsRetriesReturnsBatchProcessingError(t *testing.T) {
	writer := &fakeWriter{failN: 100}
	c := New(writer, testConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, graphmodel.ChangeFragment{ID: "e1", Kind: graphmodel.FragmentEntity}))
	err := c.Submit(ctx, graphmodel.ChangeFragment{ID: "e2", Kind: graphmodel.FragmentEntity})

	require.Error(t, err)
	var batchErr *graphmodel.BatchProcessingError
	assert.ErrorAs(t, err, &batchErr)
}

func TestCoordinator_SetEpochFlushesPendingUnderOldEpoch(t *testing.T) {
	writer := &fakeWriter{}
	c := New(writer, testConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, graphmodel.ChangeFragment{ID: "e1", Kind: graphmodel.FragmentEntity}))
	require.NoError(t, c.SetEpoch(ctx, "epoch-2"))

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.batches, 1)
	assert.Equal(t, "", writer.batches[0].EpochID)
}

func TestCoordinator_IdempotentCommitSkipsDuplicateBatchID(t *testing.T) {
	writer := &fakeWriter{}
	c := New(writer, testConfig(), nil)

	batch := Batch{ID: "dup-1", Fragments: []graphmodel.ChangeFragment{{ID: "e1"}}}
	require.NoError(t, c.commitWithRetry(context.Background(), batch))
	require.NoError(t, c.commitWithRetry(context.Background(), batch))

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Equal(t, 1, writer.calls, "second commit of the same batch ID must be a no-op")
}
