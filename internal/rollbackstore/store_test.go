package rollbackstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-graph/memento/internal/graphmodel"
)

func TestStore_LRUEvictionDropsLeastRecentlyAccessed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxItems = 2
	s, err := New(cfg, nil, nil)
	require.NoError(t, err)

	s.PutPoint(&graphmodel.RollbackPoint{ID: "p1"})
	s.PutPoint(&graphmodel.RollbackPoint{ID: "p2"})
	_, err = s.GetPoint("p1") // access p1, making p2 the LRU victim
	require.NoError(t, err)
	s.PutPoint(&graphmodel.RollbackPoint{ID: "p3"})

	_, err = s.GetPoint("p2")
	assert.Error(t, err)

	_, err = s.GetPoint("p1")
	assert.NoError(t, err)
	_, err = s.GetPoint("p3")
	assert.NoError(t, err)
}

func TestStore_TTLExpiryRaisesAndEvicts(t *testing.T) {
	s, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	expiry := time.Now().Add(100 * time.Millisecond)
	s.PutPoint(&graphmodel.RollbackPoint{ID: "p1", ExpiresAt: &expiry})

	time.Sleep(150 * time.Millisecond)

	_, err = s.GetPoint("p1")
	require.Error(t, err)
	var gmErr *graphmodel.Error
	require.ErrorAs(t, err, &gmErr)
	assert.Equal(t, graphmodel.ErrRollbackPointExpired, gmErr.Code)

	_, ok := s.PeekPoint("p1")
	assert.False(t, ok)
}

func TestStore_DeleteNonExistentReturnsFalse(t *testing.T) {
	s, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)
	assert.False(t, s.DeletePoint("does-not-exist"))
}

func TestStore_CleanupRemovesExpiredAndStaleOperations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OperationRetention = 0 // anything completed is immediately stale
	s, err := New(cfg, nil, nil)
	require.NoError(t, err)

	expired := time.Now().Add(-time.Second)
	s.PutPoint(&graphmodel.RollbackPoint{ID: "expired", ExpiresAt: &expired})

	completedAt := time.Now().Add(-time.Hour)
	s.PutOperation(&graphmodel.RollbackOperation{
		ID: "op1", Status: graphmodel.OperationCompleted, CompletedAt: &completedAt,
	})

	result := s.Cleanup()
	assert.Equal(t, 1, result.RemovedPoints)
	assert.Equal(t, 1, result.RemovedOperations)
}
