package workerpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_DequeuePrioritizesHigherPriority(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Now()
	require.NoError(t, q.Enqueue(&Task{ID: "low", Type: TaskParser, Priority: 1, CreatedAt: now}))
	require.NoError(t, q.Enqueue(&Task{ID: "high", Type: TaskParser, Priority: 10, CreatedAt: now}))

	task, err := q.Dequeue(TaskParser, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "high", task.ID)

	task, err = q.Dequeue(TaskParser, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "low", task.ID)
}

func TestMemoryQueue_DequeueTiesBreakByCreatedAt(t *testing.T) {
	q := NewMemoryQueue()
	earlier := time.Now()
	later := earlier.Add(time.Second)
	require.NoError(t, q.Enqueue(&Task{ID: "later", Type: TaskEntity, Priority: 5, CreatedAt: later}))
	require.NoError(t, q.Enqueue(&Task{ID: "earlier", Type: TaskEntity, Priority: 5, CreatedAt: earlier}))

	task, err := q.Dequeue(TaskEntity, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "earlier", task.ID)
}

func TestMemoryQueue_DequeueTimesOutWhenEmpty(t *testing.T) {
	q := NewMemoryQueue()
	start := time.Now()
	task, err := q.Dequeue(TaskParser, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMemoryQueue_DequeueUnblocksOnEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	result := make(chan *Task, 1)

	go func() {
		task, _ := q.Dequeue(TaskParser, time.Second)
		result <- task
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(&Task{ID: "woken", Type: TaskParser, CreatedAt: time.Now()}))

	select {
	case task := <-result:
		require.NotNil(t, task)
		assert.Equal(t, "woken", task.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock after enqueue")
	}
}

func TestMemoryQueue_StuckTasks(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.MarkProcessing("expired", time.Now().Add(-time.Second)))
	require.NoError(t, q.MarkProcessing("fresh", time.Now().Add(time.Hour)))

	stuck := q.StuckTasks(time.Now())
	assert.Equal(t, []string{"expired"}, stuck)
}

func TestMemoryQueue_FailTaskRequeuesWithIncrementedRetryCount(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.MarkProcessing("t1", time.Now().Add(time.Hour)))
	require.NoError(t, q.FailTask("t1", true, TaskEntity, 1))

	task, err := q.Dequeue(TaskEntity, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 2, task.RetryCount)
	assert.Empty(t, q.StuckTasks(time.Now().Add(time.Hour)))
}
