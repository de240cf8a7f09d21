package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	mu        sync.Mutex
	processed []string
	failFirst int
	calls     int
}

func (p *countingProcessor) Process(_ context.Context, task *Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("simulated failure")
	}
	p.processed = append(p.processed, task.ID)
	return nil
}

func (p *countingProcessor) Timeout(*Task) time.Duration { return time.Second }

func TestPool_ProcessesTaskSuccessfully(t *testing.T) {
	q := NewMemoryQueue()
	proc := &countingProcessor{}
	cfg := DefaultConfig()
	cfg.Concurrency = map[TaskType]int{TaskEntity: 1}
	cfg.DequeueTimeout = 20 * time.Millisecond

	pool := New(q, map[TaskType]Processor{TaskEntity: proc}, cfg, nil)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(&Task{ID: "t1", Type: TaskEntity, CreatedAt: time.Now()}))

	require.Eventually(t, func() bool {
		return pool.Metrics().Completed == 1
	}, time.Second, 5*time.Millisecond)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, []string{"t1"}, proc.processed)
}

func TestPool_RetriesFailedTaskThenSucceeds(t *testing.T) {
	q := NewMemoryQueue()
	proc := &countingProcessor{failFirst: 1}
	cfg := DefaultConfig()
	cfg.Concurrency = map[TaskType]int{TaskEntity: 1}
	cfg.DequeueTimeout = 20 * time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond

	pool := New(q, map[TaskType]Processor{TaskEntity: proc}, cfg, nil)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(&Task{ID: "t1", Type: TaskEntity, MaxRetries: 3, CreatedAt: time.Now()}))

	require.Eventually(t, func() bool {
		return pool.Metrics().Completed == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(0), pool.Metrics().Failed)
}

func TestPool_ExhaustsRetriesMarksFailed(t *testing.T) {
	q := NewMemoryQueue()
	proc := &countingProcessor{failFirst: 100}
	cfg := DefaultConfig()
	cfg.Concurrency = map[TaskType]int{TaskEntity: 1}
	cfg.DequeueTimeout = 20 * time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond

	pool := New(q, map[TaskType]Processor{TaskEntity: proc}, cfg, nil)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(&Task{ID: "t1", Type: TaskEntity, MaxRetries: 0, CreatedAt: time.Now()}))

	require.Eventually(t, func() bool {
		return pool.Metrics().Failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPool_StopDrainsBeforeReturning(t *testing.T) {
	q := NewMemoryQueue()
	proc := &countingProcessor{}
	cfg := DefaultConfig()
	cfg.Concurrency = map[TaskType]int{TaskEntity: 1}
	cfg.DequeueTimeout = 10 * time.Millisecond
	cfg.DrainGrace = time.Second

	pool := New(q, map[TaskType]Processor{TaskEntity: proc}, cfg, nil)
	pool.Start()

	require.NoError(t, q.Enqueue(&Task{ID: "t1", Type: TaskEntity, CreatedAt: time.Now()}))
	time.Sleep(5 * time.Millisecond)
	pool.Stop()

	assert.Equal(t, int64(1), pool.Metrics().Completed)
}
