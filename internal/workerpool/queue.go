package workerpool

import (
	"container/heap"
	"sync"
	"time"
)

// MemoryQueue is an in-process Task queue, one priority heap per TaskType,
// plus a processing set keyed by task ID with a deadline — mirroring
// queue/redis/queue.go's RPush/BLPop queue plus ZAdd/ZRem processing-set
// idiom, collapsed into native Go data structures instead of Redis commands.
type MemoryQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	heaps      map[TaskType]*taskHeap
	processing map[string]time.Time
}

// NewMemoryQueue returns an empty queue ready to serve any TaskType.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{
		heaps:      make(map[TaskType]*taskHeap),
		processing: make(map[string]time.Time),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) heapFor(t TaskType) *taskHeap {
	h, ok := q.heaps[t]
	if !ok {
		h = &taskHeap{}
		heap.Init(h)
		q.heaps[t] = h
	}
	return h
}

// Enqueue pushes a task onto its type's priority heap (larger Priority pops
// first) and wakes any blocked Dequeue calls.
func (q *MemoryQueue) Enqueue(t *Task) error {
	q.mu.Lock()
	heap.Push(q.heapFor(t.Type), t)
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

// Dequeue blocks up to timeout for the highest-priority task of the given
// type, returning (nil, nil) on timeout exactly as worker/pool.go's
// Queue.Dequeue does for a Redis BLPop miss.
func (q *MemoryQueue) Dequeue(taskType TaskType, timeout time.Duration) (*Task, error) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		h := q.heapFor(taskType)
		if h.Len() > 0 {
			t := heap.Pop(h).(*Task)
			return t, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		waited := waitWithTimeout(q.cond, remaining)
		if !waited {
			return nil, nil
		}
	}
}

// MarkProcessing records a task's processing deadline for liveness tracking.
func (q *MemoryQueue) MarkProcessing(taskID string, deadline time.Time) error {
	q.mu.Lock()
	q.processing[taskID] = deadline
	q.mu.Unlock()
	return nil
}

// CompleteTask removes a task from the processing set.
func (q *MemoryQueue) CompleteTask(taskID string) error {
	q.mu.Lock()
	delete(q.processing, taskID)
	q.mu.Unlock()
	return nil
}

// FailTask removes a task from the processing set and, if requeue is set,
// enqueues a new Task with the same ID and type and an incremented retry
// count — the same remove-then-conditionally-reenqueue sequence as
// queue/redis/queue.go's FailJob. The new Task carries no Data, Metadata,
// Priority or MaxRetries.
func (q *MemoryQueue) FailTask(taskID string, requeue bool, taskType TaskType, retryCount int) error {
	q.mu.Lock()
	delete(q.processing, taskID)
	q.mu.Unlock()

	if requeue {
		return q.Enqueue(&Task{
			ID:         taskID,
			Type:       taskType,
			RetryCount: retryCount + 1,
			CreatedAt:  time.Now(),
		})
	}
	return nil
}

// StuckTasks returns task IDs whose processing deadline has elapsed,
// analogous to scanning the teacher's Redis processing ZSET for expired
// scores.
func (q *MemoryQueue) StuckTasks(now time.Time) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stuck []string
	for id, deadline := range q.processing {
		if now.After(deadline) {
			stuck = append(stuck, id)
		}
	}
	return stuck
}

// taskHeap is a container/heap.Interface over *Task ordered by descending
// Priority (ties broken by earlier CreatedAt).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// waitWithTimeout waits on cond for up to timeout, returning false if the
// timeout elapsed first. sync.Cond has no native timed wait, so the wait
// runs on a goroutine and reports back through a channel.
func waitWithTimeout(cond *sync.Cond, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cond.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		// The caller resumes as the lock holder, so it must not return until
		// the wait goroutine has reacquired the lock inside Wait(). Keep
		// waking waiters until that goroutine reports back.
		for {
			cond.Broadcast()
			select {
			case <-done:
				return false
			case <-time.After(time.Millisecond):
			}
		}
	}
}
