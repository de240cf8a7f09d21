// Package workerpool implements the typed worker pool of spec §4.8: parser,
// entity, relationship, and embedding workers consuming tasks from a queue
// with per-task retry and exponential backoff. Grounded on worker/pool.go's
// Pool/Worker/JobProcessor split, generalized from one JobProcessor to four
// typed processors and with cenkalti/backoff/v4 replacing the teacher's
// fixed time.Sleep(1*time.Second) retry delay.
package workerpool

import (
	"context"
	"time"
)

// TaskType names one of the four worker kinds from spec §2/§4.8.
type TaskType string

const (
	TaskParser       TaskType = "parser"
	TaskEntity       TaskType = "entity"
	TaskRelationship TaskType = "relationship"
	TaskEmbedding    TaskType = "embedding"
)

// Task is the unit of work a worker consumes, per spec §4.8.
type Task struct {
	ID          string
	Type        TaskType
	Priority    int // larger = sooner
	Data        interface{}
	Metadata    map[string]interface{}
	RetryCount  int
	MaxRetries  int
	CreatedAt   time.Time
	ScheduledAt time.Time
}

// Queue is the contract a worker pulls tasks from and reports outcomes to.
// Mirrors worker/pool.go's Queue interface, generalized from opaque
// interface{} jobs to typed Tasks and string queue names to TaskType.
type Queue interface {
	Dequeue(taskType TaskType, timeout time.Duration) (*Task, error)
	Enqueue(t *Task) error
	MarkProcessing(taskID string, deadline time.Time) error
	CompleteTask(taskID string) error
	FailTask(taskID string, requeue bool, taskType TaskType, retryCount int) error
}

// Processor executes one task type. Each of the four worker kinds gets its
// own Processor, mirroring worker/pool.go's JobProcessor but keyed by
// TaskType instead of one processor per pool.
type Processor interface {
	Process(ctx context.Context, task *Task) error
	Timeout(task *Task) time.Duration
}
