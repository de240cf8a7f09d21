// Package graphmodel defines the shared data model for the knowledge graph:
// entities, relationships, snapshots, rollback points and operations, diff
// entries, pipeline primitives, and the error taxonomy every subsystem uses
// to report failure without throwing across goroutine boundaries.
package graphmodel

import "fmt"

// Code identifies one member of the closed error taxonomy.
type Code string

const (
	ErrDatabaseNotReady        Code = "DATABASE_NOT_READY"
	ErrUnknownStrategy         Code = "UNKNOWN_STRATEGY"
	ErrStrategyValidationFail  Code = "STRATEGY_VALIDATION_FAILED"
	ErrRollbackPointNotFound   Code = "ROLLBACK_POINT_NOT_FOUND"
	ErrRollbackPointExpired    Code = "ROLLBACK_POINT_EXPIRED"
	ErrNoSnapshotsFound        Code = "NO_SNAPSHOTS_FOUND"
	ErrSnapshotNotFound        Code = "SNAPSHOT_NOT_FOUND"
	ErrSnapshotCorrupted       Code = "SNAPSHOT_CORRUPTED"
	ErrSnapshotTooLarge        Code = "SNAPSHOT_TOO_LARGE"
	ErrSnapshotTypeMismatch    Code = "SNAPSHOT_TYPE_MISMATCH"
	ErrQueueOverflow           Code = "QUEUE_OVERFLOW"
	ErrBatchProcessing         Code = "BATCH_PROCESSING_FAILED"
	ErrWorker                  Code = "WORKER_ERROR"
	ErrRollbackConflict        Code = "ROLLBACK_CONFLICT"
)

// Error is the rich result shape described in spec §9's "error unions" note:
// a {code, message, metadata, retryable} value, never a bare string.
type Error struct {
	Code      Code
	Message   string
	Metadata  map[string]interface{}
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, &Error{Code: ...}) comparisons by code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs a non-retryable Error with the given code and message.
func New(code Code, message string, metadata map[string]interface{}) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap constructs an Error carrying an underlying cause.
func Wrap(code Code, message string, cause error, retryable bool) *Error {
	return &Error{Code: code, Message: message, Cause: cause, Retryable: retryable}
}

// RollbackConflict describes one detected conflict during rollback execution.
type RollbackConflict struct {
	Path     string
	Kind     ConflictKind
	Expected interface{}
	Actual   interface{}
	Detail   string
}

// ConflictKind enumerates the conflict taxonomy from spec §4.5.
type ConflictKind string

const (
	ConflictValueMismatch     ConflictKind = "VALUE_MISMATCH"
	ConflictTypeMismatch      ConflictKind = "TYPE_MISMATCH"
	ConflictMissingTarget     ConflictKind = "MISSING_TARGET"
	ConflictPermissionDenied  ConflictKind = "PERMISSION_DENIED"
	ConflictDependencyConflict ConflictKind = "DEPENDENCY_CONFLICT"
)

// RollbackConflictError carries every conflict detected for one operation.
type RollbackConflictError struct {
	Conflicts []RollbackConflict
}

func (e *RollbackConflictError) Error() string {
	return fmt.Sprintf("rollback conflict: %d conflicting entries", len(e.Conflicts))
}

// QueueOverflowError reports a partition that exceeded its bound. Never retryable.
type QueueOverflowError struct {
	QueueName string
	Size      int
	MaxSize   int
}

func (e *QueueOverflowError) Error() string {
	return fmt.Sprintf("queue %q overflowed: size=%d max=%d", e.QueueName, e.Size, e.MaxSize)
}

// BatchProcessingError reports retryable per-item batch failures after
// exhausting the retry policy.
type BatchProcessingError struct {
	BatchID        string
	ProcessedCount int
	FailedCount    int
	ItemFailures   map[string]string
}

func (e *BatchProcessingError) Error() string {
	return fmt.Sprintf("batch %q processing failed: %d/%d items failed", e.BatchID, e.FailedCount, e.ProcessedCount+e.FailedCount)
}

// WorkerError reports a task failure from the worker pool.
type WorkerError struct {
	TaskID    string
	Cause     error
	Retryable bool
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker task %q failed: %v", e.TaskID, e.Cause)
}

func (e *WorkerError) Unwrap() error { return e.Cause }
