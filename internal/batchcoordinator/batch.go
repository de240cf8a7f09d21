// Package batchcoordinator implements spec §4.9's dependency-aware batching
// and idempotent streaming writes. Grounded on graph/dag.go's
// GetExecutionOrder (Kahn's algorithm topological sort) and ValidateDAG's
// cycle detection — adapted from action-dependency graphs to
// graphmodel.ChangeFragment dependency graphs — plus queue/redis/queue.go's
// processing-set-with-TTL idiom for the idempotency-key bookkeeping.
package batchcoordinator

import (
	"time"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// FragmentType distinguishes the three per-type batch size caps from spec §4.9.
type FragmentType string

const (
	FragmentTypeEntity       FragmentType = "entity"
	FragmentTypeRelationship FragmentType = "relationship"
	FragmentTypeEmbedding    FragmentType = "embedding"
)

func fragmentType(f graphmodel.ChangeFragment) FragmentType {
	if f.Kind == graphmodel.FragmentRelationship {
		return FragmentTypeRelationship
	}
	return FragmentTypeEntity
}

// Batch is a dependency-ordered, idempotent group of fragments ready for a
// single write-layer call.
type Batch struct {
	ID        string
	EpochID   string
	Type      FragmentType
	Fragments []graphmodel.ChangeFragment
	CreatedAt time.Time

	// CycleDiagnostics records fragment IDs caught in a dependency cycle;
	// per spec §4.9 they are processed in arbitrary order within the cycle,
	// not silently broken, and are recorded here for observability.
	CycleDiagnostics []string
}

// Config tunes batch formation, matching PipelineConfig.Batching.
type Config struct {
	EntityBatchSize       int
	RelationshipBatchSize int
	EmbeddingBatchSize    int
	FlushTimeout          time.Duration
	MaxConcurrentBatches  int
	IdempotencyTTL        time.Duration
	RetryPolicy           RetryPolicy
}

// RetryPolicy is the {maxAttempts, backoffMultiplier, maxBackoffMs} tuple
// from spec §4.9.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultConfig returns the spec §6 pipeline.batching defaults.
func DefaultConfig() Config {
	return Config{
		EntityBatchSize:       100,
		RelationshipBatchSize: 100,
		EmbeddingBatchSize:    50,
		FlushTimeout:          2 * time.Second,
		MaxConcurrentBatches:  4,
		IdempotencyTTL:        10 * time.Minute,
		RetryPolicy:           RetryPolicy{MaxAttempts: 3, BackoffMultiplier: 2.0, MaxBackoff: 30 * time.Second},
	}
}

func (c Config) sizeCapFor(t FragmentType) int {
	switch t {
	case FragmentTypeRelationship:
		return c.RelationshipBatchSize
	case FragmentTypeEmbedding:
		return c.EmbeddingBatchSize
	default:
		return c.EntityBatchSize
	}
}
