// Package temporal implements the Temporal Test-Relationship Tracker of
// spec §4.10: execution recording, flakiness scoring, performance trend/
// regression detection, and BROKE_IN/FIXED_IN/PERFORMANCE_* relationship
// emission. Grounded on semantic/runtime/event.go's typed-event construction
// and db/repository/interfaces.go's MetricsRepository (ActionRun/
// ActionMetrics/DataPoint) for the aggregated statistics surface this
// tracker exposes.
package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/collaborators"
	"github.com/memento-graph/memento/internal/graphmodel"
	"github.com/memento-graph/memento/internal/identity"
	"github.com/memento-graph/memento/internal/logging"
)

// Config tunes the tracker's performance thresholds: the five fields of
// config.TemporalConfig plus MaxHistory, which config.TemporalConfig lacks.
type Config struct {
	PerfImpactP95Ms         int
	PerfImpactAvgMs         int
	PerfDegradingMinDeltaMs int
	PerfTrendMinRuns        int
	PerfMinHistory          int
	MaxHistory              int // bounds TestEntity.ExecutionHistory, default 100
}

// DefaultConfig returns spec §6's documented temporal thresholds.
func DefaultConfig() Config {
	return Config{
		PerfImpactP95Ms:         2000,
		PerfImpactAvgMs:         1000,
		PerfDegradingMinDeltaMs: 100,
		PerfTrendMinRuns:        5,
		PerfMinHistory:          5,
		MaxHistory:              100,
	}
}

// RelationshipEmitter receives a canonicalized relationship minted by the
// tracker (BROKE_IN, FIXED_IN, PERFORMANCE_REGRESSION, PERFORMANCE_IMPACT).
// The graph layer is responsible for deduplicating on the relationship's
// canonical ID, per spec §3's Ownership note.
type RelationshipEmitter interface {
	EmitRelationship(ctx context.Context, rel *graphmodel.Relationship) error
}

// graphEmitter adapts a KnowledgeGraphService into a RelationshipEmitter.
type graphEmitter struct {
	graph collaborators.KnowledgeGraphService
}

func (g graphEmitter) EmitRelationship(ctx context.Context, rel *graphmodel.Relationship) error {
	return g.graph.CreateRelationship(ctx, &collaborators.Relationship{
		ID:           identity.CanonicalRelationshipID(rel),
		FromEntityID: rel.FromEntityID,
		ToEntityID:   rel.ToEntityID,
		Type:         rel.Type,
		Metadata:     rel.Metadata,
	})
}

// NewGraphEmitter wraps a KnowledgeGraphService as a RelationshipEmitter.
func NewGraphEmitter(graph collaborators.KnowledgeGraphService) RelationshipEmitter {
	return graphEmitter{graph: graph}
}

// Tracker maintains per-test state and emits relationships on transitions.
type Tracker struct {
	cfg      Config
	store    Store
	sequence *identity.SequenceTracker
	emit     RelationshipEmitter
	log      *logrus.Entry

	// openIncidents tracks tests with a currently-open PERFORMANCE_REGRESSION
	// so a later improving trend can close it, per spec §4.10's
	// incident-closing rule.
	openIncidents map[string]bool
}

// New builds a Tracker. store may be an in-memory MemoryStore or a
// *PostgresExecutionStore; both satisfy Store.
func New(store Store, emit RelationshipEmitter, cfg Config, log *logrus.Entry) *Tracker {
	return &Tracker{
		cfg:           cfg,
		store:         store,
		sequence:      identity.NewSequenceTracker(),
		emit:          emit,
		log:           logging.OrDefault(log, "temporal"),
		openIncidents: make(map[string]bool),
	}
}

// RecordResult is the outcome of RecordTestResults for one test, surfaced to
// callers that want flakiness reports / incident checkpoint seeds without a
// second store query.
type RecordResult struct {
	Entity       *graphmodel.TestEntity
	Transitioned bool
	Flaky        *FlakinessReport
}

// RecordTestResults validates and persists a suite per spec §4.10, updating
// each test entity's bounded history and emitting BROKE_IN/FIXED_IN and
// performance relationships on state transition.
func (t *Tracker) RecordTestResults(ctx context.Context, suite graphmodel.TestSuite) ([]RecordResult, error) {
	results := make([]RecordResult, 0, len(suite.Results))

	for _, r := range suite.Results {
		if err := validateResult(r); err != nil {
			return results, err
		}

		entity, prevStatus, err := t.upsertExecution(r)
		if err != nil {
			return results, err
		}

		transitioned, err := t.maybeEmitTransition(ctx, entity, prevStatus, r)
		if err != nil {
			t.log.WithError(err).WithField("testId", r.TestID).Error("failed to emit test-state relationship")
		}

		t.updatePerformance(entity, r)
		if err := t.maybeEmitPerformance(ctx, entity); err != nil {
			t.log.WithError(err).WithField("testId", r.TestID).Error("failed to emit performance relationship")
		}

		entity.FlakyScore = flakyScore(entity.ExecutionHistory)
		if err := t.store.Save(ctx, entity); err != nil {
			return results, fmt.Errorf("save test entity %s: %w", entity.ID, err)
		}

		rec := RecordResult{Entity: entity, Transitioned: transitioned}
		if report := flakinessReportIfNotable(entity); report != nil {
			rec.Flaky = report
		}
		results = append(results, rec)
	}

	return results, nil
}

func validateResult(r graphmodel.TestResult) error {
	if r.TestID == "" {
		return graphmodel.New(graphmodel.ErrSnapshotTypeMismatch, "test result missing testId", nil)
	}
	if r.TestName == "" {
		return graphmodel.New(graphmodel.ErrSnapshotTypeMismatch, "test result missing testName", map[string]interface{}{"testId": r.TestID})
	}
	if r.Duration < 0 {
		return graphmodel.New(graphmodel.ErrSnapshotTypeMismatch, "test result duration must be >= 0", map[string]interface{}{"testId": r.TestID})
	}
	switch r.Status {
	case graphmodel.TestPassed, graphmodel.TestFailed, graphmodel.TestSkipped, graphmodel.TestError:
	default:
		return graphmodel.New(graphmodel.ErrSnapshotTypeMismatch, fmt.Sprintf("unknown test status %q", r.Status), map[string]interface{}{"testId": r.TestID})
	}
	return nil
}

// upsertExecution creates-or-updates the test entity and appends a bounded,
// dedup-by-execution-id history entry, returning the entity and its
// previous status (empty if this is the first execution observed).
func (t *Tracker) upsertExecution(r graphmodel.TestResult) (*graphmodel.TestEntity, graphmodel.TestStatus, error) {
	entity, err := t.store.GetOrCreate(r.TestID, r.TestName)
	if err != nil {
		return nil, "", fmt.Errorf("get or create test entity %s: %w", r.TestID, err)
	}

	var prevStatus graphmodel.TestStatus
	if n := len(entity.ExecutionHistory); n > 0 {
		prevStatus = entity.ExecutionHistory[n-1].Status
	}

	execID := r.RunID
	if execID == "" {
		execID = fmt.Sprintf("%s:%d", r.TestID, r.Timestamp.UnixNano())
	}
	for _, existing := range entity.ExecutionHistory {
		if existing.ID == execID {
			return entity, prevStatus, nil // already recorded, dedup by execution id
		}
	}

	entity.ExecutionHistory = append(entity.ExecutionHistory, graphmodel.TestExecution{
		ID:        execID,
		RunID:     r.RunID,
		Attempt:   r.Attempt,
		Status:    r.Status,
		Duration:  r.Duration,
		Timestamp: r.Timestamp,
	})
	if max := t.cfg.MaxHistory; max > 0 && len(entity.ExecutionHistory) > max {
		entity.ExecutionHistory = entity.ExecutionHistory[len(entity.ExecutionHistory)-max:]
	}

	return entity, prevStatus, nil
}

// maybeEmitTransition emits BROKE_IN on passed/skipped/undefined → failed,
// and FIXED_IN on failed → passed, per spec §4.10.
func (t *Tracker) maybeEmitTransition(ctx context.Context, entity *graphmodel.TestEntity, prev graphmodel.TestStatus, r graphmodel.TestResult) (bool, error) {
	curr := r.Status

	brokeIn := curr == graphmodel.TestFailed && (prev == graphmodel.TestPassed || prev == graphmodel.TestSkipped || prev == "")
	fixedIn := prev == graphmodel.TestFailed && curr == graphmodel.TestPassed
	if !brokeIn && !fixedIn {
		return false, nil
	}

	relType := graphmodel.RelBrokeIn
	if fixedIn {
		relType = graphmodel.RelFixedIn
	}

	sessionID := "test-session:" + entity.ID
	seq := t.sequence.NextSequence(sessionID)

	rel := &graphmodel.Relationship{
		FromEntityID:   entity.ID,
		ToEntityID:     r.TargetSymbol,
		ToRef:          &graphmodel.TargetRef{Kind: graphmodel.TargetRaw, Raw: r.TargetSymbol},
		Type:           relType,
		SessionID:      sessionID,
		SequenceNumber: seq,
		Created:        time.Now(),
		Metadata: map[string]interface{}{
			"testId": entity.ID,
			"runId":  r.RunID,
		},
	}
	return true, t.emit.EmitRelationship(ctx, rel)
}
