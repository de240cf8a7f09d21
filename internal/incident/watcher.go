// Package incident bridges the Temporal Test-Relationship Tracker to the
// Rollback & Snapshot Engine: a test suite containing a new failure seeds a
// hop-scoped checkpoint around the broken tests so a later rollback can
// target exactly the blast radius touched by the regression, rather than
// the whole graph. Grounded on statemanager/operation.go's metadata-bag
// pattern for recording what triggered an operation.
package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/collaborators"
	"github.com/memento-graph/memento/internal/graphmodel"
	"github.com/memento-graph/memento/internal/logging"
	"github.com/memento-graph/memento/internal/temporal"
)

// Config mirrors config.IncidentConfig exactly.
type Config struct {
	HistoryEnabled         bool
	HistoryIncidentEnabled bool
	IncidentHops           int
}

// DefaultConfig returns spec §6's documented incident defaults.
func DefaultConfig() Config {
	return Config{
		HistoryEnabled:         true,
		HistoryIncidentEnabled: true,
		IncidentHops:           2,
	}
}

func (c Config) clampedHops() int {
	hops := c.IncidentHops
	if hops < 1 {
		hops = 1
	}
	if hops > 5 {
		hops = 5
	}
	return hops
}

// Checkpoint is the record of one incident-triggered checkpoint, returned
// for logging/telemetry purposes.
type Checkpoint struct {
	ID        string
	SeedIDs   []string
	Hops      int
	CreatedAt time.Time
}

// Watcher observes temporal.RecordResult values and seeds a checkpoint
// whenever a test freshly transitions to failing.
type Watcher struct {
	cfg   Config
	graph collaborators.KnowledgeGraphService
	log   *logrus.Entry
}

// New builds a Watcher. graph is required: without it there is nothing to
// checkpoint against.
func New(cfg Config, graph collaborators.KnowledgeGraphService, log *logrus.Entry) *Watcher {
	return &Watcher{
		cfg:   cfg,
		graph: graph,
		log:   logging.OrDefault(log, "incident"),
	}
}

// Observe inspects the results of one RecordTestResults call and seeds a
// checkpoint for every freshly-broken test, gated by HistoryEnabled and
// HistoryIncidentEnabled. Results that merely report flakiness or a fix
// don't trigger a checkpoint; only a BROKE_IN transition does.
func (w *Watcher) Observe(ctx context.Context, suite graphmodel.TestSuite, results []temporal.RecordResult) ([]Checkpoint, error) {
	if !w.cfg.HistoryEnabled || !w.cfg.HistoryIncidentEnabled || w.graph == nil {
		return nil, nil
	}

	var checkpoints []Checkpoint
	for i, r := range results {
		if !r.Transitioned || r.Entity == nil {
			continue
		}
		result := resultFor(suite, r.Entity.ID, i)
		if result.Status != graphmodel.TestFailed {
			continue // this Observe call only checkpoints fresh breakages, not fixes
		}

		cp, err := w.checkpoint(ctx, r.Entity, result)
		if err != nil {
			w.log.WithError(err).WithField("testId", r.Entity.ID).Error("failed to seed incident checkpoint")
			continue
		}
		checkpoints = append(checkpoints, *cp)
	}
	return checkpoints, nil
}

func resultFor(suite graphmodel.TestSuite, testID string, fallbackIdx int) graphmodel.TestResult {
	for _, r := range suite.Results {
		if r.TestID == testID {
			return r
		}
	}
	if fallbackIdx < len(suite.Results) {
		return suite.Results[fallbackIdx]
	}
	return graphmodel.TestResult{}
}

// checkpoint seeds = the failing test itself, its direct TESTS-relationship
// targets (the code it exercises), and the result's reported target symbol,
// matching the checkpoint seed set spec §4.10/§4.9 describe for
// incident-driven rollback scoping.
func (w *Watcher) checkpoint(ctx context.Context, entity *graphmodel.TestEntity, result graphmodel.TestResult) (*Checkpoint, error) {
	seeds := map[string]struct{}{entity.ID: {}}
	if result.TargetSymbol != "" {
		seeds[result.TargetSymbol] = struct{}{}
	}

	rels, err := w.graph.QueryRelationships(ctx, collaborators.RelationshipQuery{
		FromEntityID: entity.ID,
		Type:         graphmodel.RelTests,
	})
	if err != nil {
		return nil, fmt.Errorf("query TESTS relationships for %s: %w", entity.ID, err)
	}
	for _, rel := range rels {
		seeds[rel.ToEntityID] = struct{}{}
	}

	seedIDs := make([]string, 0, len(seeds))
	for id := range seeds {
		seedIDs = append(seedIDs, id)
	}

	hops := w.cfg.clampedHops()
	id, err := w.graph.CreateCheckpoint(ctx, seedIDs, collaborators.CheckpointOptions{
		Type: "incident",
		Hops: hops,
	})
	if err != nil {
		return nil, fmt.Errorf("create incident checkpoint for %s: %w", entity.ID, err)
	}

	w.log.WithFields(logrus.Fields{
		"checkpointId": id,
		"testId":       entity.ID,
		"seeds":        len(seedIDs),
		"hops":         hops,
	}).Warn("seeded incident checkpoint for new test failure")

	return &Checkpoint{ID: id, SeedIDs: seedIDs, Hops: hops, CreatedAt: time.Now()}, nil
}
