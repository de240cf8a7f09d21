package rollbackstrategy

import (
	"time"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// Gradual partitions the diff into fixed-size batches with an inter-batch
// delay, detecting conflicts per batch and never starting batch N+1 until
// batch N commits.
type Gradual struct {
	BatchSize     int
	BatchDelay    time.Duration
}

// NewGradual returns a Gradual strategy with spec §4.5's documented
// defaults (batch size 10, 1s inter-batch delay).
func NewGradual() *Gradual {
	return &Gradual{BatchSize: 10, BatchDelay: time.Second}
}

func (g *Gradual) Name() string { return "gradual" }

// Validate refuses when diff.length <= 5, per spec §4.5/§8.
func (g *Gradual) Validate(sc *Context) bool {
	return len(sc.Diff) > 5
}

func (g *Gradual) EstimateTime(sc *Context) time.Duration {
	batchSize := g.batchSize()
	batches := (len(sc.Diff) + batchSize - 1) / batchSize
	if batches == 0 {
		return 0
	}
	return time.Duration(batches-1)*g.delay() + time.Duration(len(sc.Diff))*2*time.Millisecond
}

func (g *Gradual) batchSize() int {
	if g.BatchSize <= 0 {
		return 10
	}
	return g.BatchSize
}

func (g *Gradual) delay() time.Duration {
	if g.BatchDelay <= 0 {
		return time.Second
	}
	return g.BatchDelay
}

func (g *Gradual) Execute(sc *Context) error {
	if !g.Validate(sc) {
		return graphmodel.New(graphmodel.ErrStrategyValidationFail, "gradual rollback requires more than 5 diff entries", map[string]interface{}{
			"entries": len(sc.Diff),
		})
	}

	sc.progress(0)
	batchSize := g.batchSize()
	batches := chunk(sc.Diff, batchSize)

	for i, batch := range batches {
		conflicts := detectBatchConflicts(sc, batch)
		resolved, err := resolveConflicts(sc, batch, conflicts)
		if err != nil {
			sc.logLine("error", "batch conflict resolution failed", map[string]interface{}{"batch": i, "error": err.Error()})
			return err
		}

		for _, entry := range resolved {
			if sc.Apply != nil {
				if err := sc.Apply(entry); err != nil {
					sc.logLine("error", "batch apply failed", map[string]interface{}{"batch": i, "path": entry.Path})
					return err
				}
			}
		}

		progress := (i + 1) * 100 / len(batches)
		sc.progress(progress)
		sc.logLine("info", "batch committed", map[string]interface{}{"batch": i, "size": len(batch)})

		if i < len(batches)-1 {
			select {
			case <-sc.Context().Done():
				return sc.Context().Err()
			case <-time.After(g.delay()):
			}
		}
	}

	sc.progress(100)
	return nil
}

// detectBatchConflicts scans one batch for conflicts, a real per-batch scan
// (see DESIGN.md's resolution of the open question about the teacher's
// always-empty placeholder).
func detectBatchConflicts(sc *Context, batch []graphmodel.DiffEntry) []graphmodel.RollbackConflict {
	return detectConflicts(sc, batch)
}

func chunk(entries []graphmodel.DiffEntry, size int) [][]graphmodel.DiffEntry {
	if len(entries) == 0 {
		return nil
	}
	var out [][]graphmodel.DiffEntry
	for i := 0; i < len(entries); i += size {
		end := i + size
		if end > len(entries) {
			end = len(entries)
		}
		out = append(out, entries[i:end])
	}
	return out
}
