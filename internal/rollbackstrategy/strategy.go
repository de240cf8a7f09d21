// Package rollbackstrategy implements the pluggable Immediate/Gradual/Safe/
// Force rollback strategies of spec §4.5. Grounded on
// coordinator/phases.go's PhaseManager (phase transitions plus a progress/
// listener callback pattern), generalized per spec §9's design note into a
// shared Context value each strategy operates on rather than an
// inheritance hierarchy.
package rollbackstrategy

import (
	"context"
	"time"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// ConflictStrategy enumerates the conflict resolution policies of spec §4.5.
type ConflictStrategy string

const (
	ConflictAbort     ConflictStrategy = "ABORT"
	ConflictSkip      ConflictStrategy = "SKIP"
	ConflictOverwrite ConflictStrategy = "OVERWRITE"
	ConflictAskUser   ConflictStrategy = "ASK_USER"
	ConflictMerge     ConflictStrategy = "MERGE"
)

// Resolver is invoked for ASK_USER conflict resolution.
type Resolver func(c graphmodel.RollbackConflict) (graphmodel.DiffEntry, error)

// ProgressFunc receives progress updates in [0,100].
type ProgressFunc func(progress int)

// LogFunc receives structured log lines as the strategy executes.
type LogFunc func(entry graphmodel.LogEntry)

// Context is the shared value every strategy operates on: the diff to
// apply, conflict policy, callbacks, and the point's age for validation
// gates. Strategies receive it as a *Context argument rather than
// inheriting from a base type.
type Context struct {
	ctx context.Context

	Diff             []graphmodel.DiffEntry
	RollbackPointAge time.Duration
	ConflictPolicy   ConflictStrategy
	Resolver         Resolver

	OnProgress ProgressFunc
	OnLog      LogFunc

	// Apply is called by a strategy for each (possibly conflict-resolved)
	// entry; it's the seam through which the strategy's changes actually
	// reach the graph. Supplied by the rollback manager.
	Apply func(entry graphmodel.DiffEntry) error

	// DetectConflicts scans entries for conflicts against live state.
	// Supplied by the rollback manager since only it has access to current
	// values to compare against.
	DetectConflicts func(entries []graphmodel.DiffEntry) []graphmodel.RollbackConflict

	// SafetyBackup captures a restore point before a risky apply; used by Safe.
	SafetyBackup func() (restore func() error, err error)
}

func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Bind attaches a cancelable context to sc, letting strategies observe
// cancellation via sc.Context().Done(). Callers outside this package set it
// through Bind rather than a field, keeping ctx itself unexported.
func Bind(sc *Context, ctx context.Context) {
	sc.ctx = ctx
}

func (c *Context) progress(p int) {
	if c.OnProgress != nil {
		c.OnProgress(p)
	}
}

func (c *Context) logLine(level, msg string, fields map[string]interface{}) {
	if c.OnLog != nil {
		c.OnLog(graphmodel.LogEntry{Timestamp: time.Now(), Level: level, Message: msg, Fields: fields})
	}
}

// Strategy is the shared lifecycle every concrete strategy implements.
type Strategy interface {
	Name() string
	Validate(sc *Context) bool
	EstimateTime(sc *Context) time.Duration
	Execute(sc *Context) error
}

// resolveConflicts applies the context's conflict policy to a detected set
// of conflicts, returning the entries that should still be applied (with
// ASK_USER/MERGE substitutions where applicable) and an error if the policy
// demands abort.
func resolveConflicts(sc *Context, entries []graphmodel.DiffEntry, conflicts []graphmodel.RollbackConflict) ([]graphmodel.DiffEntry, error) {
	if len(conflicts) == 0 {
		return entries, nil
	}

	switch sc.ConflictPolicy {
	case ConflictAbort, "":
		return nil, &graphmodel.RollbackConflictError{Conflicts: conflicts}

	case ConflictSkip:
		skip := conflictedPaths(conflicts)
		var out []graphmodel.DiffEntry
		for _, e := range entries {
			if !skip[e.Path] {
				out = append(out, e)
			}
		}
		return out, nil

	case ConflictOverwrite:
		return entries, nil

	case ConflictAskUser:
		if sc.Resolver == nil {
			return nil, graphmodel.New(graphmodel.ErrStrategyValidationFail, "ASK_USER conflict policy requires a resolver", nil)
		}
		byPath := make(map[string]graphmodel.RollbackConflict, len(conflicts))
		for _, c := range conflicts {
			byPath[c.Path] = c
		}
		out := make([]graphmodel.DiffEntry, 0, len(entries))
		for _, e := range entries {
			if c, conflicted := byPath[e.Path]; conflicted {
				resolved, err := sc.Resolver(c)
				if err != nil {
					return nil, err
				}
				out = append(out, resolved)
				continue
			}
			out = append(out, e)
		}
		return out, nil

	case ConflictMerge:
		byPath := make(map[string]graphmodel.RollbackConflict, len(conflicts))
		for _, c := range conflicts {
			byPath[c.Path] = c
		}
		out := make([]graphmodel.DiffEntry, 0, len(entries))
		for _, e := range entries {
			c, conflicted := byPath[e.Path]
			if !conflicted {
				out = append(out, e)
				continue
			}
			switch c.Kind {
			case graphmodel.ConflictValueMismatch:
				out = append(out, e) // prefer rollback value
			case graphmodel.ConflictMissingTarget, graphmodel.ConflictTypeMismatch:
				// skip
			default:
				out = append(out, e)
			}
		}
		return out, nil

	default:
		return nil, graphmodel.New(graphmodel.ErrUnknownStrategy, "unknown conflict resolution policy", map[string]interface{}{
			"policy": string(sc.ConflictPolicy),
		})
	}
}

func conflictedPaths(conflicts []graphmodel.RollbackConflict) map[string]bool {
	out := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		out[c.Path] = true
	}
	return out
}

func detectConflicts(sc *Context, entries []graphmodel.DiffEntry) []graphmodel.RollbackConflict {
	if sc.DetectConflicts == nil {
		return nil
	}
	return sc.DetectConflicts(entries)
}
