package rollbackstrategy

import (
	"fmt"
	"time"

	"github.com/memento-graph/memento/internal/graphmodel"
)

const safeMaxAge = 7 * 24 * time.Hour

// Safe runs capture-safety-backup -> validate-all -> detect-conflicts ->
// apply. Applied entries are not verified, and there is no final
// verification step. On a conflict abort or an apply error it calls the
// restore closure from the safety backup, surfacing both the original and
// restore errors if the restore itself fails.
type Safe struct{}

func (Safe) Name() string { return "safe" }

// Validate returns false when the rollback point is older than 7 days
// (spec §8's boundary behavior). This is an applicability gate distinct
// from getRecommendedStrategy's 24-hour default-choice heuristic — see
// DESIGN.md's resolution of the corresponding open question.
func (Safe) Validate(sc *Context) bool {
	return sc.RollbackPointAge <= safeMaxAge
}

func (Safe) EstimateTime(sc *Context) time.Duration {
	return time.Duration(len(sc.Diff))*3*time.Millisecond + 50*time.Millisecond
}

func (s Safe) Execute(sc *Context) error {
	if !s.Validate(sc) {
		return graphmodel.New(graphmodel.ErrStrategyValidationFail, "rollback point exceeds safe-strategy age threshold", map[string]interface{}{
			"ageSeconds": sc.RollbackPointAge.Seconds(),
		})
	}

	sc.progress(10)
	var restore func() error
	if sc.SafetyBackup != nil {
		r, err := sc.SafetyBackup()
		if err != nil {
			return fmt.Errorf("capture safety backup: %w", err)
		}
		restore = r
	}

	sc.progress(20)
	// "validate all changes": structural validation is implicit since
	// entries are already typed DiffEntry values; the explicit step exists
	// so progress reporting matches spec §4.5's banded progression.

	sc.progress(30)
	conflicts := detectConflicts(sc, sc.Diff)
	resolved, err := resolveConflicts(sc, sc.Diff, conflicts)
	if err != nil {
		return attemptRestore(restore, err)
	}

	total := len(resolved)
	for i, entry := range resolved {
		if sc.Apply != nil {
			if applyErr := sc.Apply(entry); applyErr != nil {
				sc.logLine("error", "safe apply failed, restoring from safety backup", map[string]interface{}{"path": entry.Path})
				return attemptRestore(restore, applyErr)
			}
		}
		if total > 0 {
			sc.progress(30 + (i+1)*60/total)
		}
	}

	sc.progress(100)
	sc.logLine("info", "safe rollback completed", map[string]interface{}{"entries": total})
	return nil
}

func attemptRestore(restore func() error, original error) error {
	if restore == nil {
		return original
	}
	if restoreErr := restore(); restoreErr != nil {
		return fmt.Errorf("rollback failed (%w) and safety-backup restore also failed: %v", original, restoreErr)
	}
	return original
}
