package rollbackstrategy

import "time"

// Immediate detects conflicts across the whole diff then applies every
// change sequentially. Per the resolved Open Question in DESIGN.md,
// conflict detection here is a real scan (not the teacher's never-true
// placeholder) since the §8 testable property requires an injected
// VALUE_MISMATCH to actually fail the operation.
type Immediate struct{}

func (Immediate) Name() string { return "immediate" }

func (Immediate) Validate(sc *Context) bool { return true }

func (Immediate) EstimateTime(sc *Context) time.Duration {
	return time.Duration(len(sc.Diff)) * 2 * time.Millisecond
}

func (Immediate) Execute(sc *Context) error {
	sc.progress(0)

	conflicts := detectConflicts(sc, sc.Diff)
	resolved, err := resolveConflicts(sc, sc.Diff, conflicts)
	if err != nil {
		sc.logLine("error", "conflict resolution failed", map[string]interface{}{"error": err.Error()})
		return err
	}

	sc.progress(10)
	total := len(resolved)
	for i, entry := range resolved {
		if sc.Apply != nil {
			if err := sc.Apply(entry); err != nil {
				sc.logLine("error", "apply failed", map[string]interface{}{"path": entry.Path, "error": err.Error()})
				return err
			}
		}
		if total > 0 {
			sc.progress(10 + (i+1)*90/total)
		}
	}

	sc.progress(100)
	sc.logLine("info", "immediate rollback completed", map[string]interface{}{"entries": total})
	return nil
}
