package rollbackstrategy

import "time"

// Force skips validation and conflict detection entirely, applying every
// entry for maximal throughput. It logs a warning up front since this
// bypasses the safety nets every other strategy provides.
type Force struct{}

func (Force) Name() string { return "force" }

func (Force) Validate(sc *Context) bool { return true }

func (Force) EstimateTime(sc *Context) time.Duration {
	return time.Duration(len(sc.Diff)) * time.Millisecond
}

func (Force) Execute(sc *Context) error {
	sc.logLine("warn", "force strategy bypassing validation and conflict detection", map[string]interface{}{
		"entries": len(sc.Diff),
	})

	sc.progress(0)
	total := len(sc.Diff)
	for i, entry := range sc.Diff {
		if sc.Apply != nil {
			if err := sc.Apply(entry); err != nil {
				sc.logLine("error", "force apply failed", map[string]interface{}{"path": entry.Path, "error": err.Error()})
				return err
			}
		}
		if total > 0 {
			sc.progress((i + 1) * 100 / total)
		}
	}

	sc.progress(100)
	return nil
}
