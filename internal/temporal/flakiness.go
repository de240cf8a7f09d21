package temporal

import "github.com/memento-graph/memento/internal/graphmodel"

const recentWindow = 5

// failureRate computes the failure rate over a window of executions;
// "failed" and "error" both count as failures, skipped is excluded from the
// denominator since it was never actually run.
func failureRate(executions []graphmodel.TestExecution) float64 {
	var ran, failed int
	for _, e := range executions {
		if e.Status == graphmodel.TestSkipped {
			continue
		}
		ran++
		if e.Status == graphmodel.TestFailed || e.Status == graphmodel.TestError {
			failed++
		}
	}
	if ran == 0 {
		return 0
	}
	return float64(failed) / float64(ran)
}

func recentExecutions(executions []graphmodel.TestExecution) []graphmodel.TestExecution {
	if len(executions) <= recentWindow {
		return executions
	}
	return executions[len(executions)-recentWindow:]
}

// flakyScore computes spec §4.10's weighted blend:
// 0.6*overallFailureRate + 0.4*recentFailureRate (last 5 executions).
func flakyScore(executions []graphmodel.TestExecution) float64 {
	overall := failureRate(executions)
	recent := failureRate(recentExecutions(executions))
	score := 0.6*overall + 0.4*recent
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// FlakinessReport is returned to callers that need the full detail behind a
// flaky score, matching graphmodel.FlakinessReport's shape.
type FlakinessReport = graphmodel.FlakinessReport

// isFlakyEnough applies spec §4.10's reporting threshold:
// flakyScore ≥ 0.2 ∨ failureRate ≥ 0.2 ∨ recentFailures > 0.
func isFlakyEnough(entity *graphmodel.TestEntity) bool {
	overall := failureRate(entity.ExecutionHistory)
	recent := recentExecutions(entity.ExecutionHistory)
	recentFailures := countFailures(recent)
	return entity.FlakyScore >= 0.2 || overall >= 0.2 || recentFailures > 0
}

func countFailures(executions []graphmodel.TestExecution) int {
	n := 0
	for _, e := range executions {
		if e.Status == graphmodel.TestFailed || e.Status == graphmodel.TestError {
			n++
		}
	}
	return n
}

// severityFor maps a flaky score to spec §4.10's threshold bands.
func severityFor(score float64) string {
	switch {
	case score > 0.8:
		return "critical"
	case score > 0.7:
		return "high"
	case score > 0.5:
		return "medium"
	default:
		return "low"
	}
}

// recommendationsFor produces pattern-based guidance alongside the
// threshold-based severity, per spec §4.10.
func recommendationsFor(entity *graphmodel.TestEntity, overall, recent float64) []string {
	var recs []string

	score := entity.FlakyScore
	switch {
	case score > 0.8:
		recs = append(recs, "quarantine this test until root cause is found")
	case score > 0.7:
		recs = append(recs, "investigate before the next release")
	case score > 0.5:
		recs = append(recs, "monitor closely over the next several runs")
	}

	if alternates(entity.ExecutionHistory) {
		recs = append(recs, "investigate race conditions or timing dependencies")
	}
	if recent > overall {
		recs = append(recs, "failures are concentrated in recent runs, check for a recent regression")
	}
	if entity.PerformanceMetrics.Trend == graphmodel.TrendDegrading {
		recs = append(recs, "performance is degrading alongside flakiness, check for resource contention")
	}
	return recs
}

// alternates reports whether the execution history shows a passed/failed
// alternating pattern characteristic of race conditions, rather than a
// sustained failure streak.
func alternates(executions []graphmodel.TestExecution) bool {
	if len(executions) < 4 {
		return false
	}
	flips := 0
	for i := 1; i < len(executions); i++ {
		if isFailure(executions[i]) != isFailure(executions[i-1]) {
			flips++
		}
	}
	return float64(flips) >= float64(len(executions)-1)*0.5
}

func isFailure(e graphmodel.TestExecution) bool {
	return e.Status == graphmodel.TestFailed || e.Status == graphmodel.TestError
}

// flakinessReportIfNotable returns a FlakinessReport when the entity passes
// spec §4.10's "flaky enough" threshold, nil otherwise.
func flakinessReportIfNotable(entity *graphmodel.TestEntity) *FlakinessReport {
	if !isFlakyEnough(entity) {
		return nil
	}
	overall := failureRate(entity.ExecutionHistory)
	recent := failureRate(recentExecutions(entity.ExecutionHistory))
	return &FlakinessReport{
		TestID:          entity.ID,
		FlakyScore:      entity.FlakyScore,
		OverallFailRate: overall,
		RecentFailRate:  recent,
		RecentFailures:  countFailures(recentExecutions(entity.ExecutionHistory)),
		Severity:        severityFor(entity.FlakyScore),
		Recommendations: recommendationsFor(entity, overall, recent),
	}
}
