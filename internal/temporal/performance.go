package temporal

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// updatePerformance recomputes PerformanceMetrics from the bounded duration
// history, falling back to all durations when no execution succeeded, per
// spec §4.10.
func (t *Tracker) updatePerformance(entity *graphmodel.TestEntity, latest graphmodel.TestResult) {
	durations := successfulDurations(entity.ExecutionHistory)
	if len(durations) == 0 {
		durations = allDurations(entity.ExecutionHistory)
	}

	hist := append(entity.PerformanceMetrics.HistoricalData, latest.Duration)
	if max := t.cfg.MaxHistory; max > 0 && len(hist) > max {
		hist = hist[len(hist)-max:]
	}

	avg, p95 := avgAndP95(durations)
	entity.PerformanceMetrics = graphmodel.PerformanceMetrics{
		Avg:            avg,
		P95:            p95,
		SuccessRate:    successRate(entity.ExecutionHistory),
		Trend:          t.detectTrend(hist),
		HistoricalData: hist,
	}
}

func successfulDurations(executions []graphmodel.TestExecution) []time.Duration {
	var out []time.Duration
	for _, e := range executions {
		if e.Status == graphmodel.TestPassed {
			out = append(out, e.Duration)
		}
	}
	return out
}

func allDurations(executions []graphmodel.TestExecution) []time.Duration {
	out := make([]time.Duration, 0, len(executions))
	for _, e := range executions {
		out = append(out, e.Duration)
	}
	return out
}

func successRate(executions []graphmodel.TestExecution) float64 {
	var ran, passed int
	for _, e := range executions {
		if e.Status == graphmodel.TestSkipped {
			continue
		}
		ran++
		if e.Status == graphmodel.TestPassed {
			passed++
		}
	}
	if ran == 0 {
		return 0
	}
	return float64(passed) / float64(ran)
}

func avgAndP95(durations []time.Duration) (avg, p95 time.Duration) {
	if len(durations) == 0 {
		return 0, 0
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg = total / time.Duration(len(sorted))

	idx := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	p95 = sorted[idx]
	return avg, p95
}

// detectTrend compares the last PerfTrendMinRuns-sized window's average
// against the previous window's average, per spec §4.10: degrading when the
// delta exceeds PerfDegradingMinDeltaMs or ≥5%, improving symmetrically,
// stable otherwise.
func (t *Tracker) detectTrend(history []time.Duration) graphmodel.PerformanceTrend {
	window := t.cfg.PerfTrendMinRuns
	if window <= 0 {
		window = 5
	}
	if len(history) < 2*window {
		return graphmodel.TrendStable
	}

	prevWindow := history[len(history)-2*window : len(history)-window]
	lastWindow := history[len(history)-window:]

	prevAvg := meanDuration(prevWindow)
	lastAvg := meanDuration(lastWindow)

	delta := lastAvg - prevAvg
	thresholdMs := time.Duration(t.cfg.PerfDegradingMinDeltaMs) * time.Millisecond
	pctThreshold := prevAvg / 20 // 5%

	switch {
	case delta > 0 && (delta >= thresholdMs || delta >= pctThreshold):
		return graphmodel.TrendDegrading
	case delta < 0 && (-delta >= thresholdMs || -delta >= pctThreshold):
		return graphmodel.TrendImproving
	default:
		return graphmodel.TrendStable
	}
}

func meanDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}

// isSustainedDegrading checks that the last PerfTrendMinRuns durations are
// monotonically increasing, the "sustained ... with monotone increase"
// condition spec §4.10 requires before emitting PERFORMANCE_REGRESSION.
func isSustainedDegrading(history []time.Duration, runs int) bool {
	if runs <= 0 || len(history) < runs {
		return false
	}
	window := history[len(history)-runs:]
	for i := 1; i < len(window); i++ {
		if window[i] < window[i-1] {
			return false
		}
	}
	return true
}

// maybeEmitPerformance emits PERFORMANCE_REGRESSION on a sustained
// degrading trend, PERFORMANCE_IMPACT when absolute latency exceeds the
// configured ceilings, and closes a previously-open incident with an
// "improvement"-trend PERFORMANCE_REGRESSION carrying resolvedAt, per spec
// §4.10.
func (t *Tracker) maybeEmitPerformance(ctx context.Context, entity *graphmodel.TestEntity) error {
	metrics := entity.PerformanceMetrics

	if metrics.Trend == graphmodel.TrendDegrading &&
		isSustainedDegrading(metrics.HistoricalData, t.cfg.PerfTrendMinRuns) &&
		len(metrics.HistoricalData) >= t.cfg.PerfMinHistory {
		if err := t.emitPerformanceRelationship(ctx, entity, graphmodel.RelPerformanceRegression, map[string]interface{}{
			"trend": string(graphmodel.TrendDegrading),
		}); err != nil {
			return err
		}
		t.openIncidents[entity.ID] = true
	} else if metrics.Trend == graphmodel.TrendImproving && t.openIncidents[entity.ID] {
		if err := t.emitPerformanceRelationship(ctx, entity, graphmodel.RelPerformanceRegression, map[string]interface{}{
			"trend":      string(graphmodel.TrendImprovement),
			"resolvedAt": time.Now(),
		}); err != nil {
			return err
		}
		delete(t.openIncidents, entity.ID)
	}

	p95Ceiling := time.Duration(t.cfg.PerfImpactP95Ms) * time.Millisecond
	avgCeiling := time.Duration(t.cfg.PerfImpactAvgMs) * time.Millisecond
	if (p95Ceiling > 0 && metrics.P95 > p95Ceiling) || (avgCeiling > 0 && metrics.Avg > avgCeiling) {
		if err := t.emitPerformanceRelationship(ctx, entity, graphmodel.RelPerformanceImpact, map[string]interface{}{
			"p95Ms": metrics.P95.Milliseconds(),
			"avgMs": metrics.Avg.Milliseconds(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) emitPerformanceRelationship(ctx context.Context, entity *graphmodel.TestEntity, relType string, metadata map[string]interface{}) error {
	sessionID := "test-session:" + entity.ID
	seq := t.sequence.NextSequence(sessionID)
	metadata["testId"] = entity.ID

	rel := &graphmodel.Relationship{
		FromEntityID:   entity.ID,
		ToEntityID:     entity.ID,
		Type:           relType,
		SessionID:      sessionID,
		SequenceNumber: seq,
		Created:        time.Now(),
		Metadata:       metadata,
	}
	return t.emit.EmitRelationship(ctx, rel)
}
