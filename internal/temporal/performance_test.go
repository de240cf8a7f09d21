package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memento-graph/memento/internal/graphmodel"
)

func durationsMs(values ...int) []time.Duration {
	out := make([]time.Duration, len(values))
	for i, v := range values {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func TestAvgAndP95(t *testing.T) {
	avg, p95 := avgAndP95(durationsMs(10, 20, 30, 40, 100))
	assert.Equal(t, 40*time.Millisecond, avg)
	assert.Equal(t, 100*time.Millisecond, p95)
}

func TestDetectTrend_Degrading(t *testing.T) {
	tr := &Tracker{cfg: Config{PerfTrendMinRuns: 3, PerfDegradingMinDeltaMs: 5}}
	history := append(durationsMs(10, 10, 10), durationsMs(100, 100, 100)...)
	assert.Equal(t, graphmodel.TrendDegrading, tr.detectTrend(history))
}

func TestDetectTrend_Improving(t *testing.T) {
	tr := &Tracker{cfg: Config{PerfTrendMinRuns: 3, PerfDegradingMinDeltaMs: 5}}
	history := append(durationsMs(100, 100, 100), durationsMs(10, 10, 10)...)
	assert.Equal(t, graphmodel.TrendImproving, tr.detectTrend(history))
}

func TestDetectTrend_StableWhenInsufficientHistory(t *testing.T) {
	tr := &Tracker{cfg: Config{PerfTrendMinRuns: 5}}
	assert.Equal(t, graphmodel.TrendStable, tr.detectTrend(durationsMs(10, 20)))
}

func TestIsSustainedDegrading(t *testing.T) {
	assert.True(t, isSustainedDegrading(durationsMs(10, 20, 30), 3))
	assert.False(t, isSustainedDegrading(durationsMs(10, 30, 20), 3))
	assert.False(t, isSustainedDegrading(durationsMs(10, 20), 3))
}

func TestMaybeEmitPerformance_RegressionThenCloses(t *testing.T) {
	emit := &fakeEmitter{}
	tr := New(NewMemoryStore(), emit, Config{
		PerfImpactP95Ms:         100000,
		PerfImpactAvgMs:         100000,
		PerfDegradingMinDeltaMs: 5,
		PerfTrendMinRuns:        3,
		PerfMinHistory:          3,
		MaxHistory:              100,
	}, nil)

	entity := &graphmodel.TestEntity{ID: "perf-1"}
	entity.PerformanceMetrics = graphmodel.PerformanceMetrics{
		Trend:          graphmodel.TrendDegrading,
		HistoricalData: durationsMs(10, 20, 30),
	}

	ctx := context.Background()
	err := tr.maybeEmitPerformance(ctx, entity)
	assert.NoError(t, err)
	assert.Len(t, emit.emitted, 1)
	assert.Equal(t, graphmodel.RelPerformanceRegression, emit.emitted[0].Type)
	assert.True(t, tr.openIncidents["perf-1"])

	entity.PerformanceMetrics.Trend = graphmodel.TrendImproving
	err = tr.maybeEmitPerformance(ctx, entity)
	assert.NoError(t, err)
	assert.Len(t, emit.emitted, 2)
	assert.Equal(t, graphmodel.TrendImprovement, graphmodel.PerformanceTrend(emit.emitted[1].Metadata["trend"].(string)))
	assert.False(t, tr.openIncidents["perf-1"])
}

func TestMaybeEmitPerformance_ImpactOnHighLatency(t *testing.T) {
	emit := &fakeEmitter{}
	tr := New(NewMemoryStore(), emit, Config{
		PerfImpactP95Ms: 50,
		PerfImpactAvgMs: 50,
	}, nil)

	entity := &graphmodel.TestEntity{ID: "slow-1"}
	entity.PerformanceMetrics = graphmodel.PerformanceMetrics{
		Trend: graphmodel.TrendStable,
		Avg:   100 * time.Millisecond,
		P95:   200 * time.Millisecond,
	}

	err := tr.maybeEmitPerformance(context.Background(), entity)
	assert.NoError(t, err)
	assert.Len(t, emit.emitted, 1)
	assert.Equal(t, graphmodel.RelPerformanceImpact, emit.emitted[0].Type)
}
