package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDocumentedDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Rollback.MaxRollbackPoints)
	assert.Equal(t, 24*time.Hour, cfg.Rollback.DefaultTTL)
	assert.True(t, cfg.Rollback.AutoCleanup)
	assert.Equal(t, int64(10*1024*1024), cfg.Rollback.MaxSnapshotSize)

	assert.Equal(t, "memory", cfg.Pipeline.EventBus.Type)
	assert.Equal(t, 8, cfg.Pipeline.EventBus.Partitions)
	assert.Equal(t, 4, cfg.Pipeline.Workers.Parsers)
	assert.Equal(t, 2, cfg.Pipeline.Workers.EmbeddingWorkers)

	assert.Equal(t, 2000, cfg.Temporal.PerfImpactP95Ms)
	assert.Equal(t, 5, cfg.Temporal.PerfTrendMinRuns)

	assert.True(t, cfg.Incident.HistoryEnabled)
	assert.Equal(t, 2, cfg.Incident.IncidentHops)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("PIPELINE_EVENT_BUS_TYPE", "redis")
	t.Setenv("PIPELINE_EVENT_BUS_PARTITIONS", "16")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Pipeline.EventBus.Type)
	assert.Equal(t, 16, cfg.Pipeline.EventBus.Partitions)
}

func TestLoad_IncidentHopsFallsBackToCheckpointHops(t *testing.T) {
	t.Setenv("HISTORY_CHECKPOINT_HOPS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Incident.IncidentHops)
}

func TestLoad_ExplicitIncidentHopsWinsOverFallback(t *testing.T) {
	t.Setenv("INCIDENT_INCIDENT_HOPS", "3")
	t.Setenv("HISTORY_CHECKPOINT_HOPS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Incident.IncidentHops)
}

func TestLoad_RejectsOutOfRangeIncidentHops(t *testing.T) {
	t.Setenv("INCIDENT_INCIDENT_HOPS", "9")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incidentHops")
}

func TestLoad_RejectsUnknownEventBusType(t *testing.T) {
	t.Setenv("PIPELINE_EVENT_BUS_TYPE", "carrier-pigeon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eventBus.type")
}

func TestValidator_AccumulatesMultipleErrors(t *testing.T) {
	v := NewValidator()
	v.RequirePositiveInt("a", -1)
	v.RequirePositiveInt("b", 0)
	v.RequireOneOf("c", "x", "y", "z")

	assert.False(t, v.IsValid())
	assert.Len(t, v.Errors(), 3)
	assert.Contains(t, v.ErrorString(), "a must be positive")
	assert.Contains(t, v.ErrorString(), "c must be one of")
}
