// Package config loads Memento's process-wide configuration from environment
// variables (and an optional YAML file) via viper. Grounded on
// config/config.go's sub-config-struct-per-concern shape (ServerConfig,
// DatabaseConfig, …, each with its own Load* function and prefix), but reads
// through viper.AutomaticEnv instead of the teacher's raw os.Getenv helper so
// a config file can override the documented defaults too.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RollbackConfig configures internal/rollbackmanager, defaults per spec §6.
type RollbackConfig struct {
	MaxRollbackPoints    int
	DefaultTTL           time.Duration
	AutoCleanup          bool
	CleanupInterval      time.Duration
	MaxSnapshotSize      int64
	EnablePersistence    bool
	PersistenceType      string
	RequireDatabaseReady bool
}

// StoreConfig configures internal/rollbackstore independent of the manager
// that owns it, matching the teacher's habit of a narrower sub-config per
// constructor rather than threading the whole tree through.
type StoreConfig struct {
	MaxItems          int
	DefaultTTL        time.Duration
	EnableLRU         bool
	EnablePersistence bool
}

// EventBusConfig configures internal/eventbus.
type EventBusConfig struct {
	Type       string // redis | nats | memory | amqp
	URL        string
	Partitions int
}

// WorkersConfig configures internal/workerpool's per-type concurrency.
type WorkersConfig struct {
	Parsers             int
	EntityWorkers       int
	RelationshipWorkers int
	EmbeddingWorkers    int
}

// BatchingConfig configures internal/batchcoordinator.
type BatchingConfig struct {
	EntityBatchSize       int
	RelationshipBatchSize int
	EmbeddingBatchSize    int
	TimeoutMs             int
	MaxConcurrentBatches  int
	FlushInterval         time.Duration
	IdempotencyTTL        time.Duration
}

// QueuesConfig configures the bounded queue backing the event bus.
type QueuesConfig struct {
	MaxSize        int
	PartitionCount int
	BatchSize      int
	BatchTimeout   time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

// AlertThresholds configures internal/telemetry's alert{} triggers.
type AlertThresholds struct {
	QueueDepth int
	LatencyMs  int
	ErrorRate  float64
}

// MonitoringConfig configures internal/telemetry's sampling cadence.
type MonitoringConfig struct {
	MetricsInterval     time.Duration
	HealthCheckInterval time.Duration
	AlertThresholds     AlertThresholds
}

// PipelineConfig is the full ingestion-pipeline configuration tree from
// spec §6: eventBus, workers, batching, queues, monitoring.
type PipelineConfig struct {
	EventBus   EventBusConfig
	Workers    WorkersConfig
	Batching   BatchingConfig
	Queues     QueuesConfig
	Monitoring MonitoringConfig
}

// TemporalConfig configures internal/temporal's flakiness/performance
// thresholds, all env-driven per spec §6.
type TemporalConfig struct {
	PerfImpactP95Ms        int
	PerfImpactAvgMs        int
	PerfDegradingMinDeltaMs int
	PerfTrendMinRuns       int
	PerfMinHistory         int
}

// IncidentConfig configures internal/incident's checkpoint gating.
type IncidentConfig struct {
	HistoryEnabled         bool
	HistoryIncidentEnabled bool
	IncidentHops           int
}

// Config is the fully-populated, process-wide configuration tree. Subsystem
// constructors take their own typed sub-config (RollbackConfig,
// PipelineConfig, …), never this whole struct, following the teacher's
// LoggerConfig/Config split.
type Config struct {
	Rollback RollbackConfig
	Store    StoreConfig
	Pipeline PipelineConfig
	Temporal TemporalConfig
	Incident IncidentConfig
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setRollbackDefaults(v *viper.Viper) {
	v.SetDefault("rollback.max_rollback_points", 50)
	v.SetDefault("rollback.default_ttl", "24h")
	v.SetDefault("rollback.auto_cleanup", true)
	v.SetDefault("rollback.cleanup_interval", "5m")
	v.SetDefault("rollback.max_snapshot_size", 10*1024*1024)
	v.SetDefault("rollback.enable_persistence", false)
	v.SetDefault("rollback.persistence_type", "memory")
	v.SetDefault("rollback.require_database_ready", true)
}

func setStoreDefaults(v *viper.Viper) {
	v.SetDefault("store.max_items", 50)
	v.SetDefault("store.default_ttl", "24h")
	v.SetDefault("store.enable_lru", true)
	v.SetDefault("store.enable_persistence", false)
}

func setPipelineDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.event_bus.type", "memory")
	v.SetDefault("pipeline.event_bus.url", "")
	v.SetDefault("pipeline.event_bus.partitions", 8)

	v.SetDefault("pipeline.workers.parsers", 4)
	v.SetDefault("pipeline.workers.entity_workers", 4)
	v.SetDefault("pipeline.workers.relationship_workers", 4)
	v.SetDefault("pipeline.workers.embedding_workers", 2)

	v.SetDefault("pipeline.batching.entity_batch_size", 100)
	v.SetDefault("pipeline.batching.relationship_batch_size", 100)
	v.SetDefault("pipeline.batching.embedding_batch_size", 50)
	v.SetDefault("pipeline.batching.timeout_ms", 2000)
	v.SetDefault("pipeline.batching.max_concurrent_batches", 4)
	v.SetDefault("pipeline.batching.flush_interval", "1s")
	v.SetDefault("pipeline.batching.idempotency_ttl", "10m")

	v.SetDefault("pipeline.queues.max_size", 10000)
	v.SetDefault("pipeline.queues.partition_count", 8)
	v.SetDefault("pipeline.queues.batch_size", 100)
	v.SetDefault("pipeline.queues.batch_timeout", "2s")
	v.SetDefault("pipeline.queues.retry_attempts", 3)
	v.SetDefault("pipeline.queues.retry_delay", "500ms")

	v.SetDefault("pipeline.monitoring.metrics_interval", "10s")
	v.SetDefault("pipeline.monitoring.health_check_interval", "30s")
	v.SetDefault("pipeline.monitoring.alert_thresholds.queue_depth", 5000)
	v.SetDefault("pipeline.monitoring.alert_thresholds.latency_ms", 1000)
	v.SetDefault("pipeline.monitoring.alert_thresholds.error_rate", 0.05)
}

func setTemporalDefaults(v *viper.Viper) {
	v.SetDefault("temporal.perf_impact_p95_ms", 2000)
	v.SetDefault("temporal.perf_impact_avg_ms", 1000)
	v.SetDefault("temporal.perf_degrading_min_delta_ms", 100)
	v.SetDefault("temporal.perf_trend_min_runs", 5)
	v.SetDefault("temporal.perf_min_history", 5)
}

func setIncidentDefaults(v *viper.Viper) {
	v.SetDefault("incident.history_enabled", true)
	v.SetDefault("incident.history_incident_enabled", true)
	v.SetDefault("incident.incident_hops", 2)
}

// Load reads configuration from environment variables (and cfgFile, if
// non-empty) into a fully-populated Config, applying spec §6's documented
// defaults for anything unset.
func Load(cfgFile string) (*Config, error) {
	v := newViper()
	setRollbackDefaults(v)
	setStoreDefaults(v)
	setPipelineDefaults(v)
	setTemporalDefaults(v)
	setIncidentDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		Rollback: RollbackConfig{
			MaxRollbackPoints:    v.GetInt("rollback.max_rollback_points"),
			DefaultTTL:           v.GetDuration("rollback.default_ttl"),
			AutoCleanup:          v.GetBool("rollback.auto_cleanup"),
			CleanupInterval:      v.GetDuration("rollback.cleanup_interval"),
			MaxSnapshotSize:      v.GetInt64("rollback.max_snapshot_size"),
			EnablePersistence:    v.GetBool("rollback.enable_persistence"),
			PersistenceType:      v.GetString("rollback.persistence_type"),
			RequireDatabaseReady: v.GetBool("rollback.require_database_ready"),
		},
		Store: StoreConfig{
			MaxItems:          v.GetInt("store.max_items"),
			DefaultTTL:        v.GetDuration("store.default_ttl"),
			EnableLRU:         v.GetBool("store.enable_lru"),
			EnablePersistence: v.GetBool("store.enable_persistence"),
		},
		Pipeline: PipelineConfig{
			EventBus: EventBusConfig{
				Type:       v.GetString("pipeline.event_bus.type"),
				URL:        v.GetString("pipeline.event_bus.url"),
				Partitions: v.GetInt("pipeline.event_bus.partitions"),
			},
			Workers: WorkersConfig{
				Parsers:             v.GetInt("pipeline.workers.parsers"),
				EntityWorkers:       v.GetInt("pipeline.workers.entity_workers"),
				RelationshipWorkers: v.GetInt("pipeline.workers.relationship_workers"),
				EmbeddingWorkers:    v.GetInt("pipeline.workers.embedding_workers"),
			},
			Batching: BatchingConfig{
				EntityBatchSize:       v.GetInt("pipeline.batching.entity_batch_size"),
				RelationshipBatchSize: v.GetInt("pipeline.batching.relationship_batch_size"),
				EmbeddingBatchSize:    v.GetInt("pipeline.batching.embedding_batch_size"),
				TimeoutMs:             v.GetInt("pipeline.batching.timeout_ms"),
				MaxConcurrentBatches:  v.GetInt("pipeline.batching.max_concurrent_batches"),
				FlushInterval:         v.GetDuration("pipeline.batching.flush_interval"),
				IdempotencyTTL:        v.GetDuration("pipeline.batching.idempotency_ttl"),
			},
			Queues: QueuesConfig{
				MaxSize:        v.GetInt("pipeline.queues.max_size"),
				PartitionCount: v.GetInt("pipeline.queues.partition_count"),
				BatchSize:      v.GetInt("pipeline.queues.batch_size"),
				BatchTimeout:   v.GetDuration("pipeline.queues.batch_timeout"),
				RetryAttempts:  v.GetInt("pipeline.queues.retry_attempts"),
				RetryDelay:     v.GetDuration("pipeline.queues.retry_delay"),
			},
			Monitoring: MonitoringConfig{
				MetricsInterval:     v.GetDuration("pipeline.monitoring.metrics_interval"),
				HealthCheckInterval: v.GetDuration("pipeline.monitoring.health_check_interval"),
				AlertThresholds: AlertThresholds{
					QueueDepth: v.GetInt("pipeline.monitoring.alert_thresholds.queue_depth"),
					LatencyMs:  v.GetInt("pipeline.monitoring.alert_thresholds.latency_ms"),
					ErrorRate:  v.GetFloat64("pipeline.monitoring.alert_thresholds.error_rate"),
				},
			},
		},
		Temporal: TemporalConfig{
			PerfImpactP95Ms:         v.GetInt("temporal.perf_impact_p95_ms"),
			PerfImpactAvgMs:         v.GetInt("temporal.perf_impact_avg_ms"),
			PerfDegradingMinDeltaMs: v.GetInt("temporal.perf_degrading_min_delta_ms"),
			PerfTrendMinRuns:        v.GetInt("temporal.perf_trend_min_runs"),
			PerfMinHistory:          v.GetInt("temporal.perf_min_history"),
		},
		Incident: IncidentConfig{
			HistoryEnabled:         v.GetBool("incident.history_enabled"),
			HistoryIncidentEnabled: v.GetBool("incident.history_incident_enabled"),
			IncidentHops:           v.GetInt("incident.incident_hops"),
		},
	}

	// Unless INCIDENT_INCIDENT_HOPS or the config file sets the hop count,
	// HISTORY_INCIDENT_HOPS applies, falling back to HISTORY_CHECKPOINT_HOPS.
	// IsSet cannot detect this for incident.incident_hops, which has a default.
	_, explicitHops := os.LookupEnv("INCIDENT_INCIDENT_HOPS")
	if !explicitHops && !v.InConfig("incident.incident_hops") {
		for _, key := range []string{"history_incident_hops", "history_checkpoint_hops"} {
			if v.IsSet(key) {
				cfg.Incident.IncidentHops = v.GetInt(key)
				break
			}
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold regardless of source, mirroring
// config/config.go's Validator accumulate-then-report style.
func Validate(cfg *Config) error {
	v := NewValidator()
	v.RequirePositiveInt("rollback.maxRollbackPoints", cfg.Rollback.MaxRollbackPoints)
	v.RequirePositiveInt("store.maxItems", cfg.Store.MaxItems)
	v.RequireOneOf("pipeline.eventBus.type", cfg.Pipeline.EventBus.Type, "redis", "nats", "memory", "amqp")
	v.RequirePositiveInt("pipeline.eventBus.partitions", cfg.Pipeline.EventBus.Partitions)
	v.RequireOneOf("rollback.persistenceType", cfg.Rollback.PersistenceType, "memory", "bolt")
	if cfg.Incident.IncidentHops < 1 || cfg.Incident.IncidentHops > 5 {
		v.Fail(fmt.Sprintf("incident.incidentHops must be in [1,5], got %d", cfg.Incident.IncidentHops))
	}
	if !v.IsValid() {
		return fmt.Errorf("invalid configuration: %s", v.ErrorString())
	}
	return nil
}
