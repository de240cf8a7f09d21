package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memento-graph/memento/internal/collaborators"
	"github.com/memento-graph/memento/internal/graphmodel"
)

// PostgresExecutionStore persists TestEntity state as JSON blobs keyed by
// test ID, grounded on db/repository/postgres.go's PostgresMetricsRepository:
// same pgx-pool handle, same json.Marshal-into-a-column shape instead of a
// fully normalized schema, since TestEntity's nested
// ExecutionHistory/PerformanceMetrics are read back whole far more often
// than queried by field.
type PostgresExecutionStore struct {
	db *collaborators.PostgresPool
}

// NewPostgresExecutionStore wraps an existing PostgresPool handle. The caller
// owns the connection pool's lifetime.
func NewPostgresExecutionStore(pg *collaborators.PostgresPool) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: pg}
}

// EnsureSchema creates the backing table if absent. Safe to call on every
// startup.
func (s *PostgresExecutionStore) EnsureSchema(ctx context.Context) error {
	return s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS test_entities (
			test_id    TEXT PRIMARY KEY,
			test_name  TEXT NOT NULL,
			entity_data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
}

func (s *PostgresExecutionStore) GetOrCreate(testID, testName string) (*graphmodel.TestEntity, error) {
	ctx := context.Background()
	if entity, ok := s.Get(testID); ok {
		return entity, nil
	}

	entity := &graphmodel.TestEntity{ID: testID, Name: testName}
	if err := s.Save(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *PostgresExecutionStore) Save(ctx context.Context, entity *graphmodel.TestEntity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal test entity %s: %w", entity.ID, err)
	}

	return s.db.Exec(ctx, `
		INSERT INTO test_entities (test_id, test_name, entity_data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (test_id) DO UPDATE
		SET test_name = EXCLUDED.test_name, entity_data = EXCLUDED.entity_data, updated_at = EXCLUDED.updated_at
	`, entity.ID, entity.Name, data, time.Now())
}

func (s *PostgresExecutionStore) Get(testID string) (*graphmodel.TestEntity, bool) {
	ctx := context.Background()
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT entity_data FROM test_entities WHERE test_id = $1`, testID).Scan(&data)
	if err != nil {
		return nil, false
	}

	var entity graphmodel.TestEntity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, false
	}
	return &entity, true
}

// AggregatedMetrics mirrors db/repository/interfaces.go's ActionMetrics
// shape, applied to flakiness/performance instead of workflow-action runs.
type AggregatedMetrics struct {
	TestID          string
	TotalRuns       int64
	Passed          int64
	Failed          int64
	AvgDurationMs   int64
	P95DurationMs   int64
	FlakyScore      float64
	LastRun         time.Time
}

// GetAggregatedMetrics computes a summary over a test's stored execution
// history, the Postgres-backed counterpart to the in-memory
// flakinessReportIfNotable query surface.
func (s *PostgresExecutionStore) GetAggregatedMetrics(ctx context.Context, testID string) (*AggregatedMetrics, error) {
	entity, ok := s.Get(testID)
	if !ok {
		return nil, fmt.Errorf("test entity %s not found", testID)
	}

	var passed, failed int64
	var lastRun time.Time
	for _, e := range entity.ExecutionHistory {
		switch e.Status {
		case graphmodel.TestPassed:
			passed++
		case graphmodel.TestFailed, graphmodel.TestError:
			failed++
		}
		if e.Timestamp.After(lastRun) {
			lastRun = e.Timestamp
		}
	}

	return &AggregatedMetrics{
		TestID:        testID,
		TotalRuns:     int64(len(entity.ExecutionHistory)),
		Passed:        passed,
		Failed:        failed,
		AvgDurationMs: entity.PerformanceMetrics.Avg.Milliseconds(),
		P95DurationMs: entity.PerformanceMetrics.P95.Milliseconds(),
		FlakyScore:    entity.FlakyScore,
		LastRun:       lastRun,
	}, nil
}

// DeleteOldRuns prunes history entries older than the given time, mirroring
// MetricsRepository.DeleteOldRuns's retention-cleanup contract.
func (s *PostgresExecutionStore) DeleteOldRuns(ctx context.Context, olderThan time.Time) (int, error) {
	rows, err := s.db.Query(ctx, `SELECT test_id, entity_data FROM test_entities`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type pruned struct {
		id     string
		entity graphmodel.TestEntity
	}
	var toUpdate []pruned

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			continue
		}
		var entity graphmodel.TestEntity
		if err := json.Unmarshal(data, &entity); err != nil {
			continue
		}
		kept := entity.ExecutionHistory[:0]
		removed := 0
		for _, e := range entity.ExecutionHistory {
			if e.Timestamp.Before(olderThan) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if removed > 0 {
			entity.ExecutionHistory = kept
			toUpdate = append(toUpdate, pruned{id: id, entity: entity})
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	total := 0
	for _, p := range toUpdate {
		if err := s.Save(ctx, &p.entity); err != nil {
			return total, err
		}
		total++
	}
	return total, nil
}
