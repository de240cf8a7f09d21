package collaborators

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPool wraps a pgx connection pool with helper methods, grounded on
// db/postgres_pgx.go's lightweight pgx-over-GORM wrapper: direct SQL access
// with pooling, no ORM overhead, for the temporal tracker's execution-history
// persistence which reads/writes whole JSON blobs more often than it queries
// by column.
type PostgresPool struct {
	pool *pgxpool.Pool
}

// NewPostgresPool opens a connection pool and verifies connectivity.
func NewPostgresPool(ctx context.Context, connString string) (*PostgresPool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresPool{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresPool) Close() {
	p.pool.Close()
}

// Exec executes a statement that returns no rows.
func (p *PostgresPool) Exec(ctx context.Context, sql string, args ...interface{}) error {
	_, err := p.pool.Exec(ctx, sql, args...)
	return err
}

// Query executes a query returning multiple rows. Caller must close the result.
func (p *PostgresPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query expected to return at most one row.
func (p *PostgresPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// Pool exposes the underlying pgxpool for transactions or batch operations.
func (p *PostgresPool) Pool() *pgxpool.Pool {
	return p.pool
}
