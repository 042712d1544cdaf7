package dbexec

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlgateway/sqlgateway/internal/config"
	"github.com/sqlgateway/sqlgateway/internal/formatter"
	"github.com/sqlgateway/sqlgateway/internal/formatter/postgres"
)

// PostgresExecutor wraps a pgxpool.Pool, trimmed from the teacher's
// database.Connection down to the query/mutate/health surface this
// compiler needs — schema introspection and migrations stay out of
// scope (spec §1 Non-goals: "schema-introspection SQL itself").
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutor opens a pool against cfg.DSN, following
// connection.go's pool-settings wiring (MaxConns/MinConns/lifetimes)
// and its startup ping.
func NewPostgresExecutor(ctx context.Context, cfg config.DatabaseConfig) (*PostgresExecutor, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("dbexec: parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = cfg.MinConnections
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("dbexec: create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbexec: ping postgres: %w", err)
	}

	return &PostgresExecutor{pool: pool}, nil
}

func (e *PostgresExecutor) Dialect() formatter.Dialect { return postgres.Dialect{} }

func (e *PostgresExecutor) Query(ctx context.Context, stmt formatter.Result) ([]map[string]any, error) {
	start := time.Now()
	rows, err := e.pool.Query(ctx, stmt.SQL, stmt.Params...)
	logSlowQuery(start, stmt.SQL)
	if err != nil {
		return nil, err
	}
	return scanPgxRows(rows)
}

// Mutate relies on Postgres's RETURNING support: the statement
// internal/formatter already rendered includes "returning *" (or the
// explicit q.Returning columns), so one round trip is both the
// mutation and its representation read, unlike the two-phase dialects.
// It still runs inside an explicit transaction so a failed check
// column (spec §4.3 Pass B) rolls the write back rather than merely
// being reported after it already committed.
func (e *PostgresExecutor) Mutate(ctx context.Context, m Mutation) (*MutationResult, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	rows, err := tx.Query(ctx, m.Statement.SQL, m.Statement.Params...)
	logSlowQuery(start, m.Statement.SQL)
	if err != nil {
		return nil, err
	}
	data, err := scanPgxRows(rows)
	if err != nil {
		return nil, err
	}
	data, err = enforceCheckColumn(m.Query, data)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &MutationResult{Rows: data, RowsAffected: int64(len(data))}, nil
}

func (e *PostgresExecutor) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var result int
	if err := e.pool.QueryRow(ctx, "select 1").Scan(&result); err != nil {
		return fmt.Errorf("dbexec: postgres health check failed: %w", err)
	}
	return nil
}

func (e *PostgresExecutor) Close() error {
	e.pool.Close()
	return nil
}

func scanPgxRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
