// Package dbexec is the executor collaborator layer spec §5 calls out
// as external to the compiler core: it takes the SQL/params
// internal/formatter already rendered and actually runs them, scanning
// driver rows into the JSON-shaped maps internal/server hands back to
// the client. Grounded on the teacher's internal/database/connection.go
// (pool construction, slow-query logging, Health) and on subzero's
// executor/postgresql.rs split between "the compiler decides the SQL"
// and "the executor runs it and deals with driver quirks" — each
// dialect gets its own file the way executor/{postgresql,sqlite,...}.rs
// do, sharing only the row-scanning helpers below.
package dbexec

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/formatter"
	"github.com/sqlgateway/sqlgateway/internal/schema"
)

// Executor runs compiled statements against one backend and reports
// its results as JSON-ready row maps. Select and Call share one method
// since a function-call statement is rendered as an ordinary
// `select * from schema.fn(...)` (internal/formatter's formatFunctionCall).
type Executor interface {
	Dialect() formatter.Dialect
	Query(ctx context.Context, stmt formatter.Result) ([]map[string]any, error)
	Mutate(ctx context.Context, m Mutation) (*MutationResult, error)
	Health(ctx context.Context) error
	Close() error
}

// Mutation carries everything an Insert/Update/Delete executor needs:
// the rendered mutation statement itself, plus (for dialects that
// can't RETURNING) the primary key columns the two-phase protocol
// keys its follow-up read on.
type Mutation struct {
	Query       *ast.Query
	Schema      string
	Env         string
	Statement   formatter.Result
	PKColumns   []string
}

// MutationResult is what every dialect's Mutate converges on, whether
// it came back on RETURNING (Postgres) or a phase-two SELECT (the
// rest).
type MutationResult struct {
	Rows         []map[string]any
	RowsAffected int64
}

const slowQueryThreshold = 1 * time.Second

func logSlowQuery(start time.Time, sqlText string) {
	if d := time.Since(start); d > slowQueryThreshold {
		log.Warn().
			Dur("duration", d).
			Str("query", truncate(sqlText, 200)).
			Bool("slow_query", true).
			Msg("slow query detected")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// scanRows drains a database/sql result set into ordered JSON-ready
// maps, normalizing the []byte values the sqlite/mysql/clickhouse
// drivers hand back for text and JSON columns into plain strings.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// enforceCheckColumn inspects the materialized check column (spec
// §4.3 Pass B) each row carries when the mutation's query has a
// non-empty Check tree, returning a PermissionDeniedError and
// stripping the column out of the caller-visible rows the moment any
// row fails it. Callers with a real transaction roll back on this
// error; ClickHouse's executor (no transactions) can only report it
// after the fact, which is the documented limitation for that backend.
func enforceCheckColumn(q *ast.Query, rows []map[string]any) ([]map[string]any, error) {
	if len(q.Check) == 0 {
		return rows, nil
	}
	for _, row := range rows {
		ok, present := row[formatter.CheckColumnAlias]
		delete(row, formatter.CheckColumnAlias)
		if present && !truthy(ok) {
			return nil, &schema.PermissionDeniedError{Details: "row-level check constraint failed"}
		}
	}
	return rows, nil
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		return b == "true" || b == "1" || b == "t"
	default:
		return false
	}
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx, letting
// queryPKValues run inside or outside a transaction.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// keySelectFor renders phase one's key-collecting SELECT for an
// Update/Delete mutation, sharing formatter.FormatTwoPhase across the
// sqlite/mysql/clickhouse executors.
func keySelectFor(m Mutation, d formatter.Dialect) (*formatter.Result, error) {
	_, keySelect, err := formatter.FormatTwoPhase(m.Schema, m.Query, m.Env, m.PKColumns, d)
	if err != nil {
		return nil, err
	}
	return keySelect, nil
}

// queryPKValues runs a phase-one key select and collects its rows as
// ordered value tuples, one per matched row, for use as
// formatter.FormatRepresentationByKeys's pkValues.
func queryPKValues(ctx context.Context, q sqlQuerier, keySelect formatter.Result, pkColumnCount int) ([][]any, error) {
	rows, err := q.QueryContext(ctx, keySelect.SQL, keySelect.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, pkColumnCount)
		ptrs := make([]any, pkColumnCount)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] = normalizeValue(vals[i])
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}
