package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/formatter"
	chdialect "github.com/sqlgateway/sqlgateway/internal/formatter/clickhouse"
)

// ClickHouseExecutor runs compiled statements through the
// clickhouse-go/v2 stdlib driver, following
// _examples/googleapis-genai-toolbox's sqlOpen("clickhouse", dsn)
// pattern. ClickHouse has neither RETURNING nor transactions (spec
// §4.4/§5), so Mutate runs the same two-phase read-back the
// mysql/sqlite executors use, but without a surrounding transaction:
// a failed check column (§4.3 Pass B) can only be reported after the
// write has already landed, which is the accepted, documented
// limitation of this backend rather than a bug to route around.
type ClickHouseExecutor struct {
	db *sql.DB
}

func NewClickHouseExecutor(ctx context.Context, dsn string) (*ClickHouseExecutor, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbexec: open clickhouse: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbexec: ping clickhouse: %w", err)
	}
	return &ClickHouseExecutor{db: db}, nil
}

func (e *ClickHouseExecutor) Dialect() formatter.Dialect { return chdialect.Dialect{} }

// withParams binds stmt.Params to the {param_pN:Type} placeholders
// internal/formatter/clickhouse rendered into the SQL text, using
// ClickHouse's native query-parameters feature (clickhouse-client's
// --param_x mechanism, also reachable over the native protocol) rather
// than the driver's positional `?` bind args.
func withParams(ctx context.Context, params []any) context.Context {
	named := make(clickhouse.Parameters, len(params))
	for i, v := range params {
		named[fmt.Sprintf("param_p%d", i+1)] = fmt.Sprint(v)
	}
	return clickhouse.Context(ctx, clickhouse.WithParameters(named))
}

func (e *ClickHouseExecutor) Query(ctx context.Context, stmt formatter.Result) ([]map[string]any, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(withParams(ctx, stmt.Params), stmt.SQL)
	logSlowQuery(start, stmt.SQL)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// Mutate has no transaction to roll back, so an Insert's new-row keys
// come straight from the payload it just sent (ClickHouse has no
// autoincrement/last-insert-id to query instead), while Update/Delete
// still collect keys with a phase-one SELECT before running, the same
// as the other two-phase dialects.
func (e *ClickHouseExecutor) Mutate(ctx context.Context, m Mutation) (*MutationResult, error) {
	var pkValues [][]any
	var err error

	switch m.Query.Node {
	case ast.Insert:
		pkValues, err = formatter.PayloadPrimaryKeys(m.Query, m.PKColumns)
		if err != nil {
			return nil, err
		}
		if _, err := e.db.ExecContext(withParams(ctx, m.Statement.Params), m.Statement.SQL); err != nil {
			return nil, err
		}
	case ast.Update, ast.Delete:
		keySelect, err := keySelectFor(m, chdialect.Dialect{})
		if err != nil {
			return nil, err
		}
		pkValues, err = queryPKValuesCH(ctx, e.db, *keySelect, len(m.PKColumns))
		if err != nil {
			return nil, err
		}
		if _, err := e.db.ExecContext(withParams(ctx, m.Statement.Params), m.Statement.SQL); err != nil {
			return nil, err
		}
	}

	rep, err := formatter.FormatRepresentationByKeys(m.Schema, m.Query, m.PKColumns, pkValues, chdialect.Dialect{})
	if err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(withParams(ctx, rep.Params), rep.SQL)
	if err != nil {
		return nil, err
	}
	data, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	data, err = enforceCheckColumn(m.Query, data)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Rows: data, RowsAffected: int64(len(pkValues))}, nil
}

// queryPKValuesCH mirrors queryPKValues but runs the key select with
// ClickHouse's named query-parameters binding instead of positional
// bind args, since *sql.DB doesn't satisfy sqlQuerier's plain
// QueryContext(ctx, query, args...) contract here.
func queryPKValuesCH(ctx context.Context, db *sql.DB, keySelect formatter.Result, pkColumnCount int) ([][]any, error) {
	rows, err := db.QueryContext(withParams(ctx, keySelect.Params), keySelect.SQL)
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

func (e *ClickHouseExecutor) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return e.db.PingContext(ctx)
}

func (e *ClickHouseExecutor) Close() error { return e.db.Close() }
