package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/formatter"
	"github.com/sqlgateway/sqlgateway/internal/formatter/sqlite"
)

// SQLiteExecutor runs compiled statements through modernc.org/sqlite's
// pure-Go driver. SQLite's RETURNING clause cannot appear inside the
// CTE-free, non-transactional statements this compiler's mutation
// path emits for it (spec §4.4, §9), so every mutation goes through
// the two-phase protocol: collect primary keys (or read them off the
// driver's last-insert-rowid for an Insert), then re-select the
// representation by those keys, all inside one pinned connection's
// transaction per spec §5's "the connection is pinned for the
// request's duration".
type SQLiteExecutor struct {
	db *sql.DB
}

func NewSQLiteExecutor(ctx context.Context, dsn string) (*SQLiteExecutor, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbexec: open sqlite: %w", err)
	}
	// SQLite serializes writes at the file level regardless of Go-side
	// pooling; a single shared connection avoids "database is locked"
	// errors from concurrent pool members.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbexec: ping sqlite: %w", err)
	}
	return &SQLiteExecutor{db: db}, nil
}

func (e *SQLiteExecutor) Dialect() formatter.Dialect { return sqlite.Dialect{} }

func (e *SQLiteExecutor) Query(ctx context.Context, stmt formatter.Result) ([]map[string]any, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, stmt.SQL, stmt.Params...)
	logSlowQuery(start, stmt.SQL)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (e *SQLiteExecutor) Mutate(ctx context.Context, m Mutation) (*MutationResult, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var pkValues [][]any
	switch m.Query.Node {
	case ast.Insert:
		res, err := tx.ExecContext(ctx, m.Statement.SQL, m.Statement.Params...)
		if err != nil {
			return nil, err
		}
		pkValues, err = contiguousInsertKeys(res)
		if err != nil {
			return nil, err
		}
	case ast.Update, ast.Delete:
		keySelect, err := keySelectFor(m, sqlite.Dialect{})
		if err != nil {
			return nil, err
		}
		pkValues, err = queryPKValues(ctx, tx, *keySelect, len(m.PKColumns))
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, m.Statement.SQL, m.Statement.Params...); err != nil {
			return nil, err
		}
	}

	rep, err := formatter.FormatRepresentationByKeys(m.Schema, m.Query, m.PKColumns, pkValues, sqlite.Dialect{})
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, rep.SQL, rep.Params...)
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
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &MutationResult{Rows: data, RowsAffected: int64(len(pkValues))}, nil
}

func (e *SQLiteExecutor) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return e.db.PingContext(ctx)
}

func (e *SQLiteExecutor) Close() error { return e.db.Close() }
