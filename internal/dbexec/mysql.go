package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/formatter"
	"github.com/sqlgateway/sqlgateway/internal/formatter/mysql"
)

// MySQLExecutor runs compiled statements over database/sql against
// go-sql-driver/mysql, following the sqlite.go's own two-phase
// protocol for the same reason: MySQL's RETURNING is unsupported, and
// an INSERT's generated keys come back only as LAST_INSERT_ID(),
// matching the teacher's note in its own query builder that MySQL
// upserts rely on ON DUPLICATE KEY UPDATE rather than RETURNING.
type MySQLExecutor struct {
	db *sql.DB
}

func NewMySQLExecutor(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*MySQLExecutor, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbexec: open mysql: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbexec: ping mysql: %w", err)
	}
	return &MySQLExecutor{db: db}, nil
}

func (e *MySQLExecutor) Dialect() formatter.Dialect { return mysql.Dialect{} }

func (e *MySQLExecutor) Query(ctx context.Context, stmt formatter.Result) ([]map[string]any, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, stmt.SQL, stmt.Params...)
	logSlowQuery(start, stmt.SQL)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// Mutate runs the mandatory two-phase protocol (spec §4.4): for
// Update/Delete, phase one collects the matching primary keys before
// the row disappears/changes; for Insert, the new keys come from
// LAST_INSERT_ID() and the per-table auto-increment contiguity it
// guarantees within one statement/session. Phase two re-reads the
// representation by those keys.
func (e *MySQLExecutor) Mutate(ctx context.Context, m Mutation) (*MutationResult, error) {
	tx, err := e.db.BeginTx(ctx, nil)
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
		keySelect, err := keySelectFor(m, mysql.Dialect{})
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

	rep, err := formatter.FormatRepresentationByKeys(m.Schema, m.Query, m.PKColumns, pkValues, mysql.Dialect{})
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

func (e *MySQLExecutor) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return e.db.PingContext(ctx)
}

func (e *MySQLExecutor) Close() error { return e.db.Close() }

// contiguousInsertKeys assumes a single-column auto-increment primary
// key and that the driver's LastInsertId/RowsAffected describe a
// contiguous block, which holds for a single multi-row INSERT
// statement against one MySQL connection/session.
func contiguousInsertKeys(res sql.Result) ([][]any, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	last, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	keys := make([][]any, n)
	for i := int64(0); i < n; i++ {
		keys[i] = []any{last - n + 1 + i}
	}
	return keys, nil
}
