package dbexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/sqlgateway/internal/formatter"
)

func newTestSQLiteExecutor(t *testing.T) *SQLiteExecutor {
	t.Helper()
	ctx := context.Background()
	exec, err := NewSQLiteExecutor(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec
}

func TestSQLiteExecutorDialect(t *testing.T) {
	exec := newTestSQLiteExecutor(t)
	assert.Equal(t, "sqlite", exec.Dialect().Name())
}

func TestSQLiteExecutorHealth(t *testing.T) {
	exec := newTestSQLiteExecutor(t)
	assert.NoError(t, exec.Health(context.Background()))
}

func TestSQLiteExecutorQuery(t *testing.T) {
	exec := newTestSQLiteExecutor(t)
	ctx := context.Background()

	_, err := exec.db.ExecContext(ctx, `create table widgets (id integer primary key, name text)`)
	require.NoError(t, err)
	_, err = exec.db.ExecContext(ctx, `insert into widgets (id, name) values (1, 'gadget')`)
	require.NoError(t, err)

	rows, err := exec.Query(ctx, formatter.Result{SQL: `select id, name from widgets`})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "gadget", rows[0]["name"])
}

func TestSQLiteExecutorQueryPropagatesDriverErrors(t *testing.T) {
	exec := newTestSQLiteExecutor(t)
	_, err := exec.Query(context.Background(), formatter.Result{SQL: `select * from no_such_table`})
	assert.Error(t, err)
}

func TestSQLiteExecutorCloseIsIdempotentlySafeOnce(t *testing.T) {
	ctx := context.Background()
	exec, err := NewSQLiteExecutor(ctx, ":memory:")
	require.NoError(t, err)
	assert.NoError(t, exec.Close())
}
