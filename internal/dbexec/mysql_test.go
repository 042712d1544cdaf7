package dbexec

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResult implements sql.Result for contiguousInsertKeys, which only
// ever calls RowsAffected/LastInsertId.
type fakeResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

var _ sql.Result = fakeResult{}

func TestContiguousInsertKeys(t *testing.T) {
	t.Run("single row insert", func(t *testing.T) {
		keys, err := contiguousInsertKeys(fakeResult{lastInsertID: 5, rowsAffected: 1})
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, []any{int64(5)}, keys[0])
	})

	t.Run("multi-row insert yields a contiguous block ending at last insert id", func(t *testing.T) {
		keys, err := contiguousInsertKeys(fakeResult{lastInsertID: 10, rowsAffected: 3})
		require.NoError(t, err)
		require.Len(t, keys, 3)
		assert.Equal(t, []any{int64(8)}, keys[0])
		assert.Equal(t, []any{int64(9)}, keys[1])
		assert.Equal(t, []any{int64(10)}, keys[2])
	})

	t.Run("zero rows affected yields no keys", func(t *testing.T) {
		keys, err := contiguousInsertKeys(fakeResult{lastInsertID: 0, rowsAffected: 0})
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestMySQLExecutorDialect(t *testing.T) {
	e := &MySQLExecutor{}
	assert.Equal(t, "mysql", e.Dialect().Name())
}
