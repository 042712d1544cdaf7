package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/formatter/postgres"
)

func TestFormatCountStripsOrderAndLimit(t *testing.T) {
	limit := 10
	q := &ast.Query{
		Node:    ast.Select,
		Table:   ast.Qi{Name: "authors"},
		Limit:   &limit,
		OrderBy: []ast.OrderTerm{{Field: ast.Field{Name: "name"}}},
		Where: []ast.Condition{{
			Kind:   ast.CondSingle,
			Field:  ast.Field{Name: "active"},
			Filter: ast.Filter{Kind: ast.FilterIs, Trilean: ast.TrileanTrue},
		}},
	}
	res, err := FormatCount("public", q, "{}", postgres.Dialect{})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, `select count(*) from "authors"`)
	assert.Contains(t, res.SQL, `where ("active" is true)`)
	assert.NotContains(t, res.SQL, "order by")
	assert.NotContains(t, res.SQL, "limit")
}
