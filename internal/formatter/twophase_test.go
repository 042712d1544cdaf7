package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/formatter/sqlite"
)

func TestFormatTwoPhaseInsertHasNoKeySelect(t *testing.T) {
	q := &ast.Query{
		Node:  ast.Insert,
		Table: ast.Qi{Name: "authors"},
		Payload: &ast.Payload{JSON: `{"name":"Borges"}`},
	}
	_, keySelect, err := FormatTwoPhase("public", q, "{}", []string{"id"}, sqlite.Dialect{})
	require.NoError(t, err)
	assert.Nil(t, keySelect)
}

func TestFormatTwoPhaseUpdateBuildsKeySelect(t *testing.T) {
	q := &ast.Query{
		Node:  ast.Update,
		Table: ast.Qi{Name: "authors"},
		Payload: &ast.Payload{JSON: `{"name":"Borges"}`},
		Where: []ast.Condition{{
			Kind:   ast.CondSingle,
			Field:  ast.Field{Name: "id"},
			Filter: ast.Filter{Kind: ast.FilterOpKind, Operator: ast.OpEq, Value: "1"},
		}},
	}
	mutation, keySelect, err := FormatTwoPhase("public", q, "{}", []string{"id"}, sqlite.Dialect{})
	require.NoError(t, err)
	require.NotNil(t, keySelect)
	assert.Contains(t, mutation.SQL, "update \"authors\" set")
	assert.Contains(t, keySelect.SQL, "select \"id\" from \"authors\" where \"id\"")
}

func TestFormatRepresentationByKeysSingleColumn(t *testing.T) {
	q := &ast.Query{Node: ast.Update, Table: ast.Qi{Name: "authors"}}
	res, err := FormatRepresentationByKeys("public", q, []string{"id"}, [][]any{{1}, {2}}, sqlite.Dialect{})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, `select * from "authors" where "id" in (?, ?)`)
	assert.Equal(t, []any{1, 2}, res.Params)
}

func TestFormatRepresentationByKeysEmptyMatchesNothing(t *testing.T) {
	q := &ast.Query{Node: ast.Update, Table: ast.Qi{Name: "authors"}}
	res, err := FormatRepresentationByKeys("public", q, []string{"id"}, nil, sqlite.Dialect{})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "where 1 = 0")
}

func TestFormatRepresentationByKeysCompositeKey(t *testing.T) {
	q := &ast.Query{Node: ast.Update, Table: ast.Qi{Name: "memberships"}}
	res, err := FormatRepresentationByKeys("public", q, []string{"org_id", "user_id"}, [][]any{{1, 2}}, sqlite.Dialect{})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, `("org_id", "user_id") in ((?, ?))`)
}
