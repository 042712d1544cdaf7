package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/formatter/postgres"
	"github.com/sqlgateway/sqlgateway/internal/formatter/sqlite"
)

func TestFormatSelectStarIncludesEnvCTE(t *testing.T) {
	q := &ast.Query{Node: ast.Select, Table: ast.Qi{Schema: "api", Name: "authors"}}
	res, err := Format("api", q, "{}", postgres.Dialect{})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "with env as (select $1::json as claims)")
	assert.Contains(t, res.SQL, `select * from "api"."authors"`)
	assert.Equal(t, []any{"{}"}, res.Params)
}

func TestFormatSelectEmbedOnlyOmitsStar(t *testing.T) {
	q := &ast.Query{
		Node:  ast.Select,
		Table: ast.Qi{Name: "books"},
		SubSelects: []ast.SubSelect{{
			Alias: "author",
			Query: ast.Query{Table: ast.Qi{Name: "authors"}},
			Join: &ast.Join{
				Kind: ast.JoinParent,
				FK: ast.ForeignKey{
					Columns:           []string{"author_id"},
					ReferencedColumns: []string{"id"},
				},
			},
		}},
	}
	res, err := Format("public", q, "{}", postgres.Dialect{})
	require.NoError(t, err)
	assert.NotContains(t, res.SQL, "select *, (")
	assert.Contains(t, res.SQL, "row_to_json(t_author)")
}

func TestFormatSelectChildEmbedUsesJSONArrayAgg(t *testing.T) {
	q := &ast.Query{
		Node:  ast.Select,
		Table: ast.Qi{Name: "authors"},
		SubSelects: []ast.SubSelect{{
			Alias: "books",
			Query: ast.Query{Table: ast.Qi{Name: "books"}, Select: []ast.SelectItem{
				{Kind: ast.ItemSimple, Field: ast.Field{Name: "title"}},
			}},
			Join: &ast.Join{
				Kind: ast.JoinChild,
				FK: ast.ForeignKey{
					Columns:           []string{"author_id"},
					ReferencedColumns: []string{"id"},
				},
			},
		}},
	}
	res, err := Format("public", q, "{}", sqlite.Dialect{})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, `json_group_array(json_object('title', t_books."title"))`)
	assert.Contains(t, res.SQL, `"books"."author_id" = "authors"."id"`)
}

func TestFormatSelectWhereOrderLimitOffset(t *testing.T) {
	limit, offset := 10, 5
	q := &ast.Query{
		Node:  ast.Select,
		Table: ast.Qi{Name: "authors"},
		Where: []ast.Condition{{
			Kind:   ast.CondSingle,
			Field:  ast.Field{Name: "active"},
			Filter: ast.Filter{Kind: ast.FilterIs, Trilean: ast.TrileanTrue},
		}},
		OrderBy: []ast.OrderTerm{{Field: ast.Field{Name: "name"}, Descending: true}},
		Limit:   &limit,
		Offset:  &offset,
	}
	res, err := Format("public", q, "{}", postgres.Dialect{})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, `where ("active" is true)`)
	assert.Contains(t, res.SQL, `order by "name" desc`)
	assert.Contains(t, res.SQL, "limit $2")
	assert.Contains(t, res.SQL, "offset $3")
}

func TestFormatFunctionCallNamedArgs(t *testing.T) {
	q := &ast.Query{
		Node:     ast.FunctionCall,
		FuncName: "search_authors",
		Payload:  &ast.Payload{JSON: `{"query":"borges"}`},
		Parameters: []ast.ProcParam{
			{Name: "query", Required: true},
		},
	}
	res, err := Format("api", q, "{}", postgres.Dialect{})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, `select * from "api"."search_authors"("query" => $2)`)
	assert.Equal(t, "borges", res.Params[1])
}

func TestFormatFunctionCallMissingRequiredParamErrors(t *testing.T) {
	q := &ast.Query{
		Node:       ast.FunctionCall,
		FuncName:   "search_authors",
		Payload:    &ast.Payload{JSON: `{}`},
		Parameters: []ast.ProcParam{{Name: "query", Required: true}},
	}
	_, err := Format("api", q, "{}", postgres.Dialect{})
	assert.Error(t, err)
}
