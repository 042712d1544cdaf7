package parser

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/schema"
)

func testSchema(t *testing.T) *schema.DB {
	t.Helper()
	db, err := schema.Load([]byte(`{
		"use_internal_permissions": true,
		"schemas": [{
			"name": "api",
			"objects": [
				{
					"kind": "table", "name": "actors",
					"columns": [
						{"name": "id", "data_type": "int4", "primary_key": true},
						{"name": "first_name", "data_type": "text"},
						{"name": "last_name", "data_type": "text"}
					],
					"permissions": [{"role": "public", "grant": ["all"]}]
				},
				{
					"kind": "table", "name": "films",
					"columns": [
						{"name": "id", "data_type": "int4", "primary_key": true},
						{"name": "title", "data_type": "text"},
						{"name": "actor_id", "data_type": "int4"}
					],
					"foreign_keys": [{
						"name": "films_actor_id_fkey",
						"table": ["api", "films"],
						"columns": ["actor_id"],
						"referenced_table": ["api", "actors"],
						"referenced_columns": ["id"]
					}],
					"permissions": [{"role": "public", "grant": ["all"]}]
				}
			]
		}]
	}`))
	require.NoError(t, err)
	return db
}

func baseInput(db *schema.DB, method Method, table, rawQuery string) Input {
	q, _ := url.ParseQuery(rawQuery)
	return Input{
		SchemaDB:   db,
		RootSchema: "api",
		Method:     method,
		Path:       "/" + table,
		Table:      table,
		Query:      q,
		Headers:    map[string]string{},
		Cookies:    map[string]string{},
		Role:       "public",
	}
}

func TestParseSelectSimple(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "select=id,first_name"))
	require.NoError(t, err)
	require.Len(t, req.Query.Select, 2)
	assert.Equal(t, "id", req.Query.Select[0].Field.Name)
	assert.Equal(t, "first_name", req.Query.Select[1].Field.Name)
}

func TestParseSelectStar(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", ""))
	require.NoError(t, err)
	require.Len(t, req.Query.Select, 1)
	assert.Equal(t, ast.ItemStar, req.Query.Select[0].Kind)
}

func TestParseEmbeddedResource(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "select=first_name,films(title)"))
	require.NoError(t, err)
	require.Len(t, req.Query.SubSelects, 1)
	sub := req.Query.SubSelects[0]
	assert.Equal(t, "films", sub.Alias)
	require.NotNil(t, sub.Join)
	assert.Equal(t, ast.JoinChild, sub.Join.Kind)
	require.Len(t, sub.Query.Select, 1)
	assert.Equal(t, "title", sub.Query.Select[0].Field.Name)
}

func TestParseEmbedUnknownRelationFails(t *testing.T) {
	db := testSchema(t)
	_, err := Parse(baseInput(db, MethodGet, "actors", "select=first_name,nonexistent(id)"))
	require.Error(t, err)
}

func TestParseFilterEq(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "first_name=eq.PENELOPE"))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	cond := req.Query.Where[0]
	assert.Equal(t, ast.CondSingle, cond.Kind)
	assert.Equal(t, "first_name", cond.Field.Name)
	assert.Equal(t, ast.OpEq, cond.Filter.Operator)
	assert.Equal(t, "PENELOPE", cond.Filter.Value)
}

func TestParseFilterNotPrefix(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "first_name=not.eq.PENELOPE"))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	assert.True(t, req.Query.Where[0].Negate)
}

func TestParseFilterIn(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "id=in.(1,2,3)"))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	assert.Equal(t, ast.FilterIn, req.Query.Where[0].Filter.Kind)
	assert.Equal(t, []string{"1", "2", "3"}, req.Query.Where[0].Filter.List)
}

func TestParseFilterIsNull(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "last_name=is.null"))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	assert.Equal(t, ast.FilterIs, req.Query.Where[0].Filter.Kind)
	assert.Equal(t, ast.TrileanNull, req.Query.Where[0].Filter.Trilean)
}

func TestParseOrGroup(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "or=(first_name.eq.PENELOPE,last_name.eq.GUINESS)"))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	group := req.Query.Where[0]
	assert.Equal(t, ast.CondGroup, group.Kind)
	assert.Equal(t, "or", group.Combinator)
	require.Len(t, group.Tree, 2)
}

func TestParseOrderWithNulls(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "order=first_name.desc.nullslast"))
	require.NoError(t, err)
	require.Len(t, req.Query.OrderBy, 1)
	term := req.Query.OrderBy[0]
	assert.True(t, term.Descending)
	require.NotNil(t, term.NullsFirst)
	assert.False(t, *term.NullsFirst)
}

func TestParseLimitOffset(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "limit=10&offset=5"))
	require.NoError(t, err)
	require.NotNil(t, req.Query.Limit)
	require.NotNil(t, req.Query.Offset)
	assert.Equal(t, 10, *req.Query.Limit)
	assert.Equal(t, 5, *req.Query.Offset)
}

func TestParseEmbeddedFilterAppliesToSubSelect(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "select=first_name,films(title)&films.title=eq.Matrix"))
	require.NoError(t, err)
	require.Len(t, req.Query.SubSelects, 1)
	sub := req.Query.SubSelects[0].Query
	require.Len(t, sub.Where, 1)
	assert.Equal(t, "title", sub.Where[0].Field.Name)
}

func TestParsePostInsertCarriesBodyAsPayload(t *testing.T) {
	db := testSchema(t)
	in := baseInput(db, MethodPost, "actors", "")
	in.Body = []byte(`{"first_name":"PENELOPE"}`)
	req, err := Parse(in)
	require.NoError(t, err)
	require.NotNil(t, req.Query.Payload)
	assert.JSONEq(t, `{"first_name":"PENELOPE"}`, req.Query.Payload.JSON)
	assert.Equal(t, ast.Insert, req.Query.Node)
}

func TestParseAcceptSingularJSON(t *testing.T) {
	db := testSchema(t)
	in := baseInput(db, MethodGet, "actors", "")
	in.Headers["Accept"] = "application/vnd.pgrst.object+json"
	req, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, SingularJSON, req.AcceptContentType)
}

func TestParsePreferResolution(t *testing.T) {
	db := testSchema(t)
	in := baseInput(db, MethodPost, "actors", "")
	in.Body = []byte(`{}`)
	in.Headers["Prefer"] = "resolution=merge-duplicates, return=representation"
	req, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, "merge-duplicates", req.Preferences.Resolution)
	assert.Equal(t, "full", req.Preferences.Representation)
}
