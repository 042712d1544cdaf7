package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/sqlgateway/internal/ast"
)

func TestParseFilterSpatialIntersects(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", `first_name=st_intersects.{"type":"Point","coordinates":[1,2]}`))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	filter := req.Query.Where[0].Filter
	assert.Equal(t, ast.FilterSpatial, filter.Kind)
	assert.Equal(t, ast.SpatialIntersects, filter.SpatialOp)
	assert.Contains(t, filter.Geometry, `"Point"`)
	assert.Contains(t, filter.Geometry, "coordinates")
}

func TestParseFilterSpatialContains(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", `first_name=st_contains.{"type":"Point","coordinates":[1,2]}`))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	assert.Equal(t, ast.SpatialContains, req.Query.Where[0].Filter.SpatialOp)
}

func TestParseFilterSpatialWithin(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", `first_name=st_within.{"type":"Point","coordinates":[1,2]}`))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	assert.Equal(t, ast.SpatialWithin, req.Query.Where[0].Filter.SpatialOp)
}

func TestParseFilterSpatialInvalidGeoJSONFails(t *testing.T) {
	db := testSchema(t)
	_, err := Parse(baseInput(db, MethodGet, "actors", `first_name=st_intersects.not-json`))
	require.Error(t, err)
}

func TestParseFilterSpatialDWithin(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", `first_name=st_dwithin.{"type":"Point","coordinates":[1,2]},100`))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	filter := req.Query.Where[0].Filter
	assert.Equal(t, ast.FilterSpatial, filter.Kind)
	assert.Equal(t, ast.SpatialDWithin, filter.SpatialOp)
	assert.Equal(t, "100", filter.Distance)
	assert.Contains(t, filter.Geometry, `"Point"`)
}

func TestParseFilterSpatialDWithinMissingDistanceFails(t *testing.T) {
	db := testSchema(t)
	_, err := Parse(baseInput(db, MethodGet, "actors", `first_name=st_dwithin.{"type":"Point","coordinates":[1,2]}`))
	require.Error(t, err)
}

func TestParseFilterSpatialDWithinNonNumericDistanceFails(t *testing.T) {
	db := testSchema(t)
	_, err := Parse(baseInput(db, MethodGet, "actors", `first_name=st_dwithin.{"type":"Point","coordinates":[1,2]},abc`))
	require.Error(t, err)
}

func TestParseFilterSpatialNegated(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", `first_name=not.st_intersects.{"type":"Point","coordinates":[1,2]}`))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	assert.True(t, req.Query.Where[0].Negate)
	assert.Equal(t, ast.SpatialIntersects, req.Query.Where[0].Filter.SpatialOp)
}

func TestParseOrderInvalidModifierReportsColumn(t *testing.T) {
	db := testSchema(t)
	_, err := Parse(baseInput(db, MethodGet, "actors", "order=id.smth34"))
	require.Error(t, err)
	var reqErr *ParseRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "Unexpected s Expected nullsfirst or nullslast", reqErr.Message)
	assert.Equal(t, "smth34", reqErr.Details)
	assert.Equal(t, 1, reqErr.Line)
	assert.Equal(t, 4, reqErr.Column)
}

func TestParseOrderInvalidModifierSecondTermReportsColumn(t *testing.T) {
	db := testSchema(t)
	_, err := Parse(baseInput(db, MethodGet, "actors", "order=first_name.asc,id.bogus"))
	require.Error(t, err)
	var reqErr *ParseRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 19, reqErr.Column)
}

func TestParseFilterInEmptyListIsEmptySlice(t *testing.T) {
	db := testSchema(t)
	req, err := Parse(baseInput(db, MethodGet, "actors", "id=in.()"))
	require.NoError(t, err)
	require.Len(t, req.Query.Where, 1)
	assert.Equal(t, ast.FilterIn, req.Query.Where[0].Filter.Kind)
	assert.Empty(t, req.Query.Where[0].Filter.List)
}
