package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/parser"
)

func intPtr(v int) *int { return &v }

func TestShapePostInsertIs201(t *testing.T) {
	res, err := Shape(Input{Method: parser.MethodPost, Node: ast.Insert, PageTotal: 1, TotalResultSet: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 201, res.Status)
	assert.Equal(t, "1/1", headerValue(res, "Content-Range"))
}

func TestShapeDeleteDefaultsTo204(t *testing.T) {
	res, err := Shape(Input{Method: parser.MethodDelete, Node: ast.Delete, PageTotal: 3})
	require.NoError(t, err)
	assert.Equal(t, 204, res.Status)
}

func TestShapeDeleteRepresentationFullIs200(t *testing.T) {
	res, err := Shape(Input{
		Method: parser.MethodDelete, Node: ast.Delete, PageTotal: 3,
		Preferences: parser.Preferences{Representation: "full"},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
}

func TestShapePatchZeroMatchesIs404(t *testing.T) {
	res, err := Shape(Input{
		Method: parser.MethodPatch, Node: ast.Update, PageTotal: 0,
		UpdateColumnsEmpty: false,
	})
	require.NoError(t, err)
	assert.Equal(t, 404, res.Status)
}

func TestShapeSelectPartialRangeIs206(t *testing.T) {
	res, err := Shape(Input{
		Method: parser.MethodGet, Node: ast.Select, PageTotal: 10,
		TotalResultSet: intPtr(100), TopLevelOffset: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, 206, res.Status)
	assert.Equal(t, "0-9/100", headerValue(res, "Content-Range"))
}

func TestShapeSelectFullRangeIs200(t *testing.T) {
	res, err := Shape(Input{
		Method: parser.MethodGet, Node: ast.Select, PageTotal: 100,
		TotalResultSet: intPtr(100), TopLevelOffset: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
}

func TestShapeSelectOutOfRangeIs406(t *testing.T) {
	res, err := Shape(Input{
		Method: parser.MethodGet, Node: ast.Select, PageTotal: 0,
		TotalResultSet: intPtr(50), TopLevelOffset: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 406, res.Status)
}

func TestShapeExplicitResponseStatusOverridesAll(t *testing.T) {
	res, err := Shape(Input{
		Method: parser.MethodPost, Node: ast.Insert, PageTotal: 1,
		ResponseStatus: intPtr(418),
	})
	require.NoError(t, err)
	assert.Equal(t, 418, res.Status)
}

func TestShapeSingularRequestedWithMultipleRowsErrors(t *testing.T) {
	_, err := Shape(Input{
		Method: parser.MethodGet, Node: ast.Select, PageTotal: 3,
		AcceptContentType: parser.SingularJSON,
	})
	require.Error(t, err)
}

func TestShapeSingularContentType(t *testing.T) {
	res, err := Shape(Input{
		Method: parser.MethodGet, Node: ast.Select, PageTotal: 1,
		AcceptContentType: parser.SingularJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.pgrst.object+json", res.ContentType)
}

func TestShapePreferenceAppliedHeader(t *testing.T) {
	res, err := Shape(Input{
		Method: parser.MethodPost, Node: ast.Insert, PageTotal: 1,
		Preferences: parser.Preferences{Resolution: "merge-duplicates", Representation: "full"},
	})
	require.NoError(t, err)
	assert.Equal(t, "resolution=merge-duplicates, return=full", headerValue(res, "Preference-Applied"))
}

func headerValue(res Result, name string) string {
	for _, h := range res.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}
