package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentEscapesDoubleQuotes(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, `"weird""name"`, d.QuoteIdent(`weird"name`))
}

func TestPlaceholderIsDollarNumbered(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "$1", d.Placeholder(1, "x"))
	assert.Equal(t, "$2", d.Placeholder(2, "y"))
}

func TestRowToJSONIgnoresColumns(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "row_to_json(t_author)", d.RowToJSON("t_author", []string{"id", "name"}))
}

func TestJSONArrayAggHasEmptyFallback(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "coalesce(json_agg(t_posts), '[]'::json)", d.JSONArrayAgg("t_posts", nil))
}

func TestSupportsReturning(t *testing.T) {
	assert.True(t, Dialect{}.SupportsReturning())
}
