package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentUsesBackticks(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "`weird``name`", d.QuoteIdent("weird`name"))
}

func TestPlaceholderIsQuestionMark(t *testing.T) {
	assert.Equal(t, "?", Dialect{}.Placeholder(3, "x"))
}

func TestRowToJSONUsesJSONObject(t *testing.T) {
	d := Dialect{}
	got := d.RowToJSON("t_author", []string{"id", "name"})
	assert.Equal(t, "JSON_OBJECT('id', t_author.`id`, 'name', t_author.`name`)", got)
}

func TestJSONArrayAggUsesJSONArrayAgg(t *testing.T) {
	d := Dialect{}
	got := d.JSONArrayAgg("t_posts", []string{"id"})
	assert.Equal(t, "coalesce(JSON_ARRAYAGG(JSON_OBJECT('id', t_posts.`id`)), JSON_ARRAY())", got)
}

func TestDoesNotSupportReturning(t *testing.T) {
	assert.False(t, Dialect{}.SupportsReturning())
}
