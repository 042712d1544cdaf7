package clickhouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholderInfersType(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "{param_p1:String}", d.Placeholder(1, "hi"))
	assert.Equal(t, "{param_p2:Int64}", d.Placeholder(2, 5))
	assert.Equal(t, "{param_p3:Float64}", d.Placeholder(3, 1.5))
	assert.Equal(t, "{param_p4:UInt8}", d.Placeholder(4, true))
}

func TestRowToJSONUsesMapAndToJSONString(t *testing.T) {
	d := Dialect{}
	got := d.RowToJSON("t_author", []string{"id"})
	assert.Contains(t, got, "toJSONString(map(")
	assert.Contains(t, got, "'id'")
}

func TestJSONArrayAggUsesGroupArray(t *testing.T) {
	d := Dialect{}
	got := d.JSONArrayAgg("t_posts", []string{"id"})
	assert.Contains(t, got, "groupArray(")
	assert.True(t, len(got) > 0)
}

func TestDoesNotSupportReturning(t *testing.T) {
	assert.False(t, Dialect{}.SupportsReturning())
}
