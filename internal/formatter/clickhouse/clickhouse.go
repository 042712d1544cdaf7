// Package clickhouse implements formatter.Dialect for ClickHouse.
// ClickHouse's HTTP interface binds query parameters as named form
// fields rather than positional placeholders, and it has neither a
// generic row-to-JSON builtin nor RETURNING/transactions — grounded
// on spec §4.4/§5 and the googleapis-genai-toolbox/xaas-cloud-genai-
// toolbox examples' clickhouse-go/v2 usage.
package clickhouse

import (
	"fmt"
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/formatter"
)

// Dialect is the ClickHouse formatter.Dialect: backtick-free
// double-quoted identifiers, `{param_pN:Type}` form-field
// placeholders, toJSONString-based row/array construction, and no
// RETURNING (ClickHouse has neither RETURNING nor transactions; the
// executor enforces `check` by reading the written rows back and
// inspecting the check column after the write has landed, with no
// rollback).
type Dialect struct{}

func (Dialect) Name() string { return "clickhouse" }

func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder renders ClickHouse's named form-field parameter syntax,
// inferring the field's type tag from the bound Go value so the HTTP
// client can encode it as the matching `param_pN` form field.
func (Dialect) Placeholder(pos int, v any) string {
	return fmt.Sprintf("{param_p%d:%s}", pos, chType(v))
}

func chType(v any) string {
	switch v.(type) {
	case bool:
		return "UInt8"
	case int, int32, int64:
		return "Int64"
	case float32, float64:
		return "Float64"
	case nil:
		return "Nullable(String)"
	default:
		return "String"
	}
}

func jsonObjectExpr(alias string, columns []string) string {
	var mapArgs []string
	for _, c := range columns {
		if c == "*" {
			continue
		}
		mapArgs = append(mapArgs, "'"+strings.ReplaceAll(c, "'", "\\'")+"'", "toString("+alias+"."+`"`+strings.ReplaceAll(c, `"`, `""`)+`"`+")")
	}
	return "toJSONString(map(" + strings.Join(mapArgs, ", ") + "))"
}

// RowToJSON serializes a derived-table row as a JSON object string
// via `toJSONString(map(...))`, ClickHouse's closest equivalent to
// Postgres's row_to_json for an ad hoc column set.
func (Dialect) RowToJSON(alias string, columns []string) string {
	return jsonObjectExpr(alias, columns)
}

// JSONArrayAgg concatenates each row's JSON object string into a JSON
// array text, since ClickHouse has no json_agg/json_group_array.
func (d Dialect) JSONArrayAgg(alias string, columns []string) string {
	row := jsonObjectExpr(alias, columns)
	return "concat('[', arrayStringConcat(groupArray(" + row + "), ','), ']')"
}

func (Dialect) SupportsReturning() bool { return false }
