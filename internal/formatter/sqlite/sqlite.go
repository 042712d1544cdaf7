// Package sqlite implements formatter.Dialect for SQLite. SQLite has
// no generic row-to-JSON or JSON-array-aggregation construct the way
// PostgreSQL's row_to_json/json_agg do, so RowToJSON/JSONArrayAgg hand
// build a json_object(...) call naming every projected column, using
// the column list formatter.formatSelectStatementCorrelated threads
// back for exactly this purpose. Grounded on subzero's
// formatter/sqlite.rs and the teacher's two-phase-mutation note for
// backends without RETURNING-in-CTE (spec §4.4, §5).
package sqlite

import (
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/formatter"
)

// Dialect is the SQLite formatter.Dialect: double-quoted identifiers,
// "?" placeholders, hand-built json_object/json_group_array, and no
// RETURNING — mutations go through the executor's two-phase protocol
// (spec §4.4, §5) instead.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) Placeholder(pos int, v any) string {
	return formatter.QuestionPlaceholder(pos, v)
}

func jsonObject(alias string, columns []string) string {
	var pairs []string
	for _, c := range columns {
		if c == "*" {
			continue
		}
		key := "'" + strings.ReplaceAll(c, "'", "''") + "'"
		pairs = append(pairs, key+", "+alias+`."`+strings.ReplaceAll(c, `"`, `""`)+`"`)
	}
	return "json_object(" + strings.Join(pairs, ", ") + ")"
}

func (Dialect) RowToJSON(alias string, columns []string) string {
	return jsonObject(alias, columns)
}

func (Dialect) JSONArrayAgg(alias string, columns []string) string {
	return "coalesce(json_group_array(" + jsonObject(alias, columns) + "), '[]')"
}

// SupportsReturning is false: modern SQLite has RETURNING on a bare
// DML statement, but not inside the CTE chain this formatter's
// Insert/Update/Delete build for combining a mutation with its
// permission `check` and response projection in one round trip. The
// dbexec SQLite executor instead runs the documented two-phase
// protocol — mutate + collect primary keys, then a follow-up SELECT —
// so Format() here never emits a RETURNING clause for this dialect.
func (Dialect) SupportsReturning() bool { return false }
