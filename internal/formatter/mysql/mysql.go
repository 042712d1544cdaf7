// Package mysql implements formatter.Dialect for MySQL: backtick
// identifiers, positional "?" placeholders, and native
// JSON_OBJECT/JSON_ARRAYAGG functions for embeds, per spec §4.4.
// Session variables (`@var`) carry the env map at the executor layer
// (internal/dbexec), not in Format() itself — see §4.4's "session
// variables used for env" note.
package mysql

import (
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/formatter"
)

// Dialect is the MySQL formatter.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (Dialect) Placeholder(pos int, v any) string {
	return formatter.QuestionPlaceholder(pos, v)
}

func (Dialect) RowToJSON(alias string, columns []string) string {
	var args []string
	for _, c := range columns {
		if c == "*" {
			continue
		}
		key := "'" + strings.ReplaceAll(c, "'", "''") + "'"
		args = append(args, key+", "+alias+".`"+strings.ReplaceAll(c, "`", "``")+"`")
	}
	return "JSON_OBJECT(" + strings.Join(args, ", ") + ")"
}

func (d Dialect) JSONArrayAgg(alias string, columns []string) string {
	return "coalesce(JSON_ARRAYAGG(" + d.RowToJSON(alias, columns) + "), JSON_ARRAY())"
}

// SupportsReturning is false: standard MySQL (pre-8.0.21/MariaDB) has
// no RETURNING clause. The dbexec MySQL executor falls back to
// LAST_INSERT_ID() plus a follow-up SELECT for the response
// projection, the same shape as the SQLite two-phase protocol.
func (Dialect) SupportsReturning() bool { return false }
