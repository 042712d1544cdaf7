// Package postgres implements formatter.Dialect for PostgreSQL: the
// reference dialect, grounded on the teacher's jackc/pgx-backed
// internal/database stack and subzero's formatter/postgresql.rs.
package postgres

import (
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/formatter"
)

// Dialect is the PostgreSQL formatter.Dialect: double-quoted
// identifiers, $N placeholders, row_to_json/json_agg for embeds, and
// full RETURNING support (spec §4.4).
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) Placeholder(pos int, v any) string {
	return formatter.DollarPlaceholder(pos, v)
}

func (Dialect) RowToJSON(alias string, _ []string) string {
	return "row_to_json(" + alias + ")"
}

func (Dialect) JSONArrayAgg(alias string, _ []string) string {
	return "coalesce(json_agg(" + alias + "), '[]'::json)"
}

func (Dialect) SupportsReturning() bool { return true }
