package formatter

import "github.com/sqlgateway/sqlgateway/internal/ast"

// FormatCount renders the exact-count companion query a `Prefer:
// count=exact` request needs for its Content-Range total (spec §4.5):
// the same table and WHERE predicate as the main select, projected
// down to `count(*)` and stripped of ordering/pagination/embeds, which
// don't affect the row count.
func FormatCount(currentSchema string, q *ast.Query, env string, d Dialect) (Result, error) {
	f := &fmtState{dialect: d, schema: currentSchema}

	condition, hasCondition, err := f.formatConditionTree(q.Where)
	if err != nil {
		return Result{}, err
	}

	body := SQL("select count(*) from " + f.qi(q.Table))
	if hasCondition {
		body = Append(body, SQL(" where "), condition)
	}
	envCTE := Append(SQL("with env as (select "), Param(env), SQL("::json as claims) "))
	sqlText, params := Render(Append(envCTE, body), d.Placeholder)
	return Result{SQL: sqlText, Params: params}, nil
}
