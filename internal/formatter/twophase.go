package formatter

import "github.com/sqlgateway/sqlgateway/internal/ast"

// FormatTwoPhase compiles q the same way Format does, and additionally
// renders the "phase one" key-collecting SELECT a non-RETURNING
// dialect (SQLite, MySQL, ClickHouse) needs to know which rows an
// UPDATE/DELETE is about to touch before it runs, per spec §4.4/§9's
// two-phase mutation protocol. keySelect is nil for Insert, where the
// executor instead learns the new rows' keys from the driver's
// last-insert-id facility.
func FormatTwoPhase(currentSchema string, q *ast.Query, env string, pkColumns []string, d Dialect) (mutation Result, keySelect *Result, err error) {
	mutation, err = Format(currentSchema, q, env, d)
	if err != nil {
		return Result{}, nil, err
	}
	if q.Node == ast.Insert {
		return mutation, nil, nil
	}

	f := &fmtState{dialect: d, schema: currentSchema}
	var cols []Snippet
	for _, c := range pkColumns {
		cols = append(cols, SQL(d.QuoteIdent(c)))
	}
	condition, hasCondition, err := f.formatConditionTree(q.Where)
	if err != nil {
		return Result{}, nil, err
	}

	body := Append(SQL("select "), Join(cols, ", "), SQL(" from "+f.qi(q.Table)))
	if hasCondition {
		body = Append(body, SQL(" where "), condition)
	}
	envCTE := Append(SQL("with env as (select "), Param(env), SQL("::json as claims) "))
	sqlText, params := Render(Append(envCTE, body), d.Placeholder)
	return mutation, &Result{SQL: sqlText, Params: params}, nil
}

// FormatRepresentationByKeys renders the "phase two" follow-up SELECT
// that reads back the rows a two-phase mutation touched, keyed on the
// primary key values phase one (or the driver's last-insert-id)
// collected. An empty pkValues renders a statement guaranteed to match
// zero rows rather than a malformed empty "in ()" list.
func FormatRepresentationByKeys(currentSchema string, q *ast.Query, pkColumns []string, pkValues [][]any, d Dialect) (Result, error) {
	f := &fmtState{dialect: d, schema: currentSchema}

	var cols []Snippet
	if len(q.Returning) == 0 {
		cols = []Snippet{SQL("*")}
	} else {
		for _, c := range q.Returning {
			cols = append(cols, SQL(d.QuoteIdent(c)))
		}
	}
	if len(q.Check) > 0 {
		check, err := f.formatCheckExpr(q)
		if err != nil {
			return Result{}, err
		}
		cols = append(cols, Append(SQL("("), check, SQL(") as "+d.QuoteIdent(CheckColumnAlias))))
	}

	body := Append(SQL("select "), Join(cols, ", "), SQL(" from "+f.qi(q.Table)+" where "))
	if len(pkValues) == 0 {
		body = Append(body, SQL("1 = 0"))
	} else if len(pkColumns) == 1 {
		var vals []Snippet
		for _, row := range pkValues {
			vals = append(vals, Param(row[0]))
		}
		body = Append(body, SQL(d.QuoteIdent(pkColumns[0])+" in ("), Join(vals, ", "), SQL(")"))
	} else {
		var pkCols []Snippet
		for _, c := range pkColumns {
			pkCols = append(pkCols, SQL(d.QuoteIdent(c)))
		}
		var tuples []Snippet
		for _, row := range pkValues {
			var vals []Snippet
			for _, v := range row {
				vals = append(vals, Param(v))
			}
			tuples = append(tuples, Wrap(Join(vals, ", ")))
		}
		body = Append(body, Wrap(Join(pkCols, ", ")), SQL(" in ("), Join(tuples, ", "), SQL(")"))
	}

	sqlText, params := Render(body, d.Placeholder)
	return Result{SQL: sqlText, Params: params}, nil
}
