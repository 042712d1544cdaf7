package formatter

import (
	"fmt"
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/ast"
)

// Dialect abstracts the handful of places SQL text differs between
// backends: identifier quoting, parameter placeholders, and the
// function names used for JSON row/array aggregation. Each concrete
// dialect (postgres, sqlite, clickhouse, mysql) supplies one of these;
// the bulk of query assembly below is shared, mirroring how subzero's
// formatter/*.rs files share dynamic_statement.rs and differ mainly in
// their own small `fmt_*` overrides.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	Placeholder(pos int, v any) string
	// RowToJSON wraps a derived-table alias into a single JSON object
	// expression, e.g. Postgres's row_to_json(t). columns is the
	// derived table's output column list, in order, for dialects (like
	// SQLite) whose JSON constructor needs every field named explicitly.
	RowToJSON(alias string, columns []string) string
	// JSONArrayAgg wraps a derived-table alias into a JSON array
	// aggregation expression with an empty-result fallback.
	JSONArrayAgg(alias string, columns []string) string
	// SupportsReturning reports whether INSERT/UPDATE/DELETE ... RETURNING
	// is available; when false the executor layer is responsible for a
	// second round trip (SQLite's two-phase protocol, spec §4.4).
	SupportsReturning() bool
}

// Result is a fully rendered statement: its SQL text, positional
// parameters, and (for mutations) the dialect-appropriate RETURNING
// clause already folded in when supported.
type Result struct {
	SQL    string
	Params []any
}

// Format compiles q (already permission-checked) against currentSchema
// into dialect SQL. env carries request-environment values (JWT claims,
// GUC-style headers) available to `ast.EnvVar` filters and policy
// conditions, passed as a single JSON-encoded parameter per spec §4.4's
// env CTE design.
func Format(currentSchema string, q *ast.Query, env string, d Dialect) (Result, error) {
	f := &fmtState{dialect: d, schema: currentSchema}
	body, err := f.formatRoot(q, env)
	if err != nil {
		return Result{}, err
	}
	sqlText, params := Render(body, d.Placeholder)
	return Result{SQL: sqlText, Params: params}, nil
}

type fmtState struct {
	dialect Dialect
	schema  string
}

func (f *fmtState) qi(q ast.Qi) string {
	if q.Schema == "" {
		return f.dialect.QuoteIdent(q.Name)
	}
	return f.dialect.QuoteIdent(q.Schema) + "." + f.dialect.QuoteIdent(q.Name)
}

func (f *fmtState) formatRoot(q *ast.Query, env string) (Snippet, error) {
	envCTE := Append(SQL("with env as (select "), Param(env), SQL("::json as claims) "))

	var body Snippet
	var err error
	switch q.Node {
	case ast.Select:
		body, err = f.formatSelectStatement(q)
	case ast.Insert:
		body, err = f.formatInsert(q)
	case ast.Update:
		body, err = f.formatUpdate(q)
	case ast.Delete:
		body, err = f.formatDelete(q)
	case ast.FunctionCall:
		body, err = f.formatFunctionCall(q)
	default:
		return Snippet{}, fmt.Errorf("formatter: unsupported node kind %v", q.Node)
	}
	if err != nil {
		return Snippet{}, err
	}
	return Append(envCTE, body), nil
}

// formatSelectStatement renders a full `SELECT ... FROM ... WHERE ...`
// for q, including every embedded SubSelect as a correlated JSON
// subquery in the projection list.
func (f *fmtState) formatSelectStatement(q *ast.Query) (Snippet, error) {
	s, _, err := f.formatSelectStatementCorrelated(q, Snippet{})
	return s, err
}

// formatSelectStatementCorrelated is formatSelectStatement plus an
// extra AND-ed predicate (the embed's join correlation, when q is
// itself a SubSelect's body); passing a zero Snippet omits it. It
// also returns the statement's output column names, which a
// SQL-function-free JSON dialect (SQLite) needs to hand-construct its
// row object.
func (f *fmtState) formatSelectStatementCorrelated(q *ast.Query, correlation Snippet) (Snippet, []string, error) {
	items, colNames, err := f.formatProjection(q)
	if err != nil {
		return Snippet{}, nil, err
	}

	s := Append(SQL("select "), items, SQL(" from "), SQL(f.qi(q.Table)))

	condition, hasCondition, err := f.formatConditionTree(q.Where)
	if err != nil {
		return Snippet{}, nil, err
	}

	var clauses []Snippet
	if correlation.Len() > 0 {
		clauses = append(clauses, correlation)
	}
	if hasCondition {
		clauses = append(clauses, condition)
	}
	if len(clauses) > 0 {
		s = Append(s, SQL(" where "), Join(wrapAll(clauses), " and "))
	}

	if len(q.OrderBy) > 0 {
		order, err := f.formatOrderBy(q.OrderBy)
		if err != nil {
			return Snippet{}, nil, err
		}
		s = Append(s, SQL(" order by "), order)
	}
	if q.Limit != nil {
		s = Append(s, SQL(" limit "), Param(*q.Limit))
	}
	if q.Offset != nil {
		s = Append(s, SQL(" offset "), Param(*q.Offset))
	}
	return s, colNames, nil
}

// formatProjection renders the comma-separated select list, expanding
// each SubSelect into a correlated scalar/array JSON subquery keyed on
// its resolved Join, and returns the resulting output column names in
// order.
func (f *fmtState) formatProjection(q *ast.Query) (Snippet, []string, error) {
	var cols []Snippet
	var names []string

	if len(q.Select) == 0 && len(q.SubSelects) == 0 {
		return SQL("*"), nil, nil
	}
	for _, item := range q.Select {
		col, name, err := f.formatSelectItem(item)
		if err != nil {
			return Snippet{}, nil, err
		}
		cols = append(cols, col)
		names = append(names, name)
	}

	for _, sub := range q.SubSelects {
		embed, err := f.formatEmbed(q, sub)
		if err != nil {
			return Snippet{}, nil, err
		}
		cols = append(cols, embed)
		names = append(names, sub.Alias)
	}

	return Join(cols, ", "), names, nil
}

func (f *fmtState) formatSelectItem(item ast.SelectItem) (Snippet, string, error) {
	switch item.Kind {
	case ast.ItemStar:
		return SQL("*"), "*", nil
	case ast.ItemSimple:
		expr := f.formatFieldPath(item.Field)
		if item.Cast != "" {
			expr = Append(SQL("("), expr, SQL(")::"), SQL(item.Cast))
		}
		alias := item.Alias
		if alias == "" {
			alias = item.Field.OutputName()
		}
		return Append(expr, SQL(" as "), SQL(f.dialect.QuoteIdent(alias))), alias, nil
	case ast.ItemFunc:
		var args []Snippet
		for _, p := range item.Parameters {
			if p.Value == "*" {
				args = append(args, SQL("*"))
				continue
			}
			args = append(args, f.formatFieldPath(p.Field))
		}
		expr := Append(SQL(item.FuncName), SQL("("), Join(args, ", "), SQL(")"))
		if item.Cast != "" {
			expr = Append(SQL("("), expr, SQL(")::"), SQL(item.Cast))
		}
		alias := item.Alias
		if alias == "" {
			alias = item.FuncName
		}
		return Append(expr, SQL(" as "), SQL(f.dialect.QuoteIdent(alias))), alias, nil
	default:
		return Snippet{}, "", fmt.Errorf("formatter: unknown select item kind %v", item.Kind)
	}
}

func (f *fmtState) formatFieldPath(field ast.Field) Snippet {
	expr := SQL(f.dialect.QuoteIdent(field.Name))
	for i, elem := range field.JSONPath {
		op := "->"
		if elem.Op == ast.DoubleArrow {
			op = "->>"
		}
		key := "'" + strings.ReplaceAll(elem.Key, "'", "''") + "'"
		if isNumeric(elem.Key) {
			key = elem.Key
		}
		if i == 0 {
			expr = Append(SQL("("), expr, SQL(op), SQL(key))
		} else {
			expr = Append(expr, SQL(op), SQL(key))
		}
	}
	if len(field.JSONPath) > 0 {
		expr = Append(expr, SQL(")"))
	}
	return expr
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// formatEmbed renders one SubSelect as a correlated JSON subquery,
// choosing a scalar row_to_json for parent joins and an array
// aggregation for child/many joins, per spec §4.4.
func (f *fmtState) formatEmbed(parent *ast.Query, sub ast.SubSelect) (Snippet, error) {
	if sub.Join == nil {
		return Snippet{}, fmt.Errorf("formatter: sub-select %q has no resolved join", sub.Alias)
	}

	var correlation Snippet
	switch sub.Join.Kind {
	case ast.JoinParent:
		correlation = f.joinPredicate(sub.Join.FK, parent.Table, sub.Query.Table, true)
	case ast.JoinChild:
		correlation = f.joinPredicate(sub.Join.FK, sub.Query.Table, parent.Table, false)
	case ast.JoinMany:
		pred, err := f.manyJoinPredicate(parent.Table, sub)
		if err != nil {
			return Snippet{}, err
		}
		correlation = pred
	}

	inner, colNames, err := f.formatSelectStatementCorrelated(&sub.Query, correlation)
	if err != nil {
		return Snippet{}, err
	}

	alias := "t_" + sub.Alias
	var aggExpr string
	if sub.Join.Kind == ast.JoinParent {
		aggExpr = f.dialect.RowToJSON(alias, colNames)
	} else {
		aggExpr = f.dialect.JSONArrayAgg(alias, colNames)
	}

	subquery := Append(
		SQL("(select "+aggExpr+" from ("),
		inner,
		SQL(") as "+alias+")"),
	)
	return Append(subquery, SQL(" as "), SQL(f.dialect.QuoteIdent(sub.Alias))), nil
}

// joinPredicate renders "<child>.<col> = <parent>.<refcol> [and ...]"
// for a direct FK relationship. When parentIsReferencer is true, the
// FK lives on the parent row (embedding the referenced "one" side);
// otherwise it lives on the embedded child, referencing the parent.
func (f *fmtState) joinPredicate(fk ast.ForeignKey, from, to ast.Qi, parentIsReferencer bool) Snippet {
	var parts []Snippet
	for i := range fk.Columns {
		var left, right Snippet
		if parentIsReferencer {
			left = SQL(f.qi(to) + "." + f.dialect.QuoteIdent(fk.ReferencedColumns[i]))
			right = SQL(f.qi(from) + "." + f.dialect.QuoteIdent(fk.Columns[i]))
		} else {
			left = SQL(f.qi(from) + "." + f.dialect.QuoteIdent(fk.Columns[i]))
			right = SQL(f.qi(to) + "." + f.dialect.QuoteIdent(fk.ReferencedColumns[i]))
		}
		parts = append(parts, Append(left, SQL(" = "), right))
	}
	return Join(parts, " and ")
}

func (f *fmtState) manyJoinPredicate(parentTable ast.Qi, sub ast.SubSelect) (Snippet, error) {
	toOrigin := sub.Join.FKToOrigin
	toTarget := sub.Join.FKToTarget

	exists := Append(
		SQL("exists (select 1 from "+f.qi(sub.Join.Junction)+" where "),
		f.joinPredicate(toOrigin, sub.Join.Junction, parentTable, false),
		SQL(" and "),
		f.joinPredicate(toTarget, sub.Join.Junction, sub.Query.Table, false),
		SQL(")"),
	)
	return exists, nil
}

// wrapAll parenthesizes each snippet in clauses, for safe AND-joining
// of independently-built predicates.
func wrapAll(clauses []Snippet) []Snippet {
	out := make([]Snippet, len(clauses))
	for i, c := range clauses {
		out[i] = Wrap(c)
	}
	return out
}
