package formatter

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sqlgateway/sqlgateway/internal/ast"
)

// decodePayloadRows parses a request payload into one or more row
// maps, accepting both a single JSON object and a JSON array of
// objects (PostgREST's bulk-insert form).
func decodePayloadRows(p *ast.Payload) ([]map[string]any, error) {
	if p == nil || p.JSON == "" {
		return nil, fmt.Errorf("formatter: mutation has no request payload")
	}
	trimmed := p.JSON
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t' || trimmed[0] == '\n') {
		trimmed = trimmed[1:]
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []map[string]any
		if err := json.Unmarshal([]byte(p.JSON), &rows); err != nil {
			return nil, fmt.Errorf("formatter: malformed payload: %w", err)
		}
		return rows, nil
	}
	var row map[string]any
	if err := json.Unmarshal([]byte(p.JSON), &row); err != nil {
		return nil, fmt.Errorf("formatter: malformed payload: %w", err)
	}
	return []map[string]any{row}, nil
}

// payloadColumns determines the ordered column list for an insert:
// the explicit q.Columns when given, otherwise the sorted key union of
// every row (subsequent rows may omit keys, which bind as SQL NULL).
// Sorted rather than encounter order because Go's map iteration order
// is randomized and encoding/json decodes objects into maps, which
// would otherwise make the emitted column order — and so the rendered
// SQL text — nondeterministic across runs of an identical request.
func payloadColumns(q *ast.Query, rows []map[string]any) []string {
	if len(q.Columns) > 0 {
		return q.Columns
	}
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// PayloadPrimaryKeys extracts pkColumns' values, in order, from an
// insert's decoded payload rows. Used by executors for backends with no
// driver-reported last-insert-id (ClickHouse has neither RETURNING nor
// autoincrement), where the client-supplied payload is the only source
// of the new rows' keys.
func PayloadPrimaryKeys(q *ast.Query, pkColumns []string) ([][]any, error) {
	rows, err := decodePayloadRows(q.Payload)
	if err != nil {
		return nil, err
	}
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		vals := make([]any, len(pkColumns))
		for i, c := range pkColumns {
			vals[i] = row[c]
		}
		out = append(out, vals)
	}
	return out, nil
}

// CheckColumnAlias names the boolean column Pass B's combined `check`
// predicate is materialized as on every affected row (spec §4.3): the
// executor rolls back and reports PermissionDenied if any row comes
// back false, rather than silently filtering rows the policy rejects.
const CheckColumnAlias = "_subzero_check__constraint"

// formatCheckExpr renders q.Check (populated by internal/permissions's
// Pass B policy injection) as a single boolean expression, defaulting
// to the SQL literal `true` when no restrictive/permissive policy
// applies.
func (f *fmtState) formatCheckExpr(q *ast.Query) (Snippet, error) {
	expr, has, err := f.formatConditionTree(q.Check)
	if err != nil {
		return Snippet{}, err
	}
	if !has {
		return SQL("true"), nil
	}
	return expr, nil
}

func (f *fmtState) formatReturning(q *ast.Query) (Snippet, error) {
	var cols []Snippet
	if len(q.Returning) == 0 {
		cols = []Snippet{SQL("*")}
	} else {
		for _, c := range q.Returning {
			cols = append(cols, SQL(f.dialect.QuoteIdent(c)))
		}
	}
	if len(q.Check) > 0 {
		check, err := f.formatCheckExpr(q)
		if err != nil {
			return Snippet{}, err
		}
		cols = append(cols, Append(SQL("("), check, SQL(") as "+f.dialect.QuoteIdent(CheckColumnAlias))))
	}
	return Append(SQL(" returning "), Join(cols, ", ")), nil
}

func (f *fmtState) formatInsert(q *ast.Query) (Snippet, error) {
	rows, err := decodePayloadRows(q.Payload)
	if err != nil {
		return Snippet{}, err
	}
	cols := payloadColumns(q, rows)
	if len(cols) == 0 {
		return Snippet{}, fmt.Errorf("formatter: insert payload has no columns")
	}

	var colSnips []Snippet
	for _, c := range cols {
		colSnips = append(colSnips, SQL(f.dialect.QuoteIdent(c)))
	}

	var rowSnips []Snippet
	for _, row := range rows {
		var vals []Snippet
		for _, c := range cols {
			v, ok := row[c]
			if !ok {
				vals = append(vals, SQL("null"))
				continue
			}
			vals = append(vals, Param(v))
		}
		rowSnips = append(rowSnips, Wrap(Join(vals, ", ")))
	}

	s := Append(
		SQL("insert into "+f.qi(q.Table)+" ("),
		Join(colSnips, ", "),
		SQL(") values "),
		Join(rowSnips, ", "),
	)

	if q.OnConflict != nil {
		conflict, err := f.formatOnConflict(q.OnConflict, cols)
		if err != nil {
			return Snippet{}, err
		}
		s = Append(s, conflict)
	}

	if f.dialect.SupportsReturning() {
		ret, err := f.formatReturning(q)
		if err != nil {
			return Snippet{}, err
		}
		s = Append(s, ret)
	}
	return s, nil
}

// formatOnConflict renders the upsert clause for an insert over
// insertCols (the full set of payload columns). Merge-duplicates
// updates every payload column that isn't itself part of the conflict
// target — re-assigning the target columns to themselves would be a
// no-op at best and fights the unique index at worst.
func (f *fmtState) formatOnConflict(oc *ast.OnConflict, insertCols []string) (Snippet, error) {
	var targetCols []Snippet
	for _, c := range oc.Columns {
		targetCols = append(targetCols, SQL(f.dialect.QuoteIdent(c)))
	}
	target := Snippet{}
	if len(targetCols) > 0 {
		target = Wrap(Join(targetCols, ", "))
	}

	switch oc.Resolution {
	case ast.ResolutionIgnoreDuplicates:
		return Append(SQL(" on conflict "), target, SQL(" do nothing")), nil
	case ast.ResolutionMergeDuplicates:
		if len(oc.Columns) == 0 {
			return Snippet{}, fmt.Errorf("formatter: merge-duplicates upsert requires on_conflict columns")
		}
		isTarget := make(map[string]bool, len(oc.Columns))
		for _, c := range oc.Columns {
			isTarget[c] = true
		}
		var sets []Snippet
		for _, c := range insertCols {
			if isTarget[c] {
				continue
			}
			q := f.dialect.QuoteIdent(c)
			sets = append(sets, SQL(q+" = excluded."+q))
		}
		if len(sets) == 0 {
			return Snippet{}, fmt.Errorf("formatter: merge-duplicates upsert has no non-conflict columns to update")
		}
		return Append(SQL(" on conflict "), target, SQL(" do update set "), Join(sets, ", ")), nil
	default:
		return Snippet{}, nil
	}
}

func (f *fmtState) formatUpdate(q *ast.Query) (Snippet, error) {
	rows, err := decodePayloadRows(q.Payload)
	if err != nil {
		return Snippet{}, err
	}
	if len(rows) != 1 {
		return Snippet{}, fmt.Errorf("formatter: update payload must be a single object")
	}
	row := rows[0]
	cols := payloadColumns(q, rows)

	var sets []Snippet
	for _, c := range cols {
		sets = append(sets, Append(SQL(f.dialect.QuoteIdent(c)+" = "), Param(row[c])))
	}

	s := Append(SQL("update "+f.qi(q.Table)+" set "), Join(sets, ", "))

	where, err := f.formatWhere(q.Where)
	if err != nil {
		return Snippet{}, err
	}
	s = Append(s, where)

	if f.dialect.SupportsReturning() {
		ret, err := f.formatReturning(q)
		if err != nil {
			return Snippet{}, err
		}
		s = Append(s, ret)
	}
	return s, nil
}

func (f *fmtState) formatDelete(q *ast.Query) (Snippet, error) {
	s := SQL("delete from " + f.qi(q.Table))

	where, err := f.formatWhere(q.Where)
	if err != nil {
		return Snippet{}, err
	}
	s = Append(s, where)

	if f.dialect.SupportsReturning() {
		ret, err := f.formatReturning(q)
		if err != nil {
			return Snippet{}, err
		}
		s = Append(s, ret)
	}
	return s, nil
}

// formatFunctionCall renders a `select * from schema.fn(named => args)`
// invocation using named parameters decoded from the JSON payload, so
// argument order never needs to match the declared parameter order.
func (f *fmtState) formatFunctionCall(q *ast.Query) (Snippet, error) {
	var args map[string]any
	if q.Payload != nil && q.Payload.JSON != "" {
		if err := json.Unmarshal([]byte(q.Payload.JSON), &args); err != nil {
			return Snippet{}, fmt.Errorf("formatter: malformed rpc payload: %w", err)
		}
	}

	var argSnips []Snippet
	for _, p := range q.Parameters {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return Snippet{}, fmt.Errorf("formatter: missing required function parameter %q", p.Name)
			}
			continue
		}
		argSnips = append(argSnips, Append(SQL(f.dialect.QuoteIdent(p.Name)+" => "), Param(v)))
	}

	fn := f.qi(ast.Qi{Schema: f.schema, Name: q.FuncName})
	return Append(SQL("select * from "+fn+"("), Join(argSnips, ", "), SQL(")")), nil
}
