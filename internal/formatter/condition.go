package formatter

import (
	"fmt"

	"github.com/sqlgateway/sqlgateway/internal/ast"
)

// formatConditionTree renders conds ANDed together (PostgREST's
// top-level filter semantics: every top-level query parameter is
// implicitly ANDed, and/or groups nest explicitly via CondGroup).
// hasCondition is false when conds is empty so callers can omit an
// empty "where ()" entirely.
func (f *fmtState) formatConditionTree(conds []ast.Condition) (Snippet, bool, error) {
	if len(conds) == 0 {
		return Snippet{}, false, nil
	}
	var parts []Snippet
	for _, c := range conds {
		s, err := f.formatCondition(c)
		if err != nil {
			return Snippet{}, false, err
		}
		parts = append(parts, s)
	}
	return Join(wrapAll(parts), " and "), true, nil
}

func (f *fmtState) formatCondition(c ast.Condition) (Snippet, error) {
	var body Snippet
	var err error

	switch c.Kind {
	case ast.CondSingle:
		body, err = f.formatSingleCondition(c)
	case ast.CondGroup:
		body, err = f.formatGroupCondition(c)
	case ast.CondForeign:
		body = f.formatForeignCondition(c)
	case ast.CondRaw:
		body = SQL(c.Raw)
	default:
		return Snippet{}, fmt.Errorf("formatter: unknown condition kind %v", c.Kind)
	}
	if err != nil {
		return Snippet{}, err
	}
	if c.Negate {
		body = Append(SQL("not ("), body, SQL(")"))
	}
	return body, nil
}

func (f *fmtState) formatGroupCondition(c ast.Condition) (Snippet, error) {
	sep := " and "
	if c.Combinator == "or" {
		sep = " or "
	}
	var parts []Snippet
	for _, sub := range c.Tree {
		s, err := f.formatCondition(sub)
		if err != nil {
			return Snippet{}, err
		}
		parts = append(parts, s)
	}
	return Wrap(Join(wrapAll(parts), sep)), nil
}

func (f *fmtState) formatForeignCondition(c ast.Condition) Snippet {
	left := Append(SQL(f.qi(c.LeftQi)+"."), f.formatFieldPath(c.LeftField))
	right := Append(SQL(f.qi(c.RightQi)+"."), f.formatFieldPath(c.RightField))
	return Append(left, SQL(" = "), right)
}

func (f *fmtState) formatSingleCondition(c ast.Condition) (Snippet, error) {
	field := f.formatFieldPath(c.Field)
	return f.formatFilter(field, c.Filter)
}

func (f *fmtState) formatFilter(field Snippet, filter ast.Filter) (Snippet, error) {
	switch filter.Kind {
	case ast.FilterOpKind:
		return f.formatOpFilter(field, filter)
	case ast.FilterIn:
		if len(filter.List) == 0 {
			// An empty operand list (in.()) can never match any row;
			// "field in ()" is invalid SQL, so render a literal
			// match-no-rows predicate instead (spec §4.4).
			return SQL("1 = 0"), nil
		}
		var vals []Snippet
		for _, v := range filter.List {
			vals = append(vals, Param(v))
		}
		return Append(field, SQL(" in ("), Join(vals, ", "), SQL(")")), nil
	case ast.FilterIs:
		return Append(field, SQL(" is "+trileanSQL(filter.Trilean))), nil
	case ast.FilterFts:
		return f.formatFtsFilter(field, filter)
	case ast.FilterCol:
		other := Append(SQL(f.qi(filter.ColQi)+"."), f.formatFieldPath(filter.ColField))
		return Append(field, SQL(" = "), other), nil
	case ast.FilterEnv:
		return Append(field, SQL(" = (select claims->>"), Param(filter.Env.Name), SQL(" from env)")), nil
	case ast.FilterSpatial:
		return f.formatSpatialFilter(field, filter)
	default:
		return Snippet{}, fmt.Errorf("formatter: unknown filter kind %v", filter.Kind)
	}
}

// formatSpatialFilter renders a PostGIS predicate against a GeoJSON
// operand already validated and canonicalized by the parser.
// st_dwithin takes a third, unparameterized distance argument since
// PostgREST/subzero pass it through as a literal in the column's SRID
// units rather than a bound value.
func (f *fmtState) formatSpatialFilter(field Snippet, filter ast.Filter) (Snippet, error) {
	geom := Append(SQL("st_geomfromgeojson("), Param(filter.Geometry), SQL(")"))
	switch filter.SpatialOp {
	case ast.SpatialIntersects:
		return Append(SQL("st_intersects("), field, SQL(", "), geom, SQL(")")), nil
	case ast.SpatialContains:
		return Append(SQL("st_contains("), field, SQL(", "), geom, SQL(")")), nil
	case ast.SpatialWithin:
		return Append(SQL("st_within("), field, SQL(", "), geom, SQL(")")), nil
	case ast.SpatialDWithin:
		return Append(SQL("st_dwithin("), field, SQL(", "), geom, SQL(", "+filter.Distance+")")), nil
	default:
		return Snippet{}, fmt.Errorf("formatter: unsupported spatial operator %q", filter.SpatialOp)
	}
}

func trileanSQL(t ast.Trilean) string {
	switch t {
	case ast.TrileanTrue:
		return "true"
	case ast.TrileanFalse:
		return "false"
	case ast.TrileanUnknown:
		return "unknown"
	default:
		return "null"
	}
}

var opSQL = map[ast.FilterOp]string{
	ast.OpEq:    "=",
	ast.OpNeq:   "<>",
	ast.OpGt:    ">",
	ast.OpGte:   ">=",
	ast.OpLt:    "<",
	ast.OpLte:   "<=",
	ast.OpLike:  "like",
	ast.OpILike: "ilike",
	ast.OpCs:    "@>",
	ast.OpCd:    "<@",
	ast.OpOv:    "&&",
	ast.OpSl:    "<<",
	ast.OpSr:    ">>",
	ast.OpNxr:   "&<",
	ast.OpNxl:   "&>",
	ast.OpAdj:   "-|-",
}

func (f *fmtState) formatOpFilter(field Snippet, filter ast.Filter) (Snippet, error) {
	op, ok := opSQL[filter.Operator]
	if !ok {
		return Snippet{}, fmt.Errorf("formatter: unsupported filter operator %q", filter.Operator)
	}
	return Append(field, SQL(" "+op+" "), Param(filter.Value)), nil
}

func (f *fmtState) formatFtsFilter(field Snippet, filter ast.Filter) (Snippet, error) {
	var fn string
	switch filter.Operator {
	case ast.OpFts:
		fn = "to_tsquery"
	case ast.OpPlfts:
		fn = "plainto_tsquery"
	case ast.OpPhfts:
		fn = "phraseto_tsquery"
	case ast.OpWfts:
		fn = "websearch_to_tsquery"
	default:
		return Snippet{}, fmt.Errorf("formatter: unsupported fts operator %q", filter.Operator)
	}
	var tsquery Snippet
	if filter.Language != "" {
		tsquery = Append(SQL(fn+"("), Param(filter.Language), SQL(", "), Param(filter.Value), SQL(")"))
	} else {
		tsquery = Append(SQL(fn+"("), Param(filter.Value), SQL(")"))
	}
	return Append(SQL("to_tsvector("), field, SQL(") @@ "), tsquery), nil
}

// formatWhere is the top-level entry used by mutation statements,
// which (unlike embeds) never need an extra correlation predicate.
func (f *fmtState) formatWhere(conds []ast.Condition) (Snippet, error) {
	cond, has, err := f.formatConditionTree(conds)
	if err != nil {
		return Snippet{}, err
	}
	if !has {
		return Snippet{}, nil
	}
	return Append(SQL(" where "), cond), nil
}

func (f *fmtState) formatOrderBy(terms []ast.OrderTerm) (Snippet, error) {
	var parts []Snippet
	for _, t := range terms {
		expr := f.formatFieldPath(t.Field)
		dir := "asc"
		if t.Descending {
			dir = "desc"
		}
		s := Append(expr, SQL(" "+dir))
		if t.NullsFirst != nil {
			if *t.NullsFirst {
				s = Append(s, SQL(" nulls first"))
			} else {
				s = Append(s, SQL(" nulls last"))
			}
		}
		parts = append(parts, s)
	}
	return Join(parts, ", "), nil
}
