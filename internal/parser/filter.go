package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sqlgateway/sqlgateway/internal/ast"
)

var reservedParams = map[string]bool{
	"select": true, "order": true, "limit": true, "offset": true,
	"and": true, "or": true, "columns": true, "on_conflict": true,
}

// applyQueryParams walks the raw query string and distributes each
// parameter to the right place in the AST: select/order/limit/offset
// at top level, dot-prefixed filters/order/limit/offset onto the
// matching embedded SubSelect, and everything else as a WHERE filter.
func (p *parseState) applyQueryParams(root *ast.Query) error {
	if err := p.parseSelectParam(root, p.in.Query.Get("select")); err != nil {
		return err
	}

	keys := make([]string, 0, len(p.in.Query))
	for key := range p.in.Query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range p.in.Query[key] {
			if err := p.applyOneParam(root, key, value); err != nil {
				return err
			}
		}
	}

	if root.Node == ast.Insert {
		if cols := p.in.Query.Get("columns"); cols != "" {
			root.Columns = strings.Split(cols, ",")
		}
		if oc := p.in.Query.Get("on_conflict"); oc != "" {
			res := ast.ResolutionNone
			if p.in.Headers["Prefer"] != "" {
				if strings.Contains(p.in.Headers["Prefer"], "resolution=merge-duplicates") {
					res = ast.ResolutionMergeDuplicates
				} else if strings.Contains(p.in.Headers["Prefer"], "resolution=ignore-duplicates") {
					res = ast.ResolutionIgnoreDuplicates
				}
			}
			root.OnConflict = &ast.OnConflict{Resolution: res, Columns: strings.Split(oc, ",")}
		}
	}

	if p.in.MaxRows != nil {
		lim := *p.in.MaxRows
		if root.Limit == nil || *root.Limit > lim {
			root.Limit = &lim
		}
	}

	return nil
}

func (p *parseState) applyOneParam(root *ast.Query, key, value string) error {
	switch key {
	case "select":
		return nil // handled up front
	case "limit", "offset":
		n, err := atoiChecked(value, key)
		if err != nil {
			return err
		}
		if key == "limit" {
			root.Limit = &n
		} else {
			root.Offset = &n
		}
		return nil
	case "order":
		terms, err := parseOrder(value)
		if err != nil {
			return err
		}
		root.OrderBy = terms
		return nil
	case "and", "or":
		cond, err := parseLogicalGroup(key, value)
		if err != nil {
			return err
		}
		root.Where = append(root.Where, cond)
		return nil
	case "columns", "on_conflict":
		return nil // handled by caller for Insert
	}

	segments := strings.Split(key, ".")
	field := segments[len(segments)-1]
	embedPath := segments[:len(segments)-1]

	target := root
	if len(embedPath) > 0 {
		target = resolveSubSelectPath(root, embedPath)
		if target == nil {
			return parseErr("filter references unknown embedded resource", key, 0)
		}
	}

	switch field {
	case "order":
		terms, err := parseOrder(value)
		if err != nil {
			return err
		}
		target.OrderBy = terms
		return nil
	case "limit":
		n, err := atoiChecked(value, "limit")
		if err != nil {
			return err
		}
		target.Limit = &n
		return nil
	case "offset":
		n, err := atoiChecked(value, "offset")
		if err != nil {
			return err
		}
		target.Offset = &n
		return nil
	}

	if reservedParams[field] {
		return nil
	}

	if root.Node == ast.FunctionCall && len(embedPath) == 0 && p.rpcArgNames[field] {
		if p.rpcArgs == nil {
			p.rpcArgs = make(map[string]string)
		}
		p.rpcArgs[field] = value
		return nil
	}

	cond, err := parseFilterCondition(field, value)
	if err != nil {
		return err
	}
	target.Where = append(target.Where, cond)
	return nil
}

// parseFilterCondition parses "field=value" into a Condition, where
// value is "[not.]op.operand" per the PostgREST filter grammar. Column
// positions in any resulting ParseRequestError are one-based offsets
// into value itself, pinpointing the offending token the way spec §2/
// §4.2 require.
func parseFilterCondition(fieldRaw, value string) (ast.Condition, error) {
	field, err := parseFieldPath(fieldRaw)
	if err != nil {
		return ast.Condition{}, err
	}

	negate := false
	rest := value
	base := 0 // 0-based offset of rest[0] within value
	if strings.HasPrefix(rest, "not.") {
		negate = true
		rest = rest[len("not."):]
		base = len("not.")
	}

	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return ast.Condition{}, parseErr("malformed filter, expected op.value", value, base+len(rest)+1)
	}
	opTok := rest[:dot]
	operand := rest[dot+1:]
	opCol := base + 1
	operandCol := base + dot + 2

	filter, err := buildFilter(ast.FilterOp(opTok), operand, opCol, operandCol)
	if err != nil {
		return ast.Condition{}, err
	}

	return ast.Condition{Kind: ast.CondSingle, Negate: negate, Field: field, Filter: filter}, nil
}

// opCol/operandCol are one-based columns, within the filter's original
// value string, of the start of the operator token and the operand
// respectively; callers needing to report a diagnostic inside operand
// use operandCol as their base.
func buildFilter(op ast.FilterOp, operand string, opCol, operandCol int) (ast.Filter, error) {
	switch op {
	case "in":
		return ast.Filter{Kind: ast.FilterIn, List: splitFilterList(operand)}, nil
	case "is":
		tri, err := parseTrilean(operand, operandCol)
		if err != nil {
			return ast.Filter{}, err
		}
		return ast.Filter{Kind: ast.FilterIs, Trilean: tri}, nil
	case ast.OpFts, ast.OpPlfts, ast.OpPhfts, ast.OpWfts:
		lang, val := splitFtsLanguage(operand)
		return ast.Filter{Kind: ast.FilterFts, Operator: op, Language: lang, Value: val}, nil
	case ast.OpEq, ast.OpNeq, ast.OpGt, ast.OpGte, ast.OpLt, ast.OpLte,
		ast.OpLike, ast.OpILike, ast.OpCs, ast.OpCd, ast.OpOv,
		ast.OpSl, ast.OpSr, ast.OpNxr, ast.OpNxl, ast.OpAdj:
		return ast.Filter{Kind: ast.FilterOpKind, Operator: op, Value: operand}, nil
	case "st_intersects", "st_contains", "st_within":
		geojsonText, err := canonicalGeoJSON(operand, operandCol)
		if err != nil {
			return ast.Filter{}, err
		}
		return ast.Filter{Kind: ast.FilterSpatial, SpatialOp: ast.SpatialOp(op), Geometry: geojsonText}, nil
	case "st_dwithin":
		// Split on the LAST comma: the GeoJSON geometry itself routinely
		// contains internal commas (coordinate pairs, multiple members),
		// but the trailing distance argument never does.
		idx := strings.LastIndexByte(operand, ',')
		if idx < 0 {
			return ast.Filter{}, parseErr("st_dwithin requires geometry,distance", operand, operandCol+len(operand))
		}
		geomPart, distPart := operand[:idx], operand[idx+1:]
		geojsonText, err := canonicalGeoJSON(geomPart, operandCol)
		if err != nil {
			return ast.Filter{}, err
		}
		if _, err := strconv.ParseFloat(distPart, 64); err != nil {
			return ast.Filter{}, parseErr("st_dwithin distance must be numeric", distPart, operandCol+idx+1)
		}
		return ast.Filter{Kind: ast.FilterSpatial, SpatialOp: ast.SpatialDWithin, Geometry: geojsonText, Distance: distPart}, nil
	default:
		return ast.Filter{}, parseErr("unknown filter operator", string(op), opCol)
	}
}

// canonicalGeoJSON validates operand as GeoJSON via go-geom, rejecting
// malformed or non-geometry payloads before they ever reach the
// database, and re-serializes it so the SQL parameter is always
// well-formed JSON regardless of the client's exact formatting.
// col is the one-based column of operand's first character within the
// enclosing filter value, for diagnostic purposes.
func canonicalGeoJSON(operand string, col int) (string, error) {
	g, err := geojson.Unmarshal([]byte(operand))
	if err != nil {
		return "", parseErr("invalid GeoJSON operand for spatial filter", operand, col)
	}
	out, err := geojson.Marshal(g)
	if err != nil {
		return "", parseErr("invalid GeoJSON operand for spatial filter", operand, col)
	}
	return string(out), nil
}

// splitFilterList splits the operand of an in.(...) filter into its
// elements. An empty list — "()" with nothing between the parens —
// yields a nil slice rather than a single empty-string element, so
// callers can render the spec §4.4 match-no-rows predicate instead of
// the invalid SQL "in ()".
func splitFilterList(s string) []string {
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts, err := splitTopLevel(s, ',')
	if err != nil {
		parts = strings.Split(s, ",")
	}
	for i := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `"`)
	}
	return parts
}

func parseTrilean(s string, col int) (ast.Trilean, error) {
	switch strings.ToLower(s) {
	case "true":
		return ast.TrileanTrue, nil
	case "false":
		return ast.TrileanFalse, nil
	case "null":
		return ast.TrileanNull, nil
	case "unknown":
		return ast.TrileanUnknown, nil
	default:
		return 0, parseErr("invalid operand for is filter", s, col)
	}
}

func splitFtsLanguage(s string) (lang, value string) {
	if strings.HasPrefix(s, "(") {
		if end := strings.IndexByte(s, ')'); end >= 0 {
			return s[1:end], s[end+1:]
		}
	}
	return "", s
}

// parseLogicalGroup parses the `and=(...)`/`or=(...)` combinator
// syntax, including nested `and`/`or` groups and dot-path negation.
func parseLogicalGroup(combinator, raw string) (ast.Condition, error) {
	raw = strings.TrimSpace(raw)
	negate := false
	if strings.HasPrefix(raw, "not.") {
		negate = true
		raw = raw[len("not."):]
	}
	raw = strings.TrimPrefix(raw, "(")
	raw = strings.TrimSuffix(raw, ")")

	parts, err := splitTopLevel(raw, ',')
	if err != nil {
		return ast.Condition{}, err
	}

	var tree []ast.Condition
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cond, err := parseLogicalItem(part)
		if err != nil {
			return ast.Condition{}, err
		}
		tree = append(tree, cond)
	}

	return ast.Condition{Kind: ast.CondGroup, Negate: negate, Combinator: combinator, Tree: tree}, nil
}

// parseLogicalItem parses one entry of an and/or group: either a
// nested "and(...)"/"or(...)" group or a "field.op.value" triple.
func parseLogicalItem(s string) (ast.Condition, error) {
	negate := false
	if strings.HasPrefix(s, "not.and(") || strings.HasPrefix(s, "not.or(") {
		negate = true
		s = s[len("not."):]
	}
	if strings.HasPrefix(s, "and(") && strings.HasSuffix(s, ")") {
		cond, err := parseLogicalGroup("and", s[len("and("):len(s)-1])
		if err != nil {
			return ast.Condition{}, err
		}
		cond.Negate = cond.Negate != negate
		return cond, nil
	}
	if strings.HasPrefix(s, "or(") && strings.HasSuffix(s, ")") {
		cond, err := parseLogicalGroup("or", s[len("or("):len(s)-1])
		if err != nil {
			return ast.Condition{}, err
		}
		cond.Negate = cond.Negate != negate
		return cond, nil
	}

	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return ast.Condition{}, parseErr("malformed and/or item, expected field.op.value", s, 0)
	}
	field := s[:idx]
	rest := s[idx+1:]
	return parseFilterCondition(field, rest)
}

// parseOrder parses the `order=` grammar: comma-separated
// "field[.asc|desc][.nullsfirst|nullslast]" terms. Column positions in
// any resulting error are one-based offsets into raw, computed by
// walking the comma- and dot-split structure, matching subzero's
// "(line 1, column N)" diagnostics for the same grammar.
func parseOrder(raw string) ([]ast.OrderTerm, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	terms := make([]ast.OrderTerm, 0, len(parts))
	offset := 0
	for _, part := range parts {
		partStart := offset
		offset += len(part) + 1 // account for the comma consumed by Split

		trimmed := strings.TrimSpace(part)
		partStart += len(part) - len(strings.TrimLeft(part, " \t"))
		if trimmed == "" {
			continue
		}

		segs := strings.Split(trimmed, ".")
		fieldPath, err := parseFieldPath(segs[0])
		if err != nil {
			return nil, err
		}
		term := ast.OrderTerm{Field: fieldPath}

		segOffset := partStart + len(segs[0]) + 1
		for _, mod := range segs[1:] {
			switch mod {
			case "asc":
				term.Descending = false
			case "desc":
				term.Descending = true
			case "nullsfirst":
				t := true
				term.NullsFirst = &t
			case "nullslast":
				f := false
				term.NullsFirst = &f
			default:
				firstChar := "end of input"
				if mod != "" {
					firstChar = string(mod[0])
				}
				msg := fmt.Sprintf("Unexpected %s Expected nullsfirst or nullslast", firstChar)
				return nil, parseErr(msg, mod, segOffset+1)
			}
			segOffset += len(mod) + 1
		}
		terms = append(terms, term)
	}
	return terms, nil
}
