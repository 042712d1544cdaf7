package parser

import (
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/ast"
)

// parseSelectParam parses the top-level `select=` query parameter into
// the root Query's Select/SubSelects, resolving every embed's join
// immediately (so a referential failure surfaces as soon as the embed
// is seen, matching subzero's eager resolution).
func (p *parseState) parseSelectParam(q *ast.Query, raw string) error {
	items, subs, err := p.parseSelectList(raw, q.Table.Name, q.Node == ast.FunctionCall)
	if err != nil {
		return err
	}
	q.Select = items
	q.SubSelects = subs
	return nil
}

// parseSelectList splits a select list on top-level commas (honoring
// nested parens) and classifies each entry as a plain item, a cast, a
// function call, or an embed. currentTable is used to resolve the
// join of any embed found.
func (p *parseState) parseSelectList(raw, currentTable string, isFunc bool) ([]ast.SelectItem, []ast.SubSelect, error) {
	if raw == "" {
		return []ast.SelectItem{{Kind: ast.ItemStar}}, nil, nil
	}
	parts, err := splitTopLevel(raw, ',')
	if err != nil {
		return nil, nil, err
	}

	var items []ast.SelectItem
	var subs []ast.SubSelect

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" {
			items = append(items, ast.SelectItem{Kind: ast.ItemStar})
			continue
		}

		alias, rest := splitAlias(part)
		parenIdx := strings.IndexByte(rest, '(')
		if parenIdx >= 0 && strings.HasSuffix(rest, ")") {
			// Embed: name[!hint](nested-select)
			head := rest[:parenIdx]
			inner := rest[parenIdx+1 : len(rest)-1]

			name, hint := splitHint(head)
			embedAlias := alias
			if embedAlias == "" {
				embedAlias = name
			}

			join, err := p.in.SchemaDB.GetJoin(p.in.RootSchema, currentTable, name, hintPtr(hint))
			if err != nil {
				return nil, nil, err
			}

			nestedItems, nestedSubs, err := p.parseSelectList(inner, name, false)
			if err != nil {
				return nil, nil, err
			}

			sub := ast.SubSelect{
				Alias: embedAlias,
				Hint:  hint,
				Join:  &join,
				Query: ast.Query{
					Node:       ast.Select,
					Table:      ast.Qi{Schema: p.in.RootSchema, Name: name},
					Alias:      embedAlias,
					Select:     nestedItems,
					SubSelects: nestedSubs,
				},
			}
			subs = append(subs, sub)
			continue
		}

		item, err := parseSimpleOrFuncItem(rest, alias, isFunc)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}

	return items, subs, nil
}

// splitAlias separates a leading "alias:" from the remainder, honoring
// the fact that a cast "::type" or json path "->" must not be mistaken
// for it (alias: only ever appears before the field name).
func splitAlias(s string) (alias, rest string) {
	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return "", s
	}
	// Guard against "::" cast syntax, which uses a double colon and
	// never appears at the very start of a select item.
	if colon+1 < len(s) && s[colon+1] == ':' {
		return "", s
	}
	candidate := s[:colon]
	if candidate == "" || !isValidIdentifier(candidate) {
		return "", s
	}
	return candidate, s[colon+1:]
}

// splitHint splits "table!hint" into its two parts.
func splitHint(s string) (name, hint string) {
	if i := strings.IndexByte(s, '!'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func hintPtr(h string) *string {
	if h == "" {
		return nil
	}
	return &h
}

// parseSimpleOrFuncItem handles a non-embed select entry: a bare field,
// a field with a JSON path and/or cast, or a function call such as
// count(*) or avg(amount)::numeric with optional OVER(...) partitions.
func parseSimpleOrFuncItem(s, alias string, isFunc bool) (ast.SelectItem, error) {
	s, cast := splitCast(s)

	if i := strings.IndexByte(s, '('); i >= 0 && strings.HasSuffix(s, ")") {
		funcName := s[:i]
		argsRaw := s[i+1 : len(s)-1]
		if !isValidIdentifier(funcName) {
			return ast.SelectItem{}, parseErr("invalid function name in select", funcName, 0)
		}
		var params []ast.FuncParam
		if argsRaw == "*" {
			params = append(params, ast.FuncParam{Value: "*"})
		} else if argsRaw != "" {
			argParts, err := splitTopLevel(argsRaw, ',')
			if err != nil {
				return ast.SelectItem{}, err
			}
			for _, a := range argParts {
				a = strings.TrimSpace(a)
				f, err := parseFieldPath(a)
				if err != nil {
					return ast.SelectItem{}, err
				}
				params = append(params, ast.FuncParam{Field: f})
			}
		}
		return ast.SelectItem{
			Kind:       ast.ItemFunc,
			FuncName:   funcName,
			Parameters: params,
			Alias:      alias,
			Cast:       cast,
		}, nil
	}

	field, err := parseFieldPath(s)
	if err != nil {
		return ast.SelectItem{}, err
	}
	return ast.SelectItem{Kind: ast.ItemSimple, Field: field, Alias: alias, Cast: cast}, nil
}

// splitCast strips a trailing "::typename" cast annotation.
func splitCast(s string) (rest, cast string) {
	if i := strings.LastIndex(s, "::"); i >= 0 {
		typ := s[i+2:]
		if isValidIdentifier(typ) {
			return s[:i], typ
		}
	}
	return s, ""
}

// parseFieldPath parses "col", "col->key->>key2", or "col->0->>key".
func parseFieldPath(s string) (ast.Field, error) {
	segments := strings.Split(s, "->")
	base := segments[0]
	if !isValidIdentifier(base) {
		return ast.Field{}, parseErr("invalid column name", base, 0)
	}
	f := ast.Field{Name: base}
	for i := 1; i < len(segments); i++ {
		seg := segments[i]
		op := ast.Arrow
		if strings.HasPrefix(seg, ">") {
			op = ast.DoubleArrow
			seg = seg[1:]
		}
		seg = strings.Trim(seg, "\"")
		f.JSONPath = append(f.JSONPath, ast.JSONPathElem{Op: op, Key: seg})
	}
	return f, nil
}

// splitTopLevel splits s on sep, ignoring occurrences inside matched
// parentheses or double quotes.
func splitTopLevel(s string, sep byte) ([]string, error) {
	var parts []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, parseErr("unbalanced parentheses in select", s, i)
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if depth != 0 {
		return nil, parseErr("unbalanced parentheses in select", s, len(s))
	}
	parts = append(parts, s[start:])
	return parts, nil
}

// resolveSubSelectPath walks a dot-separated path (e.g. "actor.films")
// through q's SubSelects by alias, returning the deepest matching
// Query, or q itself if path is empty.
func resolveSubSelectPath(q *ast.Query, segments []string) *ast.Query {
	cur := q
	for _, seg := range segments {
		found := false
		for i := range cur.SubSelects {
			if cur.SubSelects[i].Alias == seg {
				cur = &cur.SubSelects[i].Query
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}
	return cur
}
