// Package formatter turns a permission-checked ast.Query into
// dialect-specific SQL plus its parameter vector. The additive
// Snippet/Chunk builder below is a direct Go port of subzero's
// dynamic_statement.rs SqlSnippet: instead of Rust's operator-overloaded
// Add impls, Snippet exposes SQL/Param constructors and an Append
// method, and Render walks the chunk list exactly as subzero's
// `generate` fold does, substituting a dialect-supplied placeholder
// function for the hardcoded "$N" of the original.
package formatter

import (
	"strconv"
	"strings"
)

// Chunk is one piece of a Snippet: either literal SQL text or a bound
// parameter value.
type Chunk struct {
	SQL      string
	IsParam  bool
	Param    any
}

// Snippet is an ordered sequence of Chunks, built additively.
type Snippet struct {
	Chunks []Chunk
}

// SQL wraps a literal fragment of SQL text.
func SQL(s string) Snippet {
	if s == "" {
		return Snippet{}
	}
	return Snippet{Chunks: []Chunk{{SQL: s}}}
}

// Param wraps a single bound value.
func Param(v any) Snippet {
	return Snippet{Chunks: []Chunk{{IsParam: true, Param: v}}}
}

// Append concatenates snippets left to right.
func Append(snippets ...Snippet) Snippet {
	var out Snippet
	for _, s := range snippets {
		out.Chunks = append(out.Chunks, s.Chunks...)
	}
	return out
}

// Join concatenates snippets with a literal separator between each.
func Join(snippets []Snippet, sep string) Snippet {
	var out Snippet
	for i, s := range snippets {
		if i > 0 {
			out.Chunks = append(out.Chunks, SQL(sep).Chunks...)
		}
		out.Chunks = append(out.Chunks, s.Chunks...)
	}
	return out
}

// Wrap surrounds s in "(" ")".
func Wrap(s Snippet) Snippet {
	return Append(SQL("("), s, SQL(")"))
}

func (s Snippet) Len() int { return len(s.Chunks) }

// Placeholder renders one parameter's placeholder text given its
// 1-based ordinal position and, for dialects that need it, the bound
// value itself (ClickHouse's HTTP form-field params need the value to
// pick a type name).
type Placeholder func(pos int, v any) string

// Render walks the chunk list and produces the final SQL string plus
// its positional parameter vector, mirroring subzero's `generate`.
func Render(s Snippet, ph Placeholder) (string, []any) {
	var b strings.Builder
	params := make([]any, 0, len(s.Chunks))
	pos := 1
	for _, c := range s.Chunks {
		if c.IsParam {
			b.WriteString(ph(pos, c.Param))
			params = append(params, c.Param)
			pos++
		} else {
			b.WriteString(c.SQL)
		}
	}
	return b.String(), params
}

// DollarPlaceholder is PostgreSQL's "$N" numbered placeholder scheme.
func DollarPlaceholder(pos int, _ any) string {
	return "$" + strconv.Itoa(pos)
}

// QuestionPlaceholder is the positional "?" scheme shared by SQLite
// and MySQL's default driver dialects.
func QuestionPlaceholder(pos int, _ any) string {
	return "?"
}
