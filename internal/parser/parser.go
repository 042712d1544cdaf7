// Package parser is a combinator-based decoder from the PostgREST URL
// surface (query string, path, headers, body) into a typed ast.Query,
// resolving embedded relationships against the schema package. It
// follows the teacher's query_parser.go in spirit (dedicated parseX
// helpers per grammar production, identifier validation up front) but
// targets ast.Query instead of a flat QueryParams struct, and resolves
// relationships instead of leaving them as opaque embed names.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/schema"
)

var validIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidIdentifier(s string) bool {
	return validIdentifierRegex.MatchString(s)
}

// AcceptContentType is the negotiated response content type.
type AcceptContentType int

const (
	ApplicationJSON AcceptContentType = iota
	SingularJSON
	TextCSV
)

// Preferences decodes the `Prefer` request header.
type Preferences struct {
	Resolution     string // "merge-duplicates" | "ignore-duplicates" | ""
	Representation string // "full" | "headers-only" | "none" | ""
	Count          string // "exact" | "planned" | "estimated" | ""
}

// Method is the HTTP method of the incoming request.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPatch  Method = "PATCH"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// ApiRequest is the parser's successful output.
type ApiRequest struct {
	Method            Method
	Path              string
	SchemaName        string
	ReadOnly          bool
	AcceptContentType AcceptContentType
	Query             ast.Query
	Preferences       Preferences
	Headers           map[string]string
	Cookies           map[string]string
	Role              string
}

// ParseRequestError is the diagnostic returned for a syntactic or
// referential parse failure (spec §7).
type ParseRequestError struct {
	Message string
	Details string
	Line    int
	Column  int
}

func (e *ParseRequestError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func parseErr(message, details string, col int) error {
	return &ParseRequestError{Message: message, Details: details, Line: 1, Column: col}
}

// Input bundles everything the parser needs for a single request.
type Input struct {
	SchemaDB   *schema.DB
	RootSchema string
	Method     Method
	Path       string
	Table      string // resolved root object name (path's last non-rpc segment)
	IsRPC      bool
	FuncName   string
	Query      url.Values
	Body       []byte
	Headers    map[string]string
	Cookies    map[string]string
	Role       string
	MaxRows    *int
}

// Parse is the single entry point: it turns an Input into an ApiRequest
// or a ParseRequestError/schema resolution error.
func Parse(in Input) (*ApiRequest, error) {
	p := &parseState{in: in}
	return p.parse()
}

type parseState struct {
	in Input

	// rpcArgNames/rpcArgs collect a GET RPC's scalar call arguments,
	// which travel as query parameters but must become the function's
	// JSON payload rather than WHERE filters on the returned relation.
	rpcArgNames map[string]bool
	rpcArgs     map[string]string
}

func (p *parseState) parse() (*ApiRequest, error) {
	node, volatile, err := p.nodeForMethod()
	if err != nil {
		return nil, err
	}

	var root ast.Query
	root.Node = node

	if p.in.IsRPC {
		root.FuncName = p.in.FuncName
		obj, err := p.in.SchemaDB.GetObject(p.in.RootSchema, p.in.FuncName)
		if err != nil {
			return nil, err
		}
		if obj.Function != nil {
			volatile = obj.Function.Volatility == schema.VolatilityVolatile
			root.Parameters = obj.Function.Parameters
			p.rpcArgNames = make(map[string]bool, len(obj.Function.Parameters))
			for _, param := range obj.Function.Parameters {
				p.rpcArgNames[param.Name] = true
			}
		}
		root.Volatile = volatile
	} else {
		root.Table = ast.Qi{Schema: p.in.RootSchema, Name: p.in.Table}
	}

	if err := p.applyQueryParams(&root); err != nil {
		return nil, err
	}

	switch {
	case node == ast.Insert || node == ast.Update:
		root.Payload = &ast.Payload{JSON: string(p.in.Body), Type: "application/json"}
	case p.in.IsRPC && p.in.Method == MethodPost:
		root.Payload = &ast.Payload{JSON: string(p.in.Body), Type: "application/json"}
	case p.in.IsRPC && p.in.Method == MethodGet:
		root.Payload = &ast.Payload{JSON: rpcArgsToJSON(p.rpcArgs), Type: "application/json"}
	}

	accept := p.acceptContentType()
	prefs := p.preferences()

	readOnly := p.in.Method == MethodGet && !(p.in.IsRPC && volatile)

	req := &ApiRequest{
		Method:            p.in.Method,
		Path:              p.in.Path,
		SchemaName:        p.in.RootSchema,
		ReadOnly:          readOnly,
		AcceptContentType: accept,
		Query:             root,
		Preferences:       prefs,
		Headers:           p.in.Headers,
		Cookies:           p.in.Cookies,
		Role:              p.in.Role,
	}

	if err := p.verifyJoins(&req.Query); err != nil {
		return nil, err
	}

	return req, nil
}

// nodeForMethod implements the method/node mapping of spec §4.2.
func (p *parseState) nodeForMethod() (ast.NodeKind, bool, error) {
	switch p.in.Method {
	case MethodGet:
		if p.in.IsRPC {
			return ast.FunctionCall, false, nil
		}
		return ast.Select, false, nil
	case MethodPost:
		if p.in.IsRPC {
			return ast.FunctionCall, true, nil
		}
		return ast.Insert, false, nil
	case MethodPatch:
		return ast.Update, false, nil
	case MethodPut:
		return ast.Insert, false, nil
	case MethodDelete:
		return ast.Delete, false, nil
	default:
		return 0, false, parseErr("unsupported method", string(p.in.Method), 0)
	}
}

func (p *parseState) acceptContentType() AcceptContentType {
	accept := p.in.Headers["Accept"]
	switch {
	case strings.Contains(accept, "application/vnd.pgrst.object+json"):
		return SingularJSON
	case strings.Contains(accept, "text/csv"):
		return TextCSV
	default:
		return ApplicationJSON
	}
}

func (p *parseState) preferences() Preferences {
	var prefs Preferences
	raw := p.in.Headers["Prefer"]
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "resolution":
			prefs.Resolution = val
		case "return":
			if val == "representation" {
				val = "full"
			}
			prefs.Representation = val
		case "count":
			prefs.Count = val
		}
	}
	return prefs
}

// verifyJoins asserts the parser invariant: every SubSelect.join is
// Some(_) after a successful parse.
func (p *parseState) verifyJoins(q *ast.Query) error {
	for i := range q.SubSelects {
		if q.SubSelects[i].Join == nil {
			return fmt.Errorf("internal error: sub-select %q has no resolved join", q.SubSelects[i].Alias)
		}
		if err := p.verifyJoins(&q.SubSelects[i].Query); err != nil {
			return err
		}
	}
	return nil
}

// rpcArgsToJSON renders the collected GET RPC arguments as a flat JSON
// object; values are emitted as JSON strings, matching how subzero's
// rpc GET handler treats every query-string argument as text and lets
// the function's own parameter casts coerce it.
func rpcArgsToJSON(args map[string]string) string {
	if len(args) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for k, v := range args {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.WriteString(strconv.Quote(v))
	}
	b.WriteByte('}')
	return b.String()
}

func atoiChecked(s, field string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, parseErr(fmt.Sprintf("invalid %s parameter", field), err.Error(), 0)
	}
	return n, nil
}
