// Package response shapes a compiled request's execution results into
// the HTTP status, Content-Type, Content-Range, and other headers the
// client sees, per spec §4.5. It is pure and transport-agnostic —
// internal/server writes the fields this package computes onto a
// fiber.Ctx the way rest_crud.go writes its own ad hoc
// c.Status(...).JSON(...) calls, just generalized into one reusable
// shaper instead of one-off handler logic per route.
package response

import (
	"fmt"

	"github.com/sqlgateway/sqlgateway/internal/apierrors"
	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/parser"
)

// Header is a single response header name/value pair. Using a slice
// rather than a map preserves the emission order the teacher's own
// handlers rely on (Content-Range before Content-Type, etc.) and
// allows repeated header names from response_headers.
type Header struct {
	Name  string
	Value string
}

// Input carries everything the shaper needs to compute status/headers
// for one completed request, per spec §4.5's input tuple.
type Input struct {
	Method             parser.Method
	Node               ast.NodeKind
	PageTotal          int
	TotalResultSet      *int // nil when exact count was not requested
	TopLevelOffset     int
	Preferences        parser.Preferences
	AcceptContentType  parser.AcceptContentType
	ResponseHeaders    []Header // decoded from the in-query response_headers directive
	ResponseStatus     *int     // decoded from the in-query response_status directive
	UpdateColumnsEmpty bool     // true when an Update's payload named zero columns; a PATCH that names columns and matches no row is a 404, one that names none is not
}

// Result is what internal/server writes back to the client.
type Result struct {
	Status      int
	ContentType string
	Headers     []Header
}

const (
	contentTypeJSON         = "application/json"
	contentTypeSingularJSON = "application/vnd.pgrst.object+json"
	contentTypeCSV          = "text/csv"
)

// Shape computes the response per spec §4.5's precedence-ordered
// status rules and Content-Range/Content-Type derivation.
func Shape(in Input) (Result, error) {
	contentType := contentTypeForAccept(in.AcceptContentType, in.Node)

	if in.AcceptContentType == parser.SingularJSON && in.PageTotal != 1 {
		return Result{}, &apierrors.SingularityError{RowCount: in.PageTotal}
	}

	status, err := statusFor(in)
	if err != nil {
		return Result{}, err
	}

	var headers []Header
	if cr, ok := contentRangeFor(in); ok {
		headers = append(headers, Header{"Content-Range", cr})
	}
	headers = append(headers, Header{"Content-Type", contentType})
	if pa := preferenceApplied(in.Preferences); pa != "" {
		headers = append(headers, Header{"Preference-Applied", pa})
	}
	headers = append(headers, in.ResponseHeaders...)

	return Result{Status: status, ContentType: contentType, Headers: headers}, nil
}

// contentTypeForAccept resolves the response Content-Type from the
// negotiated accept type alone. node is not consulted, so a function
// call that returns a single row still gets application/json unless
// the client asked for the singular object type.
func contentTypeForAccept(accept parser.AcceptContentType, node ast.NodeKind) string {
	switch accept {
	case parser.SingularJSON:
		return contentTypeSingularJSON
	case parser.TextCSV:
		return contentTypeCSV
	default:
		return contentTypeJSON
	}
}

func statusFor(in Input) (int, error) {
	if in.ResponseStatus != nil {
		return *in.ResponseStatus, nil
	}

	switch {
	case in.Method == parser.MethodPost && in.Node == ast.Insert:
		return 201, nil
	case in.Method == parser.MethodDelete && in.Node == ast.Delete:
		if in.Preferences.Representation == "full" {
			return 200, nil
		}
		return 204, nil
	case in.Method == parser.MethodPatch && in.Node == ast.Update:
		if !in.UpdateColumnsEmpty && in.PageTotal == 0 {
			return 404, nil
		}
		if in.Preferences.Representation == "full" {
			return 200, nil
		}
		return 204, nil
	case in.Method == parser.MethodPut && in.Node == ast.Insert:
		if in.Preferences.Representation == "full" {
			return 200, nil
		}
		return 204, nil
	}

	lower, upper, total, known := rangeBounds(in)
	if !known {
		return 200, nil
	}
	if lower > total {
		return 406, nil
	}
	if (1 + upper - lower) < total {
		return 206, nil
	}
	return 200, nil
}

// rangeBounds derives the 0-based inclusive [lower, upper] row range
// and the known total, returning known=false when no total is
// available to compare against (e.g. exact count was not requested).
func rangeBounds(in Input) (lower, upper, total int, known bool) {
	if in.TotalResultSet == nil {
		return 0, 0, 0, false
	}
	total = *in.TotalResultSet
	lower = in.TopLevelOffset
	upper = in.TopLevelOffset + in.PageTotal - 1
	if upper < lower {
		upper = lower
	}
	return lower, upper, total, true
}

// contentRangeFor renders the `lower-upper/total` header, substituting
// "*" for any component that cannot be determined, per spec §4.4/§4.5.
func contentRangeFor(in Input) (string, bool) {
	switch {
	case in.Method == parser.MethodPost && in.Node == ast.Insert:
		return fmt.Sprintf("%s/%s", "1", totalStr(in.TotalResultSet)), true
	case in.Method == parser.MethodDelete && in.Node == ast.Delete:
		upper := in.TopLevelOffset + in.PageTotal - 1
		return fmt.Sprintf("%d-%d/%s", in.TopLevelOffset, upper, totalStr(in.TotalResultSet)), true
	case in.Node == ast.Select:
		lower := in.TopLevelOffset
		upper := lower + in.PageTotal - 1
		if in.PageTotal == 0 {
			upper = lower - 1
		}
		return fmt.Sprintf("%d-%d/%s", lower, upper, totalStr(in.TotalResultSet)), true
	default:
		return "", false
	}
}

func totalStr(total *int) string {
	if total == nil {
		return "*"
	}
	return fmt.Sprintf("%d", *total)
}

func preferenceApplied(p parser.Preferences) string {
	var parts []string
	if p.Resolution != "" {
		parts = append(parts, "resolution="+string(p.Resolution))
	}
	if p.Representation != "" {
		parts = append(parts, "return="+string(p.Representation))
	}
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
