// Package apierrors is the single source of HTTP status mapping for
// sqlgateway: every error kind produced anywhere in the compiler
// pipeline (schema, parser, permissions, formatter, dbexec) resolves
// through Classify to a stable status code and a
// {message, details?, hint?, code?} JSON body, matching the taxonomy
// of spec §7. Grounded on the teacher's internal/api/rest_errors.go
// (ErrCode* constants, ErrorResponse shape, handleDatabaseError's
// string-matched constraint classification) generalized across the
// four target dialects instead of PostgreSQL alone.
package apierrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/parser"
	"github.com/sqlgateway/sqlgateway/internal/schema"
)

// Code is a stable machine-readable error identifier, returned as the
// JSON body's "code" field.
type Code string

const (
	CodeParseRequest        Code = "PARSE_REQUEST_ERROR"
	CodeNoRelBetween        Code = "NO_REL_BETWEEN"
	CodeAmbiguousRelBetween Code = "AMBIGUOUS_REL_BETWEEN"
	CodeUnacceptableSchema  Code = "UNACCEPTABLE_SCHEMA"
	CodeUnknownRelation     Code = "UNKNOWN_RELATION"
	CodePermissionDenied    Code = "PERMISSION_DENIED"
	CodeJwtTokenInvalid     Code = "JWT_TOKEN_INVALID"
	CodeSingularityError    Code = "SINGULARITY_ERROR"
	CodePutMatchingPk       Code = "PUT_MATCHING_PK_ERROR"
	CodeContentType         Code = "CONTENT_TYPE_ERROR"
	CodeGucHeaders          Code = "GUC_HEADERS_ERROR"
	CodeGucStatus           Code = "GUC_STATUS_ERROR"
	CodeDuplicateKey        Code = "DUPLICATE_KEY"
	CodeForeignKeyViolation Code = "FOREIGN_KEY_VIOLATION"
	CodeNotNullViolation    Code = "NOT_NULL_VIOLATION"
	CodeCheckViolation      Code = "CHECK_VIOLATION"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeDatabaseError       Code = "DATABASE_ERROR"
	CodeServiceUnavailable  Code = "SERVICE_UNAVAILABLE"
	CodeInternalError       Code = "INTERNAL_ERROR"
)

// APIError is the typed, transport-agnostic error every handler in
// internal/server classifies an incoming error into before writing an
// HTTP response. It carries exactly the fields spec §7 says a client
// may see: "the JSON body exposes at most {message, details?, hint?,
// code?}".
type APIError struct {
	Status  int
	Code    Code
	Message string
	Details any
	Hint    string
}

func (e *APIError) Error() string { return e.Message }

// Body is the wire shape written as the JSON response.
type Body struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Code    Code   `json:"code,omitempty"`
}

func (e *APIError) Body() Body {
	return Body{Message: e.Message, Details: e.Details, Hint: e.Hint, Code: e.Code}
}

func newErr(status int, code Code, msg string) *APIError {
	return &APIError{Status: status, Code: code, Message: msg}
}

// JwtTokenInvalidError is returned by the server's bearer-token
// decoding step when the JWT is malformed. WWWAuthenticate renders
// the challenge header spec §7 requires this error be exposed with.
type JwtTokenInvalidError struct {
	Reason string
}

func (e *JwtTokenInvalidError) Error() string { return "invalid JWT: " + e.Reason }

func (e *JwtTokenInvalidError) WWWAuthenticate() string {
	return fmt.Sprintf(`Bearer error="invalid_token", error_description=%q`, e.Reason)
}

// SingularityError is returned by the response shaper when singular
// JSON was requested (Accept: application/vnd.pgrst.object+json, or
// a scalar/single-row function call) but the result set had a row
// count other than exactly one.
type SingularityError struct {
	RowCount int
}

func (e *SingularityError) Error() string {
	return fmt.Sprintf("JSON object requested, %d rows returned", e.RowCount)
}

// PutMatchingPkError is returned when a PUT request's JSON payload
// disagrees with the primary key value given in the URL filter.
type PutMatchingPkError struct {
	Column        string
	URLValue      string
	PayloadValue  string
}

func (e *PutMatchingPkError) Error() string {
	return fmt.Sprintf("PUT payload value for %q (%s) does not match URL filter value (%s)", e.Column, e.PayloadValue, e.URLValue)
}

// ContentTypeError is returned when the request's Accept header names
// a representation this server does not produce.
type ContentTypeError struct {
	Requested string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("unsupported accept type: %s", e.Requested)
}

// GucHeadersError/GucStatusError are returned when an in-query
// `response_headers`/`response_status` directive (spec §4.4, carried
// through the pg_query_go-validated Raw condition path) fails to
// parse into the expected shape.
type GucHeadersError struct{ Detail string }

func (e *GucHeadersError) Error() string { return "invalid response_headers directive: " + e.Detail }

type GucStatusError struct{ Detail string }

func (e *GucStatusError) Error() string { return "invalid response_status directive: " + e.Detail }

// Classify maps any error produced by the schema/parser/permissions/
// formatter packages (or one of the typed errors in this package) to
// its stable (status, code, message) per spec §7. authenticated
// controls whether a PermissionDeniedError resolves to 403 (a known
// principal lacking a grant) or 401 (anonymous, spec §7's "403 when
// authenticated, 401 otherwise").
func Classify(err error, authenticated bool) *APIError {
	if err == nil {
		return nil
	}

	var parseErr *parser.ParseRequestError
	if errors.As(err, &parseErr) {
		return &APIError{
			Status:  400,
			Code:    CodeParseRequest,
			Message: parseErr.Message,
			Details: parseErr.Details,
		}
	}

	var noRel *schema.NoRelBetweenError
	if errors.As(err, &noRel) {
		return newErr(400, CodeNoRelBetween, noRel.Error())
	}
	var ambRel *schema.AmbiguousRelBetweenError
	if errors.As(err, &ambRel) {
		return &APIError{
			Status:  300,
			Code:    CodeAmbiguousRelBetween,
			Message: ambRel.Error(),
			Hint:    strings.Join(ambRel.Disambiguators, ", "),
		}
	}
	var unacceptable *schema.UnacceptableSchemaError
	if errors.As(err, &unacceptable) {
		return newErr(406, CodeUnacceptableSchema, unacceptable.Error())
	}
	var unknownRel *schema.UnknownRelationError
	if errors.As(err, &unknownRel) {
		return newErr(404, CodeUnknownRelation, unknownRel.Error())
	}
	var permDenied *schema.PermissionDeniedError
	if errors.As(err, &permDenied) {
		status := 401
		if authenticated {
			status = 403
		}
		return &APIError{Status: status, Code: CodePermissionDenied, Message: "permission denied", Details: permDenied.Details}
	}

	var jwtErr *JwtTokenInvalidError
	if errors.As(err, &jwtErr) {
		return newErr(401, CodeJwtTokenInvalid, jwtErr.Error())
	}
	var singularity *SingularityError
	if errors.As(err, &singularity) {
		return newErr(406, CodeSingularityError, singularity.Error())
	}
	var putPk *PutMatchingPkError
	if errors.As(err, &putPk) {
		return newErr(400, CodePutMatchingPk, putPk.Error())
	}
	var contentType *ContentTypeError
	if errors.As(err, &contentType) {
		return newErr(415, CodeContentType, contentType.Error())
	}
	var gucHeaders *GucHeadersError
	if errors.As(err, &gucHeaders) {
		return newErr(500, CodeGucHeaders, gucHeaders.Error())
	}
	var gucStatus *GucStatusError
	if errors.As(err, &gucStatus) {
		return newErr(500, CodeGucStatus, gucStatus.Error())
	}

	return newErr(500, CodeInternalError, "internal error")
}

// ClassifyDatabaseError maps a raw driver error to an APIError by
// matching well-known constraint-violation fragments, generalized
// from handleDatabaseError across dialect-specific message text.
// connErr reports connection/pool exhaustion, which spec §7 requires
// surface as 503 rather than a generic 500.
func ClassifyDatabaseError(dialect string, err error) *APIError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "duplicate key", "unique constraint", "duplicate entry"):
		return newErr(409, CodeDuplicateKey, "record with this value already exists")
	case containsAny(msg, "foreign key constraint", "foreign key violation", "a foreign key constraint fails"):
		return newErr(409, CodeForeignKeyViolation, "operation violates a foreign key constraint")
	case containsAny(msg, "null value in column", "not-null constraint", "cannot be null", "column cannot be null"):
		return newErr(400, CodeNotNullViolation, "missing required field")
	case containsAny(msg, "invalid input syntax", "incorrect integer value", "malformed"):
		return newErr(400, CodeInvalidInput, "invalid data type provided")
	case containsAny(msg, "check constraint"):
		return newErr(400, CodeCheckViolation, "data violates table constraints")
	case containsAny(msg, "too many connections", "connection pool exhausted", "timeout acquiring connection", "context deadline exceeded"):
		return newErr(503, CodeServiceUnavailable, "database unavailable, try again")
	default:
		return &APIError{
			Status:  500,
			Code:    CodeDatabaseError,
			Message: fmt.Sprintf("%s operation failed", dialect),
		}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
