package apierrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sqlgateway/sqlgateway/internal/parser"
	"github.com/sqlgateway/sqlgateway/internal/schema"
)

func TestClassifyParseRequestError(t *testing.T) {
	err := &parser.ParseRequestError{Message: "bad filter", Details: "eq.", Line: 1, Column: 5}
	got := Classify(err, false)
	assert.Equal(t, 400, got.Status)
	assert.Equal(t, CodeParseRequest, got.Code)
}

func TestClassifyAmbiguousRelBetweenCarriesHint(t *testing.T) {
	err := &schema.AmbiguousRelBetweenError{Origin: "a", Target: "b", Disambiguators: []string{"fk1", "fk2"}}
	got := Classify(err, true)
	assert.Equal(t, 300, got.Status)
	assert.Contains(t, got.Hint, "fk1")
}

func TestClassifyPermissionDeniedVariesByAuth(t *testing.T) {
	err := &schema.PermissionDeniedError{Details: "column salary"}
	anon := Classify(err, false)
	assert.Equal(t, 401, anon.Status)
	authed := Classify(err, true)
	assert.Equal(t, 403, authed.Status)
}

func TestClassifyUnknownErrorFallsBackToInternal(t *testing.T) {
	got := Classify(assertError{"boom"}, true)
	assert.Equal(t, 500, got.Status)
	assert.Equal(t, CodeInternalError, got.Code)
}

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, Classify(nil, true))
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestClassifyDatabaseErrorDuplicateKey(t *testing.T) {
	got := ClassifyDatabaseError("postgres", assertError{"duplicate key value violates unique constraint"})
	assert.Equal(t, 409, got.Status)
	assert.Equal(t, CodeDuplicateKey, got.Code)
}

func TestClassifyDatabaseErrorForeignKey(t *testing.T) {
	got := ClassifyDatabaseError("mysql", assertError{"a foreign key constraint fails"})
	assert.Equal(t, 409, got.Status)
	assert.Equal(t, CodeForeignKeyViolation, got.Code)
}

func TestClassifyDatabaseErrorConnectionExhaustion(t *testing.T) {
	got := ClassifyDatabaseError("postgres", assertError{"too many connections for role"})
	assert.Equal(t, 503, got.Status)
}

func TestClassifyDatabaseErrorFallsBackToGeneric(t *testing.T) {
	got := ClassifyDatabaseError("clickhouse", assertError{"some unexpected server fault"})
	assert.Equal(t, 500, got.Status)
	assert.Equal(t, CodeDatabaseError, got.Code)
}
