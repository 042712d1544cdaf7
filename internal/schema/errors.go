package schema

import "fmt"

// UnacceptableSchemaError is returned when the requested profile/schema
// is not among the exposed schemas (§7, 406).
type UnacceptableSchemaError struct {
	Schema string
}

func (e *UnacceptableSchemaError) Error() string {
	return fmt.Sprintf("schema %q is not exposed", e.Schema)
}

// UnknownRelationError is returned when an object name does not exist
// in the given schema (§7, 404).
type UnknownRelationError struct {
	Relation string
}

func (e *UnknownRelationError) Error() string {
	return fmt.Sprintf("could not find relation %q", e.Relation)
}

// NoRelBetweenError is returned when GetJoin finds zero candidate
// relationships between origin and target (§7, 400).
type NoRelBetweenError struct {
	Origin, Target string
}

func (e *NoRelBetweenError) Error() string {
	return fmt.Sprintf("Could not find a relationship between %s and %s", e.Origin, e.Target)
}

// AmbiguousRelBetweenError is returned when GetJoin finds more than
// one candidate relationship and no hint disambiguates it (§7, 300).
type AmbiguousRelBetweenError struct {
	Origin, Target string
	Disambiguators []string
}

func (e *AmbiguousRelBetweenError) Error() string {
	return fmt.Sprintf("Could not embed because more than one relationship was found for %s and %s: %v", e.Origin, e.Target, e.Disambiguators)
}

// PermissionDeniedError is returned by HasPrivileges and by the
// permissions package's check-tree enforcement (§7, 403/401).
type PermissionDeniedError struct {
	Details string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Details)
}
