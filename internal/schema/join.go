package schema

import (
	"fmt"

	"github.com/sqlgateway/sqlgateway/internal/ast"
)

// GetJoin resolves the relationship between origin and target within
// currentSchema, following the disambiguation algorithm of spec §4.1.
// It never guesses: when more than one relationship is possible and no
// hint narrows it to exactly one, it returns AmbiguousRelBetweenError
// listing the available disambiguators.
func (db *DB) GetJoin(currentSchema, origin, target string, hint *string) (ast.Join, error) {
	s, ok := db.Schemas[currentSchema]
	if !ok {
		return ast.Join{}, &UnacceptableSchemaError{Schema: currentSchema}
	}
	originObj, ok := s.Objects[origin]
	if !ok {
		return ast.Join{}, &UnknownRelationError{Relation: origin}
	}

	// Step 1: target names an outbound FK on origin directly.
	for _, fk := range originObj.ForeignKeys {
		if fk.Name == target {
			if fk.Table[1] == origin {
				return ast.Join{Kind: ast.JoinParent, FK: fk.toAST()}, nil
			}
			return ast.Join{Kind: ast.JoinChild, FK: fk.toAST()}, nil
		}
	}

	targetObj, targetIsTable := s.Objects[target]
	if !targetIsTable {
		// Step 3: target equals a single-column FK on origin.
		for _, fk := range originObj.ForeignKeys {
			if len(fk.Columns) == 1 && fk.Columns[0] == target {
				return ast.Join{Kind: ast.JoinParent, FK: fk.toAST()}, nil
			}
		}
		return ast.Join{}, &NoRelBetweenError{Origin: origin, Target: target}
	}

	if hint != nil && *hint != "" {
		h := *hint

		// (a) FK on origin named h, referencing target.
		for _, fk := range originObj.ForeignKeys {
			if fk.Name == h && fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == target {
				return ast.Join{Kind: ast.JoinParent, FK: fk.toAST()}, nil
			}
		}
		// (b) FK on target named h, referencing origin.
		for _, fk := range targetObj.ForeignKeys {
			if fk.Name == h && fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == origin {
				return ast.Join{Kind: ast.JoinChild, FK: fk.toAST()}, nil
			}
		}
		// (c) h names a junction object.
		if junction, ok := s.Objects[h]; ok {
			var toOrigin, toTarget *ForeignKey
			for i, fk := range junction.ForeignKeys {
				if fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == origin {
					toOrigin = &junction.ForeignKeys[i]
				}
				if fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == target {
					toTarget = &junction.ForeignKeys[i]
				}
			}
			if toOrigin == nil || toTarget == nil {
				return ast.Join{}, &NoRelBetweenError{Origin: origin, Target: target}
			}
			return ast.Join{
				Kind:       ast.JoinMany,
				Junction:   ast.Qi{Schema: currentSchema, Name: junction.Name},
				FKToOrigin: toOrigin.toAST(),
				FKToTarget: toTarget.toAST(),
			}, nil
		}
		// (d) FK on origin with single column == h, referencing target.
		for _, fk := range originObj.ForeignKeys {
			if len(fk.Columns) == 1 && fk.Columns[0] == h &&
				fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == target {
				return ast.Join{Kind: ast.JoinParent, FK: fk.toAST()}, nil
			}
		}
		// (e) FK on target with single column == h, referencing origin.
		for _, fk := range targetObj.ForeignKeys {
			if len(fk.Columns) == 1 && fk.Columns[0] == h &&
				fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == origin {
				return ast.Join{Kind: ast.JoinChild, FK: fk.toAST()}, nil
			}
		}
		return ast.Join{}, &NoRelBetweenError{Origin: origin, Target: target}
	}

	// No hint: union of Child, Parent, and Many candidates.
	var candidates []ast.Join
	var disambiguators []string

	for _, fk := range targetObj.ForeignKeys {
		if fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == origin {
			candidates = append(candidates, ast.Join{Kind: ast.JoinChild, FK: fk.toAST()})
			disambiguators = append(disambiguators, fk.Name)
		}
	}
	if origin != target {
		for _, fk := range originObj.ForeignKeys {
			if fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == target {
				candidates = append(candidates, ast.Join{Kind: ast.JoinParent, FK: fk.toAST()})
				disambiguators = append(disambiguators, fk.Name)
			}
		}
	}
	for _, junctionName := range s.joinTables[pairKey{A: origin, B: target}] {
		junction := s.Objects[junctionName]
		var toOrigin, toTarget *ForeignKey
		for i, fk := range junction.ForeignKeys {
			if fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == origin {
				toOrigin = &junction.ForeignKeys[i]
			}
			if fk.ReferencedTable[0] == currentSchema && fk.ReferencedTable[1] == target {
				toTarget = &junction.ForeignKeys[i]
			}
		}
		if toOrigin != nil && toTarget != nil {
			candidates = append(candidates, ast.Join{
				Kind:       ast.JoinMany,
				Junction:   ast.Qi{Schema: currentSchema, Name: junctionName},
				FKToOrigin: toOrigin.toAST(),
				FKToTarget: toTarget.toAST(),
			})
			disambiguators = append(disambiguators, junctionName)
		}
	}

	switch len(candidates) {
	case 0:
		return ast.Join{}, &NoRelBetweenError{Origin: origin, Target: target}
	case 1:
		return candidates[0], nil
	default:
		return ast.Join{}, &AmbiguousRelBetweenError{Origin: origin, Target: target, Disambiguators: disambiguators}
	}
}

// ColumnsRequested describes which columns a caller wants to touch,
// for HasPrivileges.
type ColumnsRequested struct {
	All     bool
	Columns []string
}

// HasPrivileges checks whether role may perform action on the named
// object's requested columns. Delete/Execute actions check
// object-level grants only; other actions require every requested
// column to appear in the union of the role's and "public"'s grants.
func (db *DB) HasPrivileges(role string, action Action, schemaName, objectName string, cols ColumnsRequested) error {
	obj, err := db.GetObject(schemaName, objectName)
	if err != nil {
		return err
	}

	roleGrant, roleOK := obj.Permissions.Grants[grantKey{Role: role, Action: action}]
	publicGrant, publicOK := obj.Permissions.Grants[grantKey{Role: "public", Action: action}]
	if !roleOK && !publicOK {
		return &PermissionDeniedError{Details: fmt.Sprintf("role %q has no %s grant on %s.%s", role, action, schemaName, objectName)}
	}

	if action == ActionDelete || action == ActionExecute {
		return nil
	}

	if (roleOK && roleGrant.All) || (publicOK && publicGrant.All) {
		return nil
	}

	allowed := make(map[string]bool)
	if roleOK {
		for c := range roleGrant.Columns {
			allowed[c] = true
		}
	}
	if publicOK {
		for c := range publicGrant.Columns {
			allowed[c] = true
		}
	}

	if cols.All {
		// Star select against a column-restricted grant: allowed as
		// long as some columns are granted; the formatter later
		// expands '*' to only the granted columns.
		if len(allowed) == 0 {
			return &PermissionDeniedError{Details: fmt.Sprintf("role %q has no column grants on %s.%s", role, schemaName, objectName)}
		}
		return nil
	}

	for _, c := range cols.Columns {
		if !allowed[c] {
			return &PermissionDeniedError{Details: fmt.Sprintf("role %q may not access column %q of %s.%s", role, c, schemaName, objectName)}
		}
	}
	return nil
}
