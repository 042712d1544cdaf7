// Package schema is the in-memory relational catalog consulted by the
// parser (relationship resolution) and the permissions package (grant
// and policy lookup). It is constructed once per process from a JSON
// artifact and is immutable thereafter, mirroring subzero's DbSchema
// and the teacher's SchemaCache/SchemaInspector split: SchemaInspector
// talks to the database, SchemaCache holds the live, swappable
// snapshot; DbSchema here plays the SchemaCache role for the compiler,
// except its source is an already-introspected JSON document rather
// than a live connection.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/sqlgateway/sqlgateway/internal/ast"
)

// ObjectKind identifies what kind of relation an Object is.
type ObjectKind string

const (
	KindTable    ObjectKind = "table"
	KindView     ObjectKind = "view"
	KindFunction ObjectKind = "function"
)

// Volatility classifies a function Object for read_only determination.
type Volatility string

const (
	VolatilityVolatile Volatility = "volatile"
	VolatilityStable   Volatility = "stable"
	VolatilityImmutable Volatility = "immutable"
)

// Column is a single table/view column.
type Column struct {
	Name         string `json:"name" validate:"required"`
	DataType     string `json:"data_type" validate:"required"`
	PrimaryKey   bool   `json:"primary_key"`
}

// ForeignKey is an outbound reference declared on an Object.
type ForeignKey struct {
	Name                string   `json:"name" validate:"required"`
	Table                [2]string `json:"table" validate:"required"`
	Columns             []string `json:"columns" validate:"required,min=1"`
	ReferencedTable     [2]string `json:"referenced_table" validate:"required"`
	ReferencedColumns   []string `json:"referenced_columns" validate:"required,min=1"`
}

func (fk ForeignKey) toAST() ast.ForeignKey {
	return ast.ForeignKey{
		Name:              fk.Name,
		Table:             ast.Qi{Schema: fk.Table[0], Name: fk.Table[1]},
		Columns:           fk.Columns,
		ReferencedTable:   ast.Qi{Schema: fk.ReferencedTable[0], Name: fk.ReferencedTable[1]},
		ReferencedColumns: fk.ReferencedColumns,
	}
}

// Action is a permission/policy action. All is an input-only alias
// expanded at load time into the four DML actions; Merge is accepted
// in grants and policies, but permission checks for PUT consult
// Insert, so a Merge entry is never consulted.
type Action string

const (
	ActionSelect  Action = "select"
	ActionInsert  Action = "insert"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
	ActionMerge   Action = "merge"
	ActionAll     Action = "all"
)

var dmlActions = []Action{ActionSelect, ActionInsert, ActionUpdate, ActionDelete}

// ColumnGrant is either unrestricted (All) or a specific column list.
type ColumnGrant struct {
	All     bool
	Columns map[string]bool
}

// Policy is a declarative predicate gating row access or row creation
// for a role on an action.
type Policy struct {
	Name        string
	Restrictive bool
	Using       []ast.Condition
	Check       []ast.Condition
}

// grantKey / policyKey index grants and policies by (role, action).
type grantKey struct {
	Role   string
	Action Action
}

// Permissions holds the per-Object grant and policy tables.
type Permissions struct {
	Grants   map[grantKey]ColumnGrant
	Policies map[grantKey][]Policy
}

func newPermissions() Permissions {
	return Permissions{
		Grants:   make(map[grantKey]ColumnGrant),
		Policies: make(map[grantKey][]Policy),
	}
}

// FunctionSpec describes a callable Object of kind Function.
type FunctionSpec struct {
	Volatility Volatility
	ReturnType string
	Parameters []ast.ProcParam
}

// Object is a table, view, or function within a Schema.
type Object struct {
	Kind        ObjectKind
	Name        string
	Columns     map[string]Column
	ColumnOrder []string
	ForeignKeys []ForeignKey
	Function    *FunctionSpec
	Permissions Permissions
}

// PoliciesFor returns the policies declared for (role, action) on this
// object, in declaration order.
func (o *Object) PoliciesFor(role string, action Action) []Policy {
	return o.Permissions.Policies[grantKey{Role: role, Action: action}]
}

// HasColumn reports whether name is a declared column of this object.
func (o *Object) HasColumn(name string) bool {
	_, ok := o.Columns[name]
	return ok
}

// PrimaryKey returns the declared primary key column names, in
// declaration order.
func (o *Object) PrimaryKey() []string {
	var pk []string
	for _, name := range o.ColumnOrder {
		if o.Columns[name].PrimaryKey {
			pk = append(pk, name)
		}
	}
	return pk
}

// Schema is a named collection of Objects.
type Schema struct {
	Name    string
	Objects map[string]*Object
	// joinTables[(origin,target)] lists Objects whose foreign keys
	// reference both origin and target, in either order; a pure
	// function of declared foreign keys computed once at load time.
	joinTables map[pairKey][]string
}

type pairKey struct{ A, B string }

// DB is the root, immutable catalog: one or more Schemas plus the
// internal-permissions toggle from the JSON artifact.
type DB struct {
	UseInternalPermissions bool
	Schemas                map[string]*Schema
}

// --- JSON wire format, per spec §6 "Schema JSON format" ---

type wireColumn struct {
	Name       string `json:"name" validate:"required"`
	DataType   string `json:"data_type" validate:"required"`
	PrimaryKey bool   `json:"primary_key"`
}

type wireForeignKey struct {
	Name                string    `json:"name" validate:"required"`
	Table               [2]string `json:"table" validate:"required"`
	Columns             []string  `json:"columns" validate:"required,min=1"`
	ReferencedTable     [2]string `json:"referenced_table" validate:"required"`
	ReferencedColumns   []string  `json:"referenced_columns" validate:"required,min=1"`
}

type wireFunctionParam struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Variadic bool   `json:"variadic"`
}

type wirePermission struct {
	Role        string     `json:"role" validate:"required"`
	Name        string     `json:"name"`
	Restrictive bool       `json:"restrictive"`
	Grant       []Action   `json:"grant"`
	Columns     []string   `json:"columns"`
	PolicyFor   []Action   `json:"policy_for"`
	Using       []json.RawMessage `json:"using"`
	Check       []json.RawMessage `json:"check"`
}

type wireObject struct {
	Kind        string              `json:"kind" validate:"required,oneof=table view function"`
	Name        string              `json:"name" validate:"required"`
	Columns     []wireColumn        `json:"columns"`
	ForeignKeys []wireForeignKey    `json:"foreign_keys"`
	Permissions []wirePermission    `json:"permissions"`
	Volatility  string              `json:"volatility,omitempty"`
	ReturnType  string              `json:"return_type,omitempty"`
	Parameters  []wireFunctionParam `json:"parameters,omitempty"`
}

type wireSchema struct {
	Name    string       `json:"name" validate:"required"`
	Objects []wireObject `json:"objects"`
}

type wireDB struct {
	UseInternalPermissions bool         `json:"use_internal_permissions"`
	Schemas                []wireSchema `json:"schemas" validate:"required,min=1"`
}

var validate = validator.New()

// Load deserializes a schema JSON artifact and computes the derived
// join_tables map. Failure modes: malformed JSON, unknown object kind,
// or a struct failing validation (missing required field, bad enum).
func Load(jsonText []byte) (*DB, error) {
	var wire wireDB
	if err := json.Unmarshal(jsonText, &wire); err != nil {
		return nil, fmt.Errorf("schema: malformed JSON: %w", err)
	}
	if err := validate.Struct(wire); err != nil {
		return nil, fmt.Errorf("schema: invalid schema document: %w", err)
	}

	db := &DB{
		UseInternalPermissions: wire.UseInternalPermissions,
		Schemas:                make(map[string]*Schema, len(wire.Schemas)),
	}

	for _, ws := range wire.Schemas {
		s := &Schema{
			Name:       ws.Name,
			Objects:    make(map[string]*Object, len(ws.Objects)),
			joinTables: make(map[pairKey][]string),
		}
		for _, wo := range ws.Objects {
			obj, err := buildObject(wo)
			if err != nil {
				return nil, fmt.Errorf("schema: object %s.%s: %w", ws.Name, wo.Name, err)
			}
			s.Objects[obj.Name] = obj
		}
		computeJoinTables(s)
		db.Schemas[s.Name] = s
	}

	return db, nil
}

func buildObject(wo wireObject) (*Object, error) {
	var kind ObjectKind
	switch wo.Kind {
	case "table":
		kind = KindTable
	case "view":
		kind = KindView
	case "function":
		kind = KindFunction
	default:
		return nil, fmt.Errorf("unknown object kind %q", wo.Kind)
	}

	obj := &Object{
		Kind:        kind,
		Name:        wo.Name,
		Columns:     make(map[string]Column, len(wo.Columns)),
		ColumnOrder: make([]string, 0, len(wo.Columns)),
		Permissions: newPermissions(),
	}

	for _, wc := range wo.Columns {
		obj.Columns[wc.Name] = Column{Name: wc.Name, DataType: wc.DataType, PrimaryKey: wc.PrimaryKey}
		obj.ColumnOrder = append(obj.ColumnOrder, wc.Name)
	}

	for _, wfk := range wo.ForeignKeys {
		obj.ForeignKeys = append(obj.ForeignKeys, ForeignKey{
			Name:              wfk.Name,
			Table:             wfk.Table,
			Columns:           wfk.Columns,
			ReferencedTable:   wfk.ReferencedTable,
			ReferencedColumns: wfk.ReferencedColumns,
		})
	}

	if kind == KindFunction {
		params := make([]ast.ProcParam, 0, len(wo.Parameters))
		for _, p := range wo.Parameters {
			params = append(params, ast.ProcParam{Name: p.Name, Type: p.Type, Required: p.Required, Variadic: p.Variadic})
		}
		obj.Function = &FunctionSpec{
			Volatility: Volatility(wo.Volatility),
			ReturnType: wo.ReturnType,
			Parameters: params,
		}
	}

	for _, wp := range wo.Permissions {
		if err := applyPermission(obj, wp); err != nil {
			return nil, err
		}
	}

	return obj, nil
}

func applyPermission(obj *Object, wp wirePermission) error {
	using, err := decodeConditions(wp.Using)
	if err != nil {
		return fmt.Errorf("permission %s: using: %w", wp.Role, err)
	}
	check, err := decodeConditions(wp.Check)
	if err != nil {
		return fmt.Errorf("permission %s: check: %w", wp.Role, err)
	}

	grantActions := expandAll(wp.Grant)
	for _, a := range grantActions {
		key := grantKey{Role: wp.Role, Action: a}
		if len(wp.Columns) == 0 {
			obj.Permissions.Grants[key] = ColumnGrant{All: true}
		} else {
			cols := make(map[string]bool, len(wp.Columns))
			for _, c := range wp.Columns {
				cols[c] = true
			}
			obj.Permissions.Grants[key] = ColumnGrant{Columns: cols}
		}
	}

	policyActions := expandAll(wp.PolicyFor)
	for _, a := range policyActions {
		key := grantKey{Role: wp.Role, Action: a}
		obj.Permissions.Policies[key] = append(obj.Permissions.Policies[key], Policy{
			Name:        wp.Name,
			Restrictive: wp.Restrictive,
			Using:       using,
			Check:       check,
		})
	}

	return nil
}

// expandAll expands the All alias into the four DML actions, per
// spec §3: "All is an input-only alias that expands into the four DML
// actions at load time".
func expandAll(actions []Action) []Action {
	var out []Action
	for _, a := range actions {
		if a == ActionAll {
			out = append(out, dmlActions...)
		} else {
			out = append(out, a)
		}
	}
	return out
}

// decodeConditions is a minimal decoder for the condition-tree JSON
// shape used in `using`/`check`; full grammar mirrors ast.Condition's
// JSON projection. Kept deliberately permissive: a malformed entry is
// dropped with an error rather than silently ignored.
func decodeConditions(raw []json.RawMessage) ([]ast.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	conds := make([]ast.Condition, 0, len(raw))
	for _, r := range raw {
		var c wireCondition
		if err := json.Unmarshal(r, &c); err != nil {
			return nil, err
		}
		if c.Raw != "" {
			if err := validateRawCondition(c.Raw); err != nil {
				return nil, err
			}
		}
		conds = append(conds, c.toAST())
	}
	return conds, nil
}

// validateRawCondition rejects a permissions.using/check "raw" SQL
// fragment that doesn't parse as a boolean expression, the same way
// the teacher's rpc validator uses pg_query_go to catch malformed SQL
// before it reaches the database rather than surfacing as an opaque
// runtime error. The fragment is wrapped in a throwaway WHERE clause
// since pg_query_go only parses complete statements.
func validateRawCondition(raw string) error {
	if _, err := pg_query.Parse("select 1 where " + raw); err != nil {
		return fmt.Errorf("invalid raw condition %q: %w", raw, err)
	}
	return nil
}

type wireCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Negate   bool   `json:"negate"`
	Raw      string `json:"raw"`
}

func (c wireCondition) toAST() ast.Condition {
	if c.Raw != "" {
		return ast.Condition{Kind: ast.CondRaw, Raw: c.Raw}
	}
	return ast.Condition{
		Kind:   ast.CondSingle,
		Negate: c.Negate,
		Field:  ast.Field{Name: c.Field},
		Filter: ast.Filter{Kind: ast.FilterOpKind, Operator: ast.FilterOp(c.Operator), Value: c.Value},
	}
}

// computeJoinTables finds every Object whose foreign keys reference
// two distinct tables within the same schema and records it as a
// potential many-to-many junction for both orderings of the pair.
// This is computed once at load time and never mutated afterward.
func computeJoinTables(s *Schema) {
	for _, obj := range s.Objects {
		if obj.Kind != KindTable {
			continue
		}
		targets := make(map[string]bool)
		for _, fk := range obj.ForeignKeys {
			if fk.ReferencedTable[0] == s.Name {
				targets[fk.ReferencedTable[1]] = true
			}
		}
		names := make([]string, 0, len(targets))
		for t := range targets {
			names = append(names, t)
		}
		for i := 0; i < len(names); i++ {
			for j := 0; j < len(names); j++ {
				if i == j {
					continue
				}
				key := pairKey{A: names[i], B: names[j]}
				s.joinTables[key] = append(s.joinTables[key], obj.Name)
			}
		}
	}
}

// GetObject looks up an Object in the named schema.
func (db *DB) GetObject(schemaName, name string) (*Object, error) {
	s, ok := db.Schemas[schemaName]
	if !ok {
		return nil, &UnacceptableSchemaError{Schema: schemaName}
	}
	obj, ok := s.Objects[name]
	if !ok {
		return nil, &UnknownRelationError{Relation: name}
	}
	return obj, nil
}
