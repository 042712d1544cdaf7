// Package permissions implements the compiler's two permission passes
// (spec §4.3): Pass A authorizes the columns a request touches against
// the schema's grants, and Pass B injects each applicable role policy
// into the query's WHERE/CHECK trees so enforcement happens inside the
// generated SQL rather than as a separate runtime gate. It plays the
// role the teacher's internal/middleware/rls.go plays at the
// session-variable layer (SetRLSContext/WrapWithRLS), but pushes the
// equivalent restriction into the AST itself, matching how subzero's
// permission pass mutates the query tree before formatting.
package permissions

import (
	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/schema"
)

// Apply runs Pass A then Pass B over q and every nested SubSelect,
// in place. role is the already-authenticated PostgreSQL role (or
// "anon"/"public" style fallback) that the generated SQL will run as;
// when db.UseInternalPermissions is false, both passes are skipped and
// enforcement is left entirely to the database's native RLS/GRANT
// machinery (the toggle described in spec §4.3 and §6).
func Apply(db *schema.DB, currentSchema, role string, q *ast.Query) error {
	if !db.UseInternalPermissions {
		return nil
	}
	return apply(db, currentSchema, role, q)
}

func apply(db *schema.DB, currentSchema, role string, q *ast.Query) error {
	if q.Node == ast.FunctionCall {
		if err := db.HasPrivileges(role, schema.ActionExecute, currentSchema, q.FuncName, schema.ColumnsRequested{}); err != nil {
			return err
		}
	} else {
		action := actionForNode(q.Node)
		cols := columnsRequested(q)
		if err := db.HasPrivileges(role, action, currentSchema, q.Table.Name, cols); err != nil {
			return err
		}
		if err := injectPolicies(db, currentSchema, role, action, q); err != nil {
			return err
		}
	}

	for i := range q.SubSelects {
		if err := apply(db, currentSchema, role, &q.SubSelects[i].Query); err != nil {
			return err
		}
	}
	return nil
}

func actionForNode(n ast.NodeKind) schema.Action {
	switch n {
	case ast.Select:
		return schema.ActionSelect
	case ast.Insert:
		return schema.ActionInsert
	case ast.Update:
		return schema.ActionUpdate
	case ast.Delete:
		return schema.ActionDelete
	default:
		return schema.ActionSelect
	}
}

// columnsRequested derives Pass A's column set: the projection list
// for a Select, or the payload's declared Columns for a mutating node.
func columnsRequested(q *ast.Query) schema.ColumnsRequested {
	if q.Node == ast.Insert || q.Node == ast.Update {
		if len(q.Columns) == 0 {
			return schema.ColumnsRequested{All: true}
		}
		return schema.ColumnsRequested{Columns: q.Columns}
	}
	if q.Node == ast.Delete {
		return schema.ColumnsRequested{}
	}

	var cols []string
	for _, item := range q.Select {
		switch item.Kind {
		case ast.ItemStar:
			return schema.ColumnsRequested{All: true}
		case ast.ItemSimple:
			cols = append(cols, item.Field.Name)
		case ast.ItemFunc:
			for _, p := range item.Parameters {
				if p.Value != "*" {
					cols = append(cols, p.Field.Name)
				}
			}
		}
	}
	for _, c := range q.Where {
		collectConditionColumns(c, &cols)
	}
	for _, o := range q.OrderBy {
		cols = append(cols, o.Field.Name)
	}
	return schema.ColumnsRequested{Columns: cols}
}

func collectConditionColumns(c ast.Condition, out *[]string) {
	switch c.Kind {
	case ast.CondSingle:
		*out = append(*out, c.Field.Name)
	case ast.CondGroup:
		for _, sub := range c.Tree {
			collectConditionColumns(sub, out)
		}
	}
}

// injectPolicies implements Pass B: it looks up the policies declared
// for (role, action) and for "public", partitions them into permissive
// and restrictive sets, and merges them into the query's Where (for
// reads and the row-visibility half of writes) and Check (for the
// row-creation half of inserts/updates) trees. Permissive policies
// combine with OR (any one suffices); restrictive policies combine
// with AND (every one must hold) and are ANDed against the permissive
// result — the same two-tier policy algebra PostgreSQL's own RLS uses.
func injectPolicies(db *schema.DB, currentSchema, role string, action schema.Action, q *ast.Query) error {
	obj, err := db.GetObject(currentSchema, q.Table.Name)
	if err != nil {
		return err
	}

	policies := lookupPolicies(obj, role, action)

	using := mergePolicyTrees(policies, func(p schema.Policy) []ast.Condition { return p.Using })
	if using != nil {
		q.Where = append(q.Where, *using)
	}

	if action == schema.ActionInsert || action == schema.ActionUpdate {
		check := mergePolicyTrees(policies, func(p schema.Policy) []ast.Condition { return p.Check })
		if check != nil {
			q.Check = append(q.Check, *check)
		}
	}

	return nil
}

func lookupPolicies(obj *schema.Object, role string, action schema.Action) []schema.Policy {
	out := append([]schema.Policy{}, obj.PoliciesFor(role, action)...)
	if role != "public" {
		out = append(out, obj.PoliciesFor("public", action)...)
	}
	return out
}

func mergePolicyTrees(policies []schema.Policy, pick func(schema.Policy) []ast.Condition) *ast.Condition {
	var permissive []ast.Condition
	var restrictive []ast.Condition

	for _, p := range policies {
		tree := pick(p)
		if len(tree) == 0 {
			continue
		}
		node := ast.Condition{Kind: ast.CondGroup, Combinator: "and", Tree: tree}
		if p.Restrictive {
			restrictive = append(restrictive, node)
		} else {
			permissive = append(permissive, node)
		}
	}

	if len(permissive) == 0 && len(restrictive) == 0 {
		return nil
	}

	var combined []ast.Condition
	if len(permissive) > 0 {
		combined = append(combined, ast.Condition{Kind: ast.CondGroup, Combinator: "or", Tree: permissive})
	}
	combined = append(combined, restrictive...)

	if len(combined) == 1 {
		return &combined[0]
	}
	result := ast.Condition{Kind: ast.CondGroup, Combinator: "and", Tree: combined}
	return &result
}
