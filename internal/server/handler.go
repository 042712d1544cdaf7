// handler.go is the compiler pipeline itself, wired exactly as
// DESIGN.md lays it out: parser.Parse → permissions.Apply →
// formatter.Format/FormatCount → the configured dbexec.Executor →
// response.Shape. It plays the role rest_crud.go's per-table
// makeGetHandler/makeInsertHandler/etc. play in the teacher, collapsed
// into one dynamic handler because sqlgateway has no per-table
// generated routes — the schema is data, not code.
package server

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sqlgateway/sqlgateway/internal/apierrors"
	"github.com/sqlgateway/sqlgateway/internal/ast"
	"github.com/sqlgateway/sqlgateway/internal/dbexec"
	"github.com/sqlgateway/sqlgateway/internal/formatter"
	"github.com/sqlgateway/sqlgateway/internal/parser"
	"github.com/sqlgateway/sqlgateway/internal/permissions"
	"github.com/sqlgateway/sqlgateway/internal/response"
)

// handleCRUD serves GET/POST/PATCH/PUT/DELETE /:resource.
func (s *Server) handleCRUD(c *fiber.Ctx) error {
	return s.handle(c, c.Params("resource"), false, "")
}

// handleRPC serves GET/POST /rpc/:func.
func (s *Server) handleRPC(c *fiber.Ctx) error {
	return s.handle(c, "", true, c.Params("func"))
}

func (s *Server) handle(c *fiber.Ctx, table string, isRPC bool, funcName string) error {
	method := methodFromFiber(c.Method())

	collected, err := s.collect(c)
	if err != nil {
		return s.writeError(c, err, false)
	}
	authenticated := collected.role != s.anonRole

	schemaName, err := s.resolveSchema(collected.headers, isWriteMethod(method))
	if err != nil {
		return s.writeError(c, err, authenticated)
	}

	applyRangeHeader(collected.rawQuery, collected.headers["Range-Unit"], collected.headers["Range"])
	applyDefaultPageSize(collected.rawQuery, s.cfg.API)

	body := c.Body()
	in := parser.Input{
		SchemaDB:   s.schema(),
		RootSchema: schemaName,
		Method:     method,
		Path:       c.Path(),
		Table:      table,
		IsRPC:      isRPC,
		FuncName:   funcName,
		Query:      collected.rawQuery,
		Body:       body,
		Headers:    collected.headers,
		Cookies:    collected.cookies,
		Role:       collected.role,
		MaxRows:    maxRowsFor(s.cfg.API),
	}

	req, err := parser.Parse(in)
	if err != nil {
		return s.writeError(c, err, authenticated)
	}

	if err := permissions.Apply(s.schema(), schemaName, collected.role, &req.Query); err != nil {
		return s.writeError(c, err, authenticated)
	}

	env := buildEnv(req, collected.rawQuery, collected.claims, false)
	dialect := s.executor.Dialect()

	var rows []map[string]any
	var totalResultSet *int

	switch req.Query.Node {
	case ast.Select, ast.FunctionCall:
		stmt, err := formatter.Format(schemaName, &req.Query, env, dialect)
		if err != nil {
			return s.writeError(c, err, authenticated)
		}
		rows, err = s.executor.Query(c.Context(), stmt)
		if err != nil {
			return s.writeDatabaseError(c, err)
		}
		if req.Preferences.Count == "exact" && req.Query.Node == ast.Select {
			countStmt, err := formatter.FormatCount(schemaName, &req.Query, env, dialect)
			if err != nil {
				return s.writeError(c, err, authenticated)
			}
			countRows, err := s.executor.Query(c.Context(), countStmt)
			if err != nil {
				return s.writeDatabaseError(c, err)
			}
			if n, ok := firstColumnInt(countRows); ok {
				totalResultSet = &n
			}
		}
	default:
		obj, err := s.schema().GetObject(schemaName, req.Query.Table.Name)
		if err != nil {
			return s.writeError(c, err, authenticated)
		}
		if req.Method == parser.MethodPut {
			if err := validatePutPrimaryKey(obj.PrimaryKey(), &req.Query); err != nil {
				return s.writeError(c, err, authenticated)
			}
		}
		stmt, err := formatter.Format(schemaName, &req.Query, env, dialect)
		if err != nil {
			return s.writeError(c, err, authenticated)
		}
		result, err := s.executor.Mutate(c.Context(), dbexec.Mutation{
			Query:     &req.Query,
			Schema:    schemaName,
			Env:       env,
			Statement: stmt,
			PKColumns: obj.PrimaryKey(),
		})
		if err != nil {
			return s.writeDatabaseError(c, err)
		}
		rows = result.Rows
	}

	offset := 0
	if req.Query.Offset != nil {
		offset = *req.Query.Offset
	}
	updateColumnsEmpty := req.Query.Node == ast.Update && payloadColumnCount(body) == 0

	shaped, err := response.Shape(response.Input{
		Method:             req.Method,
		Node:               req.Query.Node,
		PageTotal:          len(rows),
		TotalResultSet:     totalResultSet,
		TopLevelOffset:     offset,
		Preferences:        req.Preferences,
		AcceptContentType:  req.AcceptContentType,
		UpdateColumnsEmpty: updateColumnsEmpty,
	})
	if err != nil {
		return s.writeError(c, err, authenticated)
	}

	for _, h := range shaped.Headers {
		c.Set(h.Name, h.Value)
	}

	if shaped.Status == 204 {
		return c.SendStatus(204)
	}
	if req.AcceptContentType == parser.SingularJSON {
		if len(rows) == 0 {
			return c.Status(shaped.Status).SendString("")
		}
		return c.Status(shaped.Status).JSON(rows[0])
	}
	return c.Status(shaped.Status).JSON(rows)
}

// validatePutPrimaryKey enforces spec §4.2/§6's PUT constraint: the
// JSON payload's primary key value(s) must agree with the URL's `eq`
// filter on the same column(s), e.g. PUT /items?id=eq.14 rejects a
// body of {"id":2,...}. A PK column present in the URL filter but
// omitted from the payload is not a mismatch — PUT allows the payload
// to rely on the URL value entirely.
func validatePutPrimaryKey(pkColumns []string, q *ast.Query) error {
	if len(pkColumns) == 0 {
		return nil
	}
	urlValues := make(map[string]string, len(pkColumns))
	for _, cond := range q.Where {
		if cond.Kind != ast.CondSingle || cond.Negate {
			continue
		}
		if cond.Filter.Kind != ast.FilterOpKind || cond.Filter.Operator != ast.OpEq {
			continue
		}
		if len(cond.Field.JSONPath) != 0 {
			continue
		}
		urlValues[cond.Field.Name] = cond.Filter.Value
	}

	var payload map[string]any
	if q.Payload != nil && q.Payload.JSON != "" {
		if err := json.Unmarshal([]byte(q.Payload.JSON), &payload); err != nil {
			return err
		}
	}

	for _, col := range pkColumns {
		urlValue, hasURL := urlValues[col]
		if !hasURL {
			continue
		}
		payloadValue, hasPayload := payload[col]
		if !hasPayload {
			continue
		}
		if fmt.Sprint(payloadValue) != urlValue {
			return &apierrors.PutMatchingPkError{
				Column:       col,
				URLValue:     urlValue,
				PayloadValue: fmt.Sprint(payloadValue),
			}
		}
	}
	return nil
}

func firstColumnInt(rows []map[string]any) (int, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	for _, v := range rows[0] {
		switch n := v.(type) {
		case int64:
			return int(n), true
		case int32:
			return int(n), true
		case int:
			return n, true
		case float64:
			return int(n), true
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

func (s *Server) writeError(c *fiber.Ctx, err error, authenticated bool) error {
	apiErr := apierrors.Classify(err, authenticated)
	return c.Status(apiErr.Status).JSON(apiErr.Body())
}

func (s *Server) writeDatabaseError(c *fiber.Ctx, err error) error {
	apiErr := apierrors.ClassifyDatabaseError(s.executor.Dialect().Name(), err)
	return c.Status(apiErr.Status).JSON(apiErr.Body())
}
