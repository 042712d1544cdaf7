// request.go turns one fiber.Ctx into the parser.Input the compiler
// core expects, gathering headers/cookies/body/query the way
// rest_crud.go's makeGetHandler does (url.ParseQuery on the raw query
// string rather than c.Queries(), which collapses repeated keys like
// `col=gte.1&col=lte.9`), plus the schema-profile and bearer-claim
// resolution rest_crud.go never had to do because fluxbase only ever
// exposes one fixed schema and its own signed JWTs.
package server

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sqlgateway/sqlgateway/internal/parser"
	"github.com/sqlgateway/sqlgateway/internal/schema"
)

// collectedRequest bundles everything gathered from the fiber.Ctx
// before parsing, plus the identity/claims resolved from its bearer
// token, kept separate from parser.Input so buildEnv can see the
// claims without parser needing to know about JWTs at all.
type collectedRequest struct {
	headers  map[string]string
	cookies  map[string]string
	rawQuery url.Values
	claims   map[string]any
	role     string
}

func (s *Server) collect(c *fiber.Ctx) (*collectedRequest, error) {
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(k, v []byte) {
		key := string(k)
		if _, exists := headers[key]; !exists {
			headers[key] = string(v)
		}
	})

	cookies := make(map[string]string)
	c.Request().Header.VisitAllCookie(func(k, v []byte) {
		cookies[string(k)] = string(v)
	})

	rawQuery := string(c.Request().URI().QueryString())
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, &parser.ParseRequestError{Message: "invalid query string", Details: err.Error()}
	}

	claims, err := decodeBearerClaims(headers["Authorization"])
	if err != nil {
		return nil, err
	}
	role := roleFromClaims(claims, s.cfg.API.RoleClaimKey, s.anonRole)

	return &collectedRequest{headers: headers, cookies: cookies, rawQuery: values, claims: claims, role: role}, nil
}

// resolveSchema applies the Accept-Profile (reads) / Content-Profile
// (writes) header against the exposed schema list, per spec §4.1 and
// §6's "schema selection when multiple schemas exposed"; absent a
// profile header, the first configured schema is the default.
func (s *Server) resolveSchema(headers map[string]string, isWrite bool) (string, error) {
	headerName := "Accept-Profile"
	if isWrite {
		headerName = "Content-Profile"
	}
	requested := strings.TrimSpace(headers[headerName])
	if requested == "" {
		return s.cfg.API.DBSchemas[0], nil
	}
	for _, name := range s.cfg.API.DBSchemas {
		if name == requested {
			return requested, nil
		}
	}
	return "", &schema.UnacceptableSchemaError{Schema: requested}
}

func isWriteMethod(m parser.Method) bool {
	return m == parser.MethodPost || m == parser.MethodPatch || m == parser.MethodPut || m == parser.MethodDelete
}

// payloadColumnCount reports how many top-level keys an Update's JSON
// payload named, distinguishing "nothing to set" from "no row
// matched" for response.Input.UpdateColumnsEmpty (spec §4.5).
func payloadColumnCount(body []byte) int {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(body, &row); err != nil {
		return 0
	}
	return len(row)
}

func methodFromFiber(m string) parser.Method { return parser.Method(m) }
