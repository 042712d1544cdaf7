// buildEnv renders the JSON object spec §4.4 calls "the environment
// seen by SQL": a flat map of well-known dotted keys
// (request.method, request.path, search_path, request.headers,
// request.cookies, request.get, request.jwt.claims, role) that
// ast.EnvVar filters and injected policies read back out via
// `claims->>'role'`-style lookups of these top-level keys
// (internal/formatter/condition.go's FilterEnv case). Grounded on the
// teacher's internal/middleware/rls.go, which sets the same
// information as transaction-scoped GUCs instead of a JSON parameter;
// here it travels as one json-typed bind value per the env CTE design
// (spec §4.4), and a legacy flat-key mode merges each header/cookie/
// claim in at the top level too, matching PostgREST's request.header.*
// / request.cookie.* / jwt claim GUC naming.
package server

import (
	"encoding/json"
	"net/url"

	"github.com/sqlgateway/sqlgateway/internal/parser"
)

func buildEnv(req *parser.ApiRequest, rawQuery url.Values, claims map[string]any, legacy bool) string {
	get := make(map[string]string, len(rawQuery))
	for k, v := range rawQuery {
		if len(v) > 0 {
			get[k] = v[0]
		}
	}

	env := map[string]any{
		"role":               req.Role,
		"request.method":     string(req.Method),
		"request.path":       req.Path,
		"search_path":        req.SchemaName,
		"request.headers":    req.Headers,
		"request.cookies":    req.Cookies,
		"request.get":        get,
		"request.jwt.claims": claims,
	}

	if legacy {
		for k, v := range req.Headers {
			env["request.header."+k] = v
		}
		for k, v := range req.Cookies {
			env["request.cookie."+k] = v
		}
		for k, v := range claims {
			env["request.jwt.claim."+k] = v
		}
	}

	b, err := json.Marshal(env)
	if err != nil {
		return "{}"
	}
	return string(b)
}
