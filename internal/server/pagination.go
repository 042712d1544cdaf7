// Pagination folds three different HTTP surfaces into the parser's
// plain limit/offset query keys before Input ever reaches parser.Parse
// (internal/parser has no concept of a Range header at all — this is
// entirely the server's job): the `Range`/`Range-Unit` headers (spec
// §6's "Headers honored"), the config-driven default/max page size
// (spec §4.1), and the hard db_max_rows cap threaded through as
// parser.Input.MaxRows.
package server

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/sqlgateway/sqlgateway/internal/config"
)

// applyRangeHeader rewrites a `Range: lower-upper` header (only
// recognized alongside `Range-Unit: items`, per spec §6) into
// limit/offset query values, unless the request already named its own
// limit/offset query parameters, which take precedence.
func applyRangeHeader(q url.Values, rangeUnit, rangeHeader string) {
	if rangeHeader == "" || (rangeUnit != "" && rangeUnit != "items") {
		return
	}
	if q.Get("limit") != "" || q.Get("offset") != "" {
		return
	}
	parts := strings.SplitN(rangeHeader, "-", 2)
	if len(parts) != 2 {
		return
	}
	lower, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	upper, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || upper < lower {
		return
	}
	q.Set("offset", strconv.Itoa(lower))
	q.Set("limit", strconv.Itoa(upper-lower+1))
}

// applyDefaultPageSize fills in api.default_page_size when the caller
// named neither a Range header nor a limit, so an unbounded-looking
// request still gets the configured page size rather than every row.
func applyDefaultPageSize(q url.Values, cfg config.APIConfig) {
	if q.Get("limit") != "" {
		return
	}
	if cfg.DefaultPageSize > 0 {
		q.Set("limit", strconv.Itoa(cfg.DefaultPageSize))
	}
}

// maxRowsFor computes parser.Input.MaxRows: the tightest of
// api.max_page_size and api.db_max_rows, whichever is configured
// (a -1/0 value means "no cap" for that one knob specifically).
func maxRowsFor(cfg config.APIConfig) *int {
	limit := -1
	if cfg.MaxPageSize > 0 {
		limit = cfg.MaxPageSize
	}
	if cfg.DBMaxRows > 0 && (limit == -1 || cfg.DBMaxRows < limit) {
		limit = cfg.DBMaxRows
	}
	if limit == -1 {
		return nil
	}
	return &limit
}
