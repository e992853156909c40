// Package api implements the HTTP surface of spec.md §6.1: registry
// mutation/query endpoints, checkNow, history, and health, over fasthttp.
package api

import (
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/common/httputil"
	"github.com/watchvane/sentinel/internal/common/requestid"
)

// requestIDHeader is the header every response carries, echoing an
// inbound request id or minting one, the way the teacher's
// handler_har_render.go tags a render request for cross-log correlation.
const requestIDHeader = "X-Request-Id"

// paramRoute is a registered path containing one or more ":name" segments,
// matched positionally against the request path.
type paramRoute struct {
	method   string
	segments []string
	handler  fasthttp.RequestHandler
}

// Router is a method+path map in the shape of EdgeComet-engine's
// InternalServer, extended with a minimal ":id"-segment matcher — the
// teacher's router only ever needs exact-path lookups; this one needs
// exactly one path parameter kind (/urls/:id, /history/:id), so the
// dispatch loop gained a single positional-segment comparison rather than
// pulling in a path-routing library no pack example uses for fasthttp.
type Router struct {
	exact  map[string]map[string]fasthttp.RequestHandler
	params []paramRoute
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		exact:  make(map[string]map[string]fasthttp.RequestHandler),
		logger: logger,
	}
}

// Handle registers a handler for method+path. A path containing ":"
// segments (e.g. "/urls/:id/check") is matched positionally at request
// time; all other paths use an O(1) exact lookup.
func (r *Router) Handle(method, path string, handler fasthttp.RequestHandler) {
	if strings.Contains(path, ":") {
		r.params = append(r.params, paramRoute{
			method:   method,
			segments: splitPath(path),
			handler:  handler,
		})
		return
	}
	if r.exact[method] == nil {
		r.exact[method] = make(map[string]fasthttp.RequestHandler)
	}
	r.exact[method][path] = handler
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Handler returns the fasthttp entrypoint. Every request is tagged with a
// request id, either echoed from an inbound X-Request-Id header or minted
// fresh, and logged at debug level before dispatch.
func (r *Router) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		reqID := string(ctx.Request.Header.Peek(requestIDHeader))
		if reqID == "" {
			reqID = requestid.GenerateRequestID("api")
		}
		ctx.SetUserValue("requestId", reqID)
		ctx.Response.Header.Set(requestIDHeader, reqID)

		method := string(ctx.Method())
		path := string(ctx.Path())
		r.logger.Debug("request", zap.String("requestId", reqID), zap.String("method", method), zap.String("path", path))

		if methodRoutes, ok := r.exact[method]; ok {
			if handler, ok := methodRoutes[path]; ok {
				handler(ctx)
				return
			}
		}

		reqSegments := splitPath(path)
		methodMismatch := false
		for _, pr := range r.params {
			params, ok := matchSegments(pr.segments, reqSegments)
			if !ok {
				continue
			}
			if pr.method != method {
				methodMismatch = true
				continue
			}
			for k, v := range params {
				ctx.SetUserValue(k, v)
			}
			pr.handler(ctx)
			return
		}

		if methodMismatch {
			httputil.JSONError(ctx, "method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		httputil.JSONError(ctx, "not found", fasthttp.StatusNotFound)
	}
}

// matchSegments compares a registered segment pattern against a request
// path's segments, binding ":name" segments into the returned map.
func matchSegments(pattern, req []string) (map[string]string, bool) {
	if len(pattern) != len(req) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			params[seg[1:]] = req[i]
			continue
		}
		if seg != req[i] {
			return nil, false
		}
	}
	return params, true
}
