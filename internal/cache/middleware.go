package cache

import (
	"github.com/valyala/fasthttp"
)

// policyContextKey is the fasthttp user-value key a handler sets to declare
// its response's cache intent; the global middleware reads it after the
// handler returns (§4.9: "extracts the declared policy from response
// extensions").
const policyContextKey = "dsrs_cache_policy"

// SetPolicy attaches p to ctx for the middleware to render into headers.
func SetPolicy(ctx *fasthttp.RequestCtx, p Policy) {
	ctx.SetUserValue(policyContextKey, p)
}

// Middleware wraps next, applying the declared policy's headers after the
// handler runs. Absent a declared policy, NoCaching is assumed (§4.9).
func Middleware(cfg Config, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)

		assertNoConflictingHeaders(ctx)

		p, ok := ctx.UserValue(policyContextKey).(Policy)
		if !ok {
			p = NoCachingPolicy()
		}
		applyHeaders(ctx, p.Render(cfg))
	}
}

func applyHeaders(ctx *fasthttp.RequestCtx, h Headers) {
	if h.CacheControl != "" {
		ctx.Response.Header.Set("Cache-Control", h.CacheControl)
	}
	if h.SurrogateControl != "" {
		ctx.Response.Header.Set("Surrogate-Control", h.SurrogateControl)
	}
	if h.SurrogateKey != "" {
		ctx.Response.Header.Set("Surrogate-Key", h.SurrogateKey)
	}
}

// assertNoConflictingHeaders checks that a handler did not set cache headers
// itself, nor carry an ETag on a non-success/non-304 status (§4.9). It
// panics rather than silently passing through a bug. Middleware runs it on
// every response; there is no build flag or config switch that turns it off.
func assertNoConflictingHeaders(ctx *fasthttp.RequestCtx) {
	for _, name := range []string{"Cache-Control", "Surrogate-Control", "Surrogate-Key"} {
		if len(ctx.Response.Header.Peek(name)) > 0 {
			panic("cache: handler set " + name + " itself; declare intent via cache.SetPolicy instead")
		}
	}
	status := ctx.Response.StatusCode()
	hasETag := len(ctx.Response.Header.Peek("ETag")) > 0
	if hasETag && status != fasthttp.StatusOK && status != fasthttp.StatusNotModified {
		panic("cache: response carries an ETag on a non-success/non-304 status")
	}
}
