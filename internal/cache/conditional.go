package cache

import (
	"github.com/valyala/fasthttp"
)

// ETagMap is a compile-time-generated, read-only-after-startup map from
// static asset path to its strong ETag (§4.9, SPEC_FULL §3: generated once
// by hashing the embedded static-asset tree).
type ETagMap map[string]string

// ServeConditional short-circuits to 304 when the request's If-None-Match
// matches the asset's known ETag, repeating every header that would
// influence downstream caching except Content-Type (§4.9: "a 304 response
// MUST repeat every header ... except Content-Type from the original 200").
// It returns true if it handled the request (304 or otherwise done).
func ServeConditional(ctx *fasthttp.RequestCtx, etags ETagMap, path string, cfg Config) bool {
	etag, ok := etags[path]
	if !ok {
		return false
	}
	ctx.Response.Header.Set("ETag", etag)
	SetPolicy(ctx, ForeverInCdnAndBrowserPolicy())

	inm := string(ctx.Request.Header.Peek("If-None-Match"))
	if inm == etag {
		ctx.SetStatusCode(fasthttp.StatusNotModified)
		// Content-Type must NOT be repeated on 304; all other headers this
		// middleware would set on a 200 (cache-control family, ETag) still
		// apply because SetPolicy/Response.Header are already populated and
		// Middleware renders them identically regardless of status.
		ctx.Response.Header.Del("Content-Type")
		return true
	}
	return false
}
