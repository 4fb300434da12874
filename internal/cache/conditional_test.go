package cache

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/valyala/fasthttp"
)

var _ = Describe("ServeConditional", func() {
	etags := ETagMap{"/-/static/vendored.css": `"abc123"`}
	cfg := Config{CacheInvalidatableResponses: true}

	It("passes through when the path has no known ETag", func() {
		ctx := &fasthttp.RequestCtx{}
		handled := ServeConditional(ctx, etags, "/-/static/unknown.css", cfg)
		Expect(handled).To(BeFalse())
	})

	It("sets the ETag and does not short-circuit when If-None-Match is absent", func() {
		ctx := &fasthttp.RequestCtx{}
		handled := ServeConditional(ctx, etags, "/-/static/vendored.css", cfg)
		Expect(handled).To(BeFalse())
		Expect(string(ctx.Response.Header.Peek("ETag"))).To(Equal(`"abc123"`))
	})

	It("short-circuits to 304 and strips Content-Type on a matching If-None-Match", func() {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.Set("If-None-Match", `"abc123"`)
		ctx.Response.Header.Set("Content-Type", "text/css")

		handled := ServeConditional(ctx, etags, "/-/static/vendored.css", cfg)
		Expect(handled).To(BeTrue())
		Expect(ctx.Response.StatusCode()).To(Equal(fasthttp.StatusNotModified))
		Expect(ctx.Response.Header.Peek("Content-Type")).To(BeEmpty())
		Expect(string(ctx.Response.Header.Peek("ETag"))).To(Equal(`"abc123"`))
	})

	It("does not short-circuit on a stale If-None-Match", func() {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.Set("If-None-Match", `"stale"`)
		handled := ServeConditional(ctx, etags, "/-/static/vendored.css", cfg)
		Expect(handled).To(BeFalse())
	})
})

var _ = Describe("Middleware", func() {
	cfg := Config{CacheInvalidatableResponses: true, StaleWhileRevalidateSeconds: 60}

	It("applies NoCaching by default when a handler declares no policy", func() {
		ctx := &fasthttp.RequestCtx{}
		handler := Middleware(cfg, func(ctx *fasthttp.RequestCtx) {})
		handler(ctx)
		Expect(string(ctx.Response.Header.Peek("Cache-Control"))).To(Equal("max-age=0"))
	})

	It("renders the handler's declared policy", func() {
		ctx := &fasthttp.RequestCtx{}
		handler := Middleware(cfg, func(ctx *fasthttp.RequestCtx) {
			SetPolicy(ctx, ForeverInCdnAndBrowserPolicy())
		})
		handler(ctx)
		Expect(string(ctx.Response.Header.Peek("Cache-Control"))).To(Equal("public, max-age=31104000, immutable"))
	})

	It("panics when a handler sets Cache-Control itself instead of declaring intent", func() {
		ctx := &fasthttp.RequestCtx{}
		handler := Middleware(cfg, func(ctx *fasthttp.RequestCtx) {
			ctx.Response.Header.Set("Cache-Control", "public")
		})
		Expect(func() { handler(ctx) }).To(Panic())
	})

	It("panics when a handler sets an ETag on a non-success, non-304 status", func() {
		ctx := &fasthttp.RequestCtx{}
		handler := Middleware(cfg, func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.Response.Header.Set("ETag", `"x"`)
		})
		Expect(func() { handler(ctx) }).To(Panic())
	})
})
