package web

import (
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/rust-lang/docs.rs-sub002/internal/cache"
)

// RegisterRoutes wires the HTTP surface named in §6.2. Out-of-scope
// collaborators (template rendering, CLI dispatch) are not implemented
// here; routes that would depend on them are limited to what this core can
// serve directly: static assets, sitemaps, crate/version lookups, the
// rustdoc rewrite pipeline, and the admin rebuild write endpoint.
func RegisterRoutes(r *Router, deps *Deps, etags cache.ETagMap, log zerolog.Logger) {
	redirect := func(target string) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			cache.SetPolicy(ctx, cache.ForeverInCdnAndBrowserPolicy())
			ctx.Redirect(target, fasthttp.StatusMovedPermanently)
		}
	}
	r.Handle(fasthttp.MethodGet, "/favicon.ico", redirect("/-/static/favicon.ico"))
	r.Handle(fasthttp.MethodGet, "/robots.txt", redirect("/-/static/robots.txt"))
	r.Handle(fasthttp.MethodGet, "/opensearch.xml", redirect("/-/static/opensearch.xml"))

	r.Handle(fasthttp.MethodGet, "/-/static/{*path}", StaticHandler(etags, deps.CacheCfg))

	r.Handle(fasthttp.MethodGet, "/sitemap.xml", SitemapIndexHandler())
	r.Handle(fasthttp.MethodGet, "/-/sitemap/{letter}/sitemap.xml", LetterSitemapHandler(deps.Catalog, log))

	r.Handle(fasthttp.MethodGet, "/crate/{name}", CrateDetailsHandler(deps))
	r.Handle(fasthttp.MethodGet, "/crate/{name}/{version}", CrateDetailsHandler(deps))

	r.Handle(fasthttp.MethodPost, "/crate/{name}/{version}/rebuild", RebuildHandler(deps))

	r.Handle(fasthttp.MethodGet, "/{name}", RustdocHandler(deps))
	r.Handle(fasthttp.MethodGet, "/{name}/{version}", RustdocHandler(deps))
	r.Handle(fasthttp.MethodGet, "/{name}/{version}/{target}", RustdocHandler(deps))
	r.Handle(fasthttp.MethodGet, "/{name}/{version}/{target}/{*path}", RustdocHandler(deps))
}
