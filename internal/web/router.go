// Package web implements the HTTP surface (§6.2): routing, cache-policy
// middleware, the rustdoc HTML rewrite pipeline, and the admin rebuild
// write endpoint.
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package web

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/rust-lang/docs.rs-sub002/internal/cache"
)

// route is one method+pattern pair. Patterns use "{name}" placeholders and
// an optional trailing "{*rest}" catch-all (§6.2).
type route struct {
	method  string
	pattern string
	handler fasthttp.RequestHandler
}

// Router is a minimal method+path matcher; the handler set is small and
// fixed at startup so no third-party router is needed beyond fasthttp
// itself.
type Router struct {
	routes []route
	log    zerolog.Logger
}

func NewRouter(log zerolog.Logger) *Router {
	return &Router{log: log.With().Str("component", "web_router").Logger()}
}

func (r *Router) Handle(method, pattern string, h fasthttp.RequestHandler) {
	r.routes = append(r.routes, route{method: method, pattern: pattern, handler: h})
}

func (r *Router) ServeHTTP(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())

	for _, rt := range r.routes {
		if rt.method != method {
			continue
		}
		if params, ok := match(rt.pattern, path); ok {
			for k, v := range params {
				ctx.SetUserValue(k, v)
			}
			rt.handler(ctx)
			return
		}
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
	ctx.SetBodyString(`{"title":"Not Found","message":"no route matches this path"}`)
}

// match compares pattern against path, extracting "{name}" segments. A
// final "{*name}" segment captures the remainder of the path including
// slashes.
func match(pattern, path string) (map[string]string, bool) {
	pSegs := strings.Split(strings.Trim(pattern, "/"), "/")
	segs := strings.Split(strings.Trim(path, "/"), "/")

	params := map[string]string{}
	for i, ps := range pSegs {
		if strings.HasPrefix(ps, "{*") && strings.HasSuffix(ps, "}") {
			name := ps[2 : len(ps)-1]
			params[name] = strings.Join(segs[i:], "/")
			return params, true
		}
		if i >= len(segs) {
			return nil, false
		}
		if strings.HasPrefix(ps, "{") && strings.HasSuffix(ps, "}") {
			params[ps[1:len(ps)-1]] = segs[i]
			continue
		}
		if ps != segs[i] {
			return nil, false
		}
	}
	if len(segs) != len(pSegs) {
		return nil, false
	}
	return params, true
}

// Param reads a path parameter set by the router.
func Param(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

// WithCache is a small helper handlers use to declare a cache policy inline.
func WithCache(p cache.Policy, h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		cache.SetPolicy(ctx, p)
		h(ctx)
	}
}
