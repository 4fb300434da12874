package web

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/rust-lang/docs.rs-sub002/internal/archive"
	"github.com/rust-lang/docs.rs-sub002/internal/cache"
	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
	"github.com/rust-lang/docs.rs-sub002/internal/queue"
	"github.com/rust-lang/docs.rs-sub002/internal/rewrite"
	"github.com/rust-lang/docs.rs-sub002/internal/storage"
	"github.com/rust-lang/docs.rs-sub002/internal/surrogate"
)

// apiError is the {title, message} JSON shape every API route serializes
// errors as (§7 Propagation).
type apiError struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func writeAPIError(ctx *fasthttp.RequestCtx, status int, title, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	b, _ := jsoniter.Marshal(apiError{Title: title, Message: message})
	ctx.SetBody(b)
}

// Deps bundles the collaborators handlers need; constructed once at
// startup and closed over by each registered route.
type Deps struct {
	Store        *storage.Store
	Catalog      *catalog.Store
	Queue        *queue.Queue
	RewritePool  *rewrite.Pool
	CacheCfg     cache.Config
	RewriteMemCap int64
	RewriteChanCap int
	RebuildSecret string
	Log          zerolog.Logger
}

// StaticHandler serves `/-/static/*` with ETag + long cache, and implements
// conditional GET via If-None-Match (§6.2, §4.9).
func StaticHandler(etags cache.ETagMap, cfg cache.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		if cache.ServeConditional(ctx, etags, path, cfg) {
			return
		}
		content, err := staticFS.ReadFile("static" + strings.TrimPrefix(path, "/-/static"))
		if err != nil {
			cache.SetPolicy(ctx, cache.NoCachingPolicy())
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		cache.SetPolicy(ctx, cache.ForeverInCdnAndBrowserPolicy())
		ctx.SetBody(content)
	}
}

// CrateDetailsHandler serves `/crate/{name}[/{version}]`, keyed for CDN
// invalidation by the crate's surrogate key (§6.2).
func CrateDetailsHandler(deps *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		name := Param(ctx, "name")
		key, err := surrogate.CrateKey(name)
		if err != nil {
			writeAPIError(ctx, fasthttp.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		cache.SetPolicy(ctx, cache.ForeverInCdnPolicy([]surrogate.Key{key}))

		rel, err := deps.Catalog.GetRelease(ctx, name, Param(ctx, "version"))
		if err != nil {
			if errClassIsNotFound(err) {
				writeAPIError(ctx, fasthttp.StatusNotFound, "Crate Not Found", "no such crate or version")
				return
			}
			writeAPIError(ctx, fasthttp.StatusInternalServerError, "Internal Error", err.Error())
			return
		}
		b, _ := jsoniter.Marshal(rel)
		ctx.SetContentType("application/json")
		ctx.SetBody(b)
	}
}

// RustdocHandler serves `/{name}[/{version}[/{target}[/{*path}]]]`: it reads
// the pre-rendered HTML out of archive storage and runs it through the C8
// rewrite pipeline before streaming the response (§6.2, §4.8).
func RustdocHandler(deps *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		name := Param(ctx, "name")
		version := Param(ctx, "version")
		target := Param(ctx, "target")
		innerPath := Param(ctx, "path")
		switch {
		case innerPath != "" && target != "":
			innerPath = target + "/" + innerPath
		case target != "":
			innerPath = target + "/index.html"
		case innerPath == "":
			innerPath = "index.html"
		}

		key, err := surrogate.CrateKey(name)
		if err != nil {
			writeAPIError(ctx, fasthttp.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		cache.SetPolicy(ctx, cache.ForeverInCdnAndStaleInBrowserPolicy([]surrogate.Key{key}))

		archivePath := "rustdoc/" + name + "/" + version + ".zip"
		indexPath := archivePath + ".index"
		blob, err := archive.StreamInsideArchive(ctx, deps.Store, archivePath, indexPath, innerPath, true)
		if err != nil {
			if errClassIsNotFound(err) {
				cache.SetPolicy(ctx, cache.NoCachingPolicy())
				writeAPIError(ctx, fasthttp.StatusNotFound, "Resource Not Found", "no such rustdoc page")
				return
			}
			writeAPIError(ctx, fasthttp.StatusInternalServerError, "Internal Error", err.Error())
			return
		}
		defer blob.Body.Close()

		if !strings.HasSuffix(innerPath, ".html") {
			ctx.SetContentType(blob.Mime)
			ctx.SetBodyStream(blob.Body, int(blob.ContentLength))
			return
		}

		ctx.SetContentType("text/html; charset=utf-8")
		frag := rewrite.Fragments{
			HeadInjection: []byte(`<link rel="stylesheet" href="/-/static/vendored.css">`),
			Vendored:      []byte(`<link rel="stylesheet" href="/-/static/vendored.css">`),
		}
		ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
			if err := rewrite.RunPipeline(ctx, deps.RewritePool, blob.Body, w, frag, deps.RewriteMemCap, deps.RewriteChanCap); err != nil {
				deps.Log.Error().Err(err).Str("crate", name).Str("version", version).Msg("html rewrite pipeline failed")
			}
			_ = w.Flush()
		})
	}
}

// RebuildHandler implements `POST /crate/{name}/{version}/rebuild`: Bearer
// authorized against a configured secret using constant-time comparison
// (§6.2 Write side).
func RebuildHandler(deps *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if deps.RebuildSecret == "" {
			writeAPIError(ctx, fasthttp.StatusUnauthorized, "Unauthorized", "rebuild endpoint is not configured")
			return
		}
		auth := string(ctx.Request.Header.Peek("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, prefix)), []byte(deps.RebuildSecret)) != 1 {
			writeAPIError(ctx, fasthttp.StatusUnauthorized, "Unauthorized", "invalid or missing bearer token")
			return
		}

		name := Param(ctx, "name")
		version := Param(ctx, "version")

		rel, err := deps.Catalog.GetRelease(ctx, name, version)
		if err != nil {
			if errClassIsNotFound(err) {
				writeAPIError(ctx, fasthttp.StatusNotFound, "Version Not Found", "no such version")
				return
			}
			writeAPIError(ctx, fasthttp.StatusInternalServerError, "Internal Error", err.Error())
			return
		}
		_ = rel

		queued, err := deps.Queue.HasBuildQueued(ctx, name, version)
		if err != nil {
			writeAPIError(ctx, fasthttp.StatusInternalServerError, "Internal Error", err.Error())
			return
		}
		if queued {
			writeAPIError(ctx, fasthttp.StatusBadRequest, "Bad Request", "build already queued")
			return
		}

		if err := deps.Queue.AddCrate(ctx, name, version, 0, "manual-rebuild"); err != nil {
			writeAPIError(ctx, fasthttp.StatusInternalServerError, "Internal Error", err.Error())
			return
		}
		ctx.SetStatusCode(fasthttp.StatusCreated)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{}`)
	}
}

func errClassIsNotFound(err error) bool {
	return errors.Is(err, catalog.ErrReleaseNotFound) || errors.Is(err, catalog.ErrCrateNotFound) || errors.Is(err, storage.ErrPathNotFound)
}
