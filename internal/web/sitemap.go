package web

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/rust-lang/docs.rs-sub002/internal/cache"
)

// maxSitemapURLs and maxSitemapBytes bound a single letter-partition
// (§6.3); exceeding either is an error-level log entry, not a hard failure
// of the response, since it is a data-quality signal for operators rather
// than a request failure.
const (
	maxSitemapURLs  = 50000
	maxSitemapBytes = 50 << 20
)

// CrateLister is the minimal catalog query the sitemap needs: every crate
// name whose first byte (lowercased) is letter.
type CrateLister interface {
	CrateNamesByLetter(ctx context.Context, letter byte) ([]string, error)
}

// SitemapIndexHandler serves `/sitemap.xml`: an index of the 26
// letter-partitioned sitemaps (§6.2).
func SitemapIndexHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		cache.SetPolicy(ctx, cache.ForeverInCdnAndBrowserPolicy())
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		b.WriteString(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
		for c := byte('a'); c <= 'z'; c++ {
			b.WriteString(`<sitemap><loc>/-/sitemap/`)
			b.WriteByte(c)
			b.WriteString(`/sitemap.xml</loc></sitemap>`)
		}
		b.WriteString(`</sitemapindex>`)
		ctx.SetContentType("application/xml")
		ctx.SetBodyString(b.String())
	}
}

// LetterSitemapHandler serves `/-/sitemap/{a..z}/sitemap.xml`, 404 on any
// other letter, enforcing the URL-count and byte-size bounds of §6.3.
func LetterSitemapHandler(lister CrateLister, log zerolog.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		letter := Param(ctx, "letter")
		if len(letter) != 1 || letter[0] < 'a' || letter[0] > 'z' {
			cache.SetPolicy(ctx, cache.NoCachingPolicy())
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		cache.SetPolicy(ctx, cache.ForeverInCdnAndBrowserPolicy())

		names, err := lister.CrateNamesByLetter(ctx, letter[0])
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}

		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
		urlCount := 0
		for _, name := range names {
			b.WriteString(`<url><loc>/crate/`)
			b.WriteString(name)
			b.WriteString(`</loc></url>`)
			urlCount++
		}
		b.WriteString(`</urlset>`)
		body := b.String()

		if urlCount > maxSitemapURLs || len(body) > maxSitemapBytes {
			log.Error().
				Str("letter", string(letter)).
				Int("url_count", urlCount).
				Int("byte_count", len(body)).
				Msg("sitemap partition exceeded bounds")
		}

		ctx.SetContentType("application/xml")
		ctx.SetBodyString(body)
	}
}
