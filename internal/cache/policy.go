// Package cache implements the Cache Policy Engine (C9): mapping
// handler-declared intent to response headers and surrogate keys (§4.9).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package cache

import (
	"strconv"

	"github.com/rust-lang/docs.rs-sub002/internal/surrogate"
)

// Kind is the tagged-enum discriminant handlers declare (§4.9 table).
type Kind int

const (
	NoCaching Kind = iota
	NoStoreMustRevalidate
	ShortInCdnAndBrowser
	ForeverInCdnAndBrowser
	ForeverInCdn
	ForeverInCdnAndStaleInBrowser
)

// Policy is the value a handler attaches to its response extensions; Keys is
// only meaningful for the two CDN-keyed variants.
type Policy struct {
	Kind Kind
	Keys []surrogate.Key
}

func NoCachingPolicy() Policy                   { return Policy{Kind: NoCaching} }
func NoStoreMustRevalidatePolicy() Policy        { return Policy{Kind: NoStoreMustRevalidate} }
func ShortInCdnAndBrowserPolicy() Policy         { return Policy{Kind: ShortInCdnAndBrowser} }
func ForeverInCdnAndBrowserPolicy() Policy       { return Policy{Kind: ForeverInCdnAndBrowser} }
func ForeverInCdnPolicy(keys []surrogate.Key) Policy { return Policy{Kind: ForeverInCdn, Keys: keys} }
func ForeverInCdnAndStaleInBrowserPolicy(keys []surrogate.Key) Policy {
	return Policy{Kind: ForeverInCdnAndStaleInBrowser, Keys: keys}
}

// Headers is the rendered output: header name -> value, in a stable order
// for deterministic test assertions.
type Headers struct {
	CacheControl    string
	SurrogateControl string
	SurrogateKey    string
}

// Config is the subset of process config §4.9 reads.
type Config struct {
	CacheInvalidatableResponses bool
	StaleWhileRevalidateSeconds int
}

// Render maps p to response headers given cfg. If cfg.CacheInvalidatableResponses
// is false, the two CDN-keyed policies degrade to NoCaching, byte-identical
// to NoCachingPolicy().Render (§8 testable property).
func (p Policy) Render(cfg Config) Headers {
	kind := p.Kind
	if !cfg.CacheInvalidatableResponses && (kind == ForeverInCdn || kind == ForeverInCdnAndStaleInBrowser) {
		kind = NoCaching
	}

	switch kind {
	case NoCaching:
		return Headers{CacheControl: "max-age=0"}
	case NoStoreMustRevalidate:
		return Headers{CacheControl: "no-cache, no-store, must-revalidate, max-age=0"}
	case ShortInCdnAndBrowser:
		return Headers{CacheControl: "public, max-age=60"}
	case ForeverInCdnAndBrowser:
		return Headers{CacheControl: "public, max-age=31104000, immutable"}
	case ForeverInCdn:
		return Headers{
			CacheControl:     "max-age=0",
			SurrogateControl: "max-age=31536000",
			SurrogateKey:     keysHeader(p.Keys),
		}
	case ForeverInCdnAndStaleInBrowser:
		return Headers{
			CacheControl:     "stale-while-revalidate=" + strconv.Itoa(cfg.StaleWhileRevalidateSeconds),
			SurrogateControl: "max-age=31536000",
			SurrogateKey:     keysHeader(p.Keys),
		}
	default:
		return Headers{CacheControl: "max-age=0"}
	}
}

// keysHeader always includes the global "all" key, per the §3 invariant
// that every cacheable response carries it.
func keysHeader(keys []surrogate.Key) string {
	set := surrogate.NewSet()
	for _, k := range keys {
		set.Add(k)
	}
	allKey, _ := surrogate.NewKey(surrogate.AllKey)
	set.Add(allKey)
	return set.Header()
}
