// Package cdn implements the CDN Purger (C4): batched, best-effort
// invalidation against a remote cache control plane (§4.4).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rust-lang/docs.rs-sub002/internal/metrics"
	"github.com/rust-lang/docs.rs-sub002/internal/surrogate"
)

// Backend is the small capability interface a CDN control plane implements
// (§9: tagged variants behind a capability interface, selected once at
// startup).
type Backend interface {
	PurgeKeys(ctx context.Context, keys []surrogate.Key) error
}

// Purger partitions an arbitrary stream of keys into batches that respect
// both the surrogate-key model's header-size limit and the backend's own
// per-request key cap, then issues one purge per batch. A purge never
// blocks the write path that triggered it and never retries (§4.4).
type Purger struct {
	backend Backend
	log     zerolog.Logger
}

func NewPurger(backend Backend, log zerolog.Logger) *Purger {
	return &Purger{backend: backend, log: log.With().Str("component", "cdn_purger").Logger()}
}

// PurgeAll drains keys into header-sized batches via surrogate.
// FromIterUntilFull (bounded by surrogate.MaxHeaderBytes only), then further
// partitions each batch into groups of at most surrogate.MaxBatchKeys — the
// backend's own per-request key cap (§4.4) — issuing one purge call per
// group. A failed group is logged and counted but does not abort remaining
// groups, nor is it surfaced to the caller (§4.4: "does not retry
// automatically and does not surface an error upstream").
func (p *Purger) PurgeAll(ctx context.Context, keys []surrogate.Key) {
	it := surrogate.NewSliceIterator(keys)
	for it.Remaining() > 0 {
		batch := surrogate.FromIterUntilFull(it)
		if batch.Len() == 0 {
			// A single oversized key can never fit; skip it so the loop
			// terminates rather than spinning forever on the same key.
			it.Next()
			continue
		}
		for _, group := range chunkKeys(batch.Keys(), surrogate.MaxBatchKeys) {
			p.purgeBatch(ctx, group)
		}
	}
}

// chunkKeys splits keys into groups of at most size, preserving order.
func chunkKeys(keys []surrogate.Key, size int) [][]surrogate.Key {
	if len(keys) == 0 {
		return nil
	}
	var groups [][]surrogate.Key
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		groups = append(groups, keys[start:end])
	}
	return groups
}

// QueueCrateInvalidation is the common single-crate purge path the Index
// Reconciler drives after every mutating action (§4.6).
func (p *Purger) QueueCrateInvalidation(ctx context.Context, crateName string) {
	key, err := surrogate.CrateKey(crateName)
	if err != nil {
		p.log.Error().Err(err).Str("crate", crateName).Msg("cannot build surrogate key for crate")
		return
	}
	p.PurgeAll(ctx, []surrogate.Key{key})
}

func (p *Purger) purgeBatch(ctx context.Context, keys []surrogate.Key) {
	if err := p.backend.PurgeKeys(ctx, keys); err != nil {
		metrics.BatchPurgeErrors.Inc()
		p.log.Error().
			Err(err).
			Int("key_count", len(keys)).
			Msg("cdn purge batch failed; accepted as eventual staleness")
	}
}

// FastlyBackend implements Backend against Fastly's surrogate-key purge API,
// the concrete CDN the source targets.
type FastlyBackend struct {
	httpClient *http.Client
	baseURL    string
	serviceID  string
	apiToken   string
}

func NewFastlyBackend(httpClient *http.Client, baseURL, serviceID, apiToken string) *FastlyBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FastlyBackend{httpClient: httpClient, baseURL: baseURL, serviceID: serviceID, apiToken: apiToken}
}

func (f *FastlyBackend) PurgeKeys(ctx context.Context, keys []surrogate.Key) error {
	set := surrogate.NewSet()
	for _, k := range keys {
		set.Add(k)
	}

	url := f.baseURL + "/service/" + f.serviceID + "/purge"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return errors.Wrap(err, "build fastly purge request")
	}
	req.Header.Set("Fastly-Key", f.apiToken)
	req.Header.Set("Surrogate-Key", set.Header())
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "fastly purge request")
	}
	defer resp.Body.Close()

	recordRateLimit(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Msg string `json:"msg"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return errors.Errorf("fastly purge returned status %d: %s", resp.StatusCode, body.Msg)
	}
	return nil
}

// recordRateLimit exports the CDN's rate-limit response headers as the two
// gauges named in the original Fastly client (§4.4, SPEC_FULL §3).
func recordRateLimit(h http.Header) {
	if v := h.Get("Fastly-RateLimit-Remaining"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			metrics.CDNRateLimitRemaining.Set(n)
		}
	}
	if v := h.Get("Fastly-RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			metrics.CDNRateLimitResetSeconds.Set(n)
		}
	}
}
