// Package rewrite implements the HTML Rewrite Pipeline (C8): streaming
// transformation of upstream-generated HTML to inject the host site's
// chrome, bounded in memory and backed by a dedicated CPU thread pool
// (§4.8).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package rewrite

import (
	"context"

	"github.com/rust-lang/docs.rs-sub002/internal/metrics"
)

// job is one unit of work submitted to the render pool.
type job struct {
	ctx    context.Context
	fn     func() error
	result chan error
}

// Pool is a fixed-size CPU thread pool dedicated to HTML rewriting,
// separate from the I/O scheduler driving request handling (§4.8, §5
// Scheduling). Its size comes from config.RewritePoolSize.
type Pool struct {
	jobs chan *job
}

// NewPool starts size workers pulling from an unbuffered submission channel;
// submission itself is the backpressure point excess requests wait at
// (§4.8 Concurrency contract).
func NewPool(size int) *Pool {
	p := &Pool{jobs: make(chan *job)}
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for j := range p.jobs {
		select {
		case <-j.ctx.Done():
			// The caller dropped its future before this job started
			// running; shed the load rather than doing wasted work
			// (§4.8: "if the caller drops the future before the job
			// starts, the job is skipped").
			j.result <- j.ctx.Err()
			continue
		default:
		}
		j.result <- j.fn()
	}
}

// Submit enqueues fn and returns a channel that receives its error (or
// ctx.Err() if fn never got to run). Submission blocks until a worker is
// free or ctx is cancelled, which is precisely how "the render pool can be
// smaller than the number of in-flight requests" manifests as backpressure
// (§4.8).
func (p *Pool) Submit(ctx context.Context, fn func() error) <-chan error {
	result := make(chan error, 1)
	j := &job{ctx: ctx, fn: fn, result: result}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		result <- ctx.Err()
	}
	return result
}

// countOOM is a small seam so tests can assert the metric without a global
// prometheus registry.
func countOOM() {
	metrics.HTMLRewriteOOMs.Inc()
}
