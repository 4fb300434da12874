// Package metrics centralizes the prometheus registrations shared across
// the Build Queue, CDN Purger, HTML Rewrite Pipeline, and Content Store
// (§9: metrics exporters are interfaces the core feeds, not owned by it).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BatchPurgeErrors counts failed CDN purge requests (§4.4), whether the
	// control plane answered non-2xx or the request failed in transport:
	// purges never retry, so this is the only signal an operator has that
	// cache state may be stale.
	BatchPurgeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dsrs_batch_purge_errors_total",
		Help: "Count of CDN purge requests that failed (non-2xx response or transport error).",
	})

	// CDNRateLimitRemaining mirrors the remote cache control plane's last
	// reported remaining-requests quota.
	CDNRateLimitRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dsrs_cdn_rate_limit_remaining",
		Help: "Remaining CDN purge requests in the current rate-limit window.",
	})

	// CDNRateLimitResetSeconds mirrors the remote cache control plane's last
	// reported seconds-until-reset.
	CDNRateLimitResetSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dsrs_cdn_rate_limit_reset_seconds",
		Help: "Seconds until the current CDN rate-limit window resets.",
	})

	// FailedCratesCount counts queue entries removed for exceeding the
	// configured attempt cap (§4.5 step 6).
	FailedCratesCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dsrs_failed_crates_total",
		Help: "Count of queue entries dropped after exceeding the build attempt cap.",
	})

	// HTMLRewriteOOMs counts render-pool jobs killed for exceeding the
	// rewrite memory cap (§4.8).
	HTMLRewriteOOMs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dsrs_html_rewrite_ooms_total",
		Help: "Count of HTML rewrite jobs aborted for exceeding the memory cap.",
	})

	// QueuePendingCount reports the current queue depth, refreshed by
	// whichever component last called queue.PendingCount.
	QueuePendingCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dsrs_queue_pending_count",
		Help: "Last observed count of pending build queue entries.",
	})
)

// MustRegister registers every metric declared in this package against reg.
// Called once at process startup.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		BatchPurgeErrors,
		CDNRateLimitRemaining,
		CDNRateLimitResetSeconds,
		FailedCratesCount,
		HTMLRewriteOOMs,
		QueuePendingCount,
	)
}
