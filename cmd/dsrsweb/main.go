// Command dsrsweb serves the HTTP surface (§6.2): static assets, sitemaps,
// crate/version pages, the rustdoc HTML rewrite pipeline, and the admin
// rebuild write endpoint.
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package main

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/rust-lang/docs.rs-sub002/internal/cache"
	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
	"github.com/rust-lang/docs.rs-sub002/internal/config"
	dsrsmetrics "github.com/rust-lang/docs.rs-sub002/internal/metrics"
	"github.com/rust-lang/docs.rs-sub002/internal/queue"
	"github.com/rust-lang/docs.rs-sub002/internal/rewrite"
	"github.com/rust-lang/docs.rs-sub002/internal/storage"
	"github.com/rust-lang/docs.rs-sub002/internal/web"
)

func main() {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("service", "dsrsweb").Logger()

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	reg := prometheus.NewRegistry()
	dsrsmetrics.MustRegister(reg)

	if cfg.Database == nil {
		log.Fatal().Msg("dsrsweb requires DOCSRS_DATABASE_URL")
	}
	catStore, err := catalog.Open(cfg.Database.ConnString, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Fatal().Err(err).Msg("open catalog database")
	}
	svcCfg := catalog.NewPostgresServiceConfig(catStore.DB())

	if cfg.Storage == nil {
		log.Fatal().Msg("dsrsweb requires a storage backend")
	}
	backend, err := newStorageBackend(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage backend")
	}
	store := storage.NewStore(backend)

	var buildQueue *queue.Queue
	if cfg.BuildQueue != nil {
		buildQueue = queue.New(catStore.DB(), svcCfg, cfg.BuildQueue.BuildAttempts, cfg.BuildQueue.DelayBetweenAttempts, cfg.BuildQueue.PriorityManualFromCrate)
	}

	pool := rewrite.NewPool(cfg.RewritePoolSize)

	etags, err := web.BuildStaticETags()
	if err != nil {
		log.Fatal().Err(err).Msg("build static asset etag map")
	}

	deps := &web.Deps{
		Store:          store,
		Catalog:        catStore,
		Queue:          buildQueue,
		RewritePool:    pool,
		CacheCfg:       cache.Config{CacheInvalidatableResponses: cfg.CacheInvalidatableResponses, StaleWhileRevalidateSeconds: cfg.CacheControlStaleWhileRevalidate},
		RewriteMemCap:  cfg.RewriteMemoryCap,
		RewriteChanCap: cfg.RewriteChannelCap,
		RebuildSecret:  cfg.AdminRebuildSecret,
		Log:            log,
	}

	router := web.NewRouter(log)
	web.RegisterRoutes(router, deps, etags, log)

	handler := cache.Middleware(deps.CacheCfg, router.ServeHTTP)

	addr := os.Getenv("DOCSRS_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("listening")
	if err := server.ListenAndServe(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func newStorageBackend(sc *config.StorageConfig) (storage.Backend, error) {
	switch sc.Backend {
	case "s3":
		return storage.NewS3Backend(sc.S3Bucket, sc.S3Region, sc.S3Endpoint)
	default:
		return storage.NewFSBackend(sc.FSRoot), nil
	}
}
