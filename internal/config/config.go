// Package config loads the process-wide configuration from the environment.
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config is the single validated, environment-loaded struct every subsystem
// is constructed from. Sub-configs are pointers: nil means "not configured",
// and the owning component must not be initialized (§6.5).
type Config struct {
	Database        *DatabaseConfig
	Storage         *StorageConfig
	CDN             *CDNConfig
	BuildQueue      *BuildQueueConfig
	RegistryAPI     *RegistryAPIConfig
	RepositoryStats *RepositoryStatsConfig

	CacheInvalidatableResponses    bool
	CacheControlStaleWhileRevalidate int

	// ReportRequestTimeouts is loaded from the environment and carried on
	// Config; nothing in this repository reads it, so it neither logs nor
	// changes response behavior.
	ReportRequestTimeouts bool

	RewritePoolSize   int
	RewriteMemoryCap  int64
	RewriteChannelCap int

	AdminRebuildSecret string
}

type DatabaseConfig struct {
	ConnString      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type StorageConfig struct {
	Backend      string // "fs" or "s3"
	FSRoot       string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	ArchiveCache string
}

type CDNConfig struct {
	Backend       string // "fastly" (only supported real backend)
	APIToken      string
	ServiceID     string
	BaseURL       string
	MaxKeysPerReq int
}

type BuildQueueConfig struct {
	BuildAttempts           int
	DelayBetweenAttempts    time.Duration
	PriorityManualFromCrate int
}

type RegistryAPIConfig struct {
	BaseURL string
	Token   string
}

type RepositoryStatsConfig struct {
	GitHubToken string
}

// Load reads Config from the process environment. Unset optional sub-configs
// are left nil rather than zero-valued, per §6.5.
func Load(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	c := &Config{
		CacheInvalidatableResponses:      boolEnv(getenv, "DOCSRS_CACHE_INVALIDATABLE", true),
		CacheControlStaleWhileRevalidate: intEnv(getenv, "DOCSRS_STALE_WHILE_REVALIDATE", 86400),
		ReportRequestTimeouts:            boolEnv(getenv, "DOCSRS_REPORT_REQUEST_TIMEOUTS", false),
		RewritePoolSize:                  intEnv(getenv, "DOCSRS_RENDER_POOL_SIZE", 4),
		RewriteMemoryCap:                 int64(intEnv(getenv, "DOCSRS_RENDER_MEMORY_CAP_BYTES", 512<<20)),
		RewriteChannelCap:                intEnv(getenv, "DOCSRS_RENDER_CHANNEL_CAP", 64),
		AdminRebuildSecret:               getenv("DOCSRS_REBUILD_TOKEN"),
	}

	if dsn := getenv("DOCSRS_DATABASE_URL"); dsn != "" {
		c.Database = &DatabaseConfig{
			ConnString:      dsn,
			MaxOpenConns:    intEnv(getenv, "DOCSRS_DB_MAX_OPEN_CONNS", 16),
			MaxIdleConns:    intEnv(getenv, "DOCSRS_DB_MAX_IDLE_CONNS", 4),
			ConnMaxLifetime: durationEnv(getenv, "DOCSRS_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		}
	}

	if backend := getenv("DOCSRS_STORAGE_BACKEND"); backend != "" {
		c.Storage = &StorageConfig{
			Backend:      backend,
			FSRoot:       getenv("DOCSRS_STORAGE_FS_ROOT"),
			S3Bucket:     getenv("DOCSRS_STORAGE_S3_BUCKET"),
			S3Region:     getenv("DOCSRS_STORAGE_S3_REGION"),
			S3Endpoint:   getenv("DOCSRS_STORAGE_S3_ENDPOINT"),
			ArchiveCache: getenv("DOCSRS_STORAGE_ARCHIVE_CACHE_DIR"),
		}
	}

	if token := getenv("DOCSRS_CDN_API_TOKEN"); token != "" {
		c.CDN = &CDNConfig{
			Backend:       "fastly",
			APIToken:      token,
			ServiceID:     getenv("DOCSRS_CDN_SERVICE_ID"),
			BaseURL:       orDefault(getenv("DOCSRS_CDN_BASE_URL"), "https://api.fastly.com"),
			MaxKeysPerReq: intEnv(getenv, "DOCSRS_CDN_MAX_KEYS_PER_REQUEST", 256),
		}
	}

	if getenv("DOCSRS_QUEUE_BUILD_ATTEMPTS") != "" {
		c.BuildQueue = &BuildQueueConfig{
			BuildAttempts:           intEnv(getenv, "DOCSRS_QUEUE_BUILD_ATTEMPTS", 5),
			DelayBetweenAttempts:    durationEnv(getenv, "DOCSRS_QUEUE_DELAY", 5*time.Minute),
			PriorityManualFromCrate: intEnv(getenv, "DOCSRS_QUEUE_PRIORITY_MANUAL_FROM_CRATES_IO", 0),
		}
	}

	if base := getenv("DOCSRS_REGISTRY_API_BASE_URL"); base != "" {
		c.RegistryAPI = &RegistryAPIConfig{BaseURL: base, Token: getenv("DOCSRS_REGISTRY_API_TOKEN")}
	}

	if gh := getenv("DOCSRS_GITHUB_TOKEN"); gh != "" {
		c.RepositoryStats = &RepositoryStatsConfig{GitHubToken: gh}
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Database != nil && c.Database.ConnString == "" {
		return fmt.Errorf("database configured but connection string is empty")
	}
	if c.Storage != nil {
		switch c.Storage.Backend {
		case "fs":
			if c.Storage.FSRoot == "" {
				return fmt.Errorf("fs storage backend requires DOCSRS_STORAGE_FS_ROOT")
			}
		case "s3":
			if c.Storage.S3Bucket == "" {
				return fmt.Errorf("s3 storage backend requires DOCSRS_STORAGE_S3_BUCKET")
			}
		default:
			return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
		}
	}
	if c.RewritePoolSize <= 0 {
		return fmt.Errorf("render pool size must be positive")
	}
	if c.RewriteChannelCap <= 0 {
		return fmt.Errorf("render channel capacity must be positive")
	}
	return nil
}

func boolEnv(getenv func(string) string, key string, def bool) bool {
	v := getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func intEnv(getenv func(string) string, key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func durationEnv(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
