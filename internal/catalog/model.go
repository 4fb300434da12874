// Package catalog implements the crate/release/build/queue data model (§3)
// and the singleton ServiceConfig namespace that replaces the source's
// scattered global mutable state (§9).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package catalog

import (
	"strings"
	"time"
)

// BuildStatus mirrors the Build.status enum (§3).
type BuildStatus int

const (
	BuildInProgress BuildStatus = iota
	BuildSuccess
	BuildFailure
)

func (s BuildStatus) String() string {
	switch s {
	case BuildInProgress:
		return "in_progress"
	case BuildSuccess:
		return "success"
	case BuildFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// CompressionAlgorithm is the closed set used by Content Store and
// compression_rels rows (§4.1).
type CompressionAlgorithm int

const (
	CompressionNone CompressionAlgorithm = iota
	CompressionZstd
	CompressionBzip2
	CompressionGzip
)

func (a CompressionAlgorithm) Extension() string {
	switch a {
	case CompressionZstd:
		return ".zst"
	case CompressionBzip2:
		return ".bz2"
	case CompressionGzip:
		return ".gz"
	default:
		return ""
	}
}

func (a CompressionAlgorithm) String() string {
	switch a {
	case CompressionZstd:
		return "zstd"
	case CompressionBzip2:
		return "bzip2"
	case CompressionGzip:
		return "gzip"
	default:
		return "none"
	}
}

// Crate is unique by normalized lowercase name (§3).
type Crate struct {
	ID              int64
	Name            string
	LatestVersionID *int64
}

// NormalizeCrateName lowercases and validates crate-name length, matching the
// "65 bytes fails" boundary case from §8.
func NormalizeCrateName(name string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return "", &ValidationError{Field: "name", Reason: "empty"}
	}
	if len(lower) > 64 {
		return "", &ValidationError{Field: "name", Reason: "longer than 64 bytes"}
	}
	return lower, nil
}

// ValidationError is a typed validation failure (§8 boundary cases).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Release is unique by (crate_id, version) (§3).
type Release struct {
	ID             int64
	CrateID        int64
	Name           string
	Version        string
	Targets        []string
	DefaultTarget  string
	Yanked         bool
	RustdocStatus  bool
	IsLibrary      bool
	ArchiveStorage bool
	Compressions   []CompressionAlgorithm
	RepositoryID   *int64
	RustdocSize    int64
	SourceSize     int64
}

// Build belongs to a Release; ordered by ID DESC gives attempt history (§3).
type Build struct {
	ID              int64
	ReleaseID       int64
	Started         time.Time
	Finished        *time.Time
	Status          BuildStatus
	RustcVersion    string
	ToolchainVer    string
	Errors          string
	OutputBlobKey   string
}

// ServiceConfigName enumerates the only keys components may read/write in the
// singleton config namespace (§9: "Components never read shared statics").
type ServiceConfigName string

const (
	ConfigQueueLocked            ServiceConfigName = "queue_locked"
	ConfigLastSeenIndexReference ServiceConfigName = "last_seen_index_reference"
	ConfigToolchain              ServiceConfigName = "toolchain"
)
