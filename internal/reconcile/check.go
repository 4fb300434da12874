package reconcile

import (
	"context"

	"github.com/pkg/errors"
)

// CheckCategory is one of the five diff categories run_check produces
// (§4.6 Full-consistency mode).
type CheckCategory int

const (
	CrateNotInIndex CheckCategory = iota
	CrateNotInDb
	ReleaseNotInIndex
	ReleaseNotInDb
	ReleaseYank
)

// IndexSnapshot is the minimal view of upstream state the full-consistency
// diff needs: every (crate, version) pair known to the index, plus each
// pair's yanked state.
type IndexSnapshot struct {
	Crates   map[string]bool            // crate name -> present
	Releases map[string]map[string]bool // crate name -> version -> yanked
}

// DBSnapshot is the analogous view of local catalog state.
type DBSnapshot struct {
	Crates   map[string]bool
	Releases map[string]map[string]bool // crate name -> version -> yanked
}

// CheckResult tallies each category's count, matching the dry-run report
// contract (§4.6: "dry-run returns the count per category without side
// effects").
type CheckResult struct {
	Counts map[CheckCategory]int
}

// RunCheck diffs db against index into the five categories, then (unless
// dryRun) applies the corresponding handler for each mismatch, purging the
// affected crate's surrogate key after every successful mutation (§4.6:
// "every mutating action is followed by a C4 purge of the crate's surrogate
// key"). A handler error is logged and counted, and no purge is queued for
// that mismatch; processing continues (§4.6).
func (r *Reconciler) RunCheck(ctx context.Context, db DBSnapshot, index IndexSnapshot, dryRun bool) (CheckResult, error) {
	if db.Crates == nil || index.Crates == nil {
		return CheckResult{}, ErrDiffUnavailable
	}
	result := CheckResult{Counts: make(map[CheckCategory]int)}

	for name := range db.Crates {
		if !index.Crates[name] {
			result.Counts[CrateNotInIndex]++
			if !dryRun {
				if err := r.handleCrateDeleted(ctx, Change{Name: name}); err != nil {
					r.log.Error().Err(err).Str("crate", name).Msg("run_check: crate_not_in_index handler failed")
				} else {
					r.purger.QueueCrateInvalidation(ctx, name)
				}
			}
		}
	}
	for name := range index.Crates {
		if !db.Crates[name] {
			result.Counts[CrateNotInDb]++
			// CrateNotInDb has no release version to queue against; the
			// eventual per-release Added changes (processed separately)
			// are what actually enqueues a build. This category is purely
			// observational, matching the source's diff-only semantics.
		}
	}

	for name, versions := range db.Releases {
		for version := range versions {
			if _, ok := index.Releases[name][version]; !ok {
				result.Counts[ReleaseNotInIndex]++
				if !dryRun {
					if err := r.handleVersionDeleted(ctx, Change{Name: name, Version: version}); err != nil {
						r.log.Error().Err(err).Str("crate", name).Str("version", version).Msg("run_check: release_not_in_index handler failed")
					} else {
						r.purger.QueueCrateInvalidation(ctx, name)
					}
				}
			}
		}
	}
	for name, versions := range index.Releases {
		for version, yanked := range versions {
			dbYanked, ok := db.Releases[name][version]
			if !ok {
				result.Counts[ReleaseNotInDb]++
				if !dryRun {
					if err := r.handleAdded(ctx, Change{Name: name, Version: version}); err != nil {
						r.log.Error().Err(err).Str("crate", name).Str("version", version).Msg("run_check: release_not_in_db handler failed")
					} else {
						r.purger.QueueCrateInvalidation(ctx, name)
					}
				}
				continue
			}
			if dbYanked != yanked {
				result.Counts[ReleaseYank]++
				if !dryRun {
					if err := r.store.SetYanked(ctx, name, version, yanked); err != nil {
						r.log.Error().Err(err).Str("crate", name).Str("version", version).Msg("run_check: release_yank handler failed")
					} else {
						r.purger.QueueCrateInvalidation(ctx, name)
					}
				}
			}
		}
	}

	return result, nil
}

// ErrDiffUnavailable is returned when either snapshot is nil; run_check
// requires both sides to be materialized up front since it is a full scan,
// not an incremental stream.
var ErrDiffUnavailable = errors.New("reconcile: run_check requires both db and index snapshots")
