// Package reconcile implements the Index Reconciler (C6): diffing the
// upstream registry index against the local catalog and emitting
// ADD/DELETE/YANK actions (§4.6).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package reconcile

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
	"github.com/rust-lang/docs.rs-sub002/internal/cdn"
	"github.com/rust-lang/docs.rs-sub002/internal/deletion"
	"github.com/rust-lang/docs.rs-sub002/internal/queue"
)

// ChangeKind is the upstream registry index's change taxonomy (§4.6).
type ChangeKind int

const (
	Added ChangeKind = iota
	AddedAndYanked
	Unyanked
	Yanked
	VersionDeleted
	CrateDeleted
)

// Change is one entry from the upstream index change stream.
type Change struct {
	Kind    ChangeKind
	Name    string
	Version string
}

// DefaultPriority is the priority new crates are queued at before any
// deprioritization of older releases.
const DefaultPriority = 0

// Reconciler wires the queue, catalog, deletion engine, and CDN purger
// together to apply index changes idempotently (§4.6).
type Reconciler struct {
	store    *catalog.Store
	cfg      catalog.ServiceConfig
	q        *queue.Queue
	del      *deletion.Engine
	purger   *cdn.Purger
	priority int // PRIORITY_MANUAL_FROM_CRATES_IO
	log      zerolog.Logger
}

func New(store *catalog.Store, cfg catalog.ServiceConfig, q *queue.Queue, del *deletion.Engine, purger *cdn.Purger, priorityManualFromCrate int, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		cfg:      cfg,
		q:        q,
		del:      del,
		purger:   purger,
		priority: priorityManualFromCrate,
		log:      log.With().Str("component", "index_reconciler").Logger(),
	}
}

// ApplyChange computes and performs the minimal local action for one index
// change, then purges the crate's surrogate key (§4.6). Every handler is
// idempotent so reprocessing the same change after a crash is safe.
func (r *Reconciler) ApplyChange(ctx context.Context, c Change) error {
	var err error
	switch c.Kind {
	case Added:
		err = r.handleAdded(ctx, c)
	case AddedAndYanked:
		if err = r.handleAdded(ctx, c); err == nil {
			err = r.store.SetYanked(ctx, c.Name, c.Version, true)
		}
	case Unyanked:
		err = r.handleYank(ctx, c, false)
	case Yanked:
		err = r.handleYank(ctx, c, true)
	case VersionDeleted:
		err = r.handleVersionDeleted(ctx, c)
	case CrateDeleted:
		err = r.handleCrateDeleted(ctx, c)
	default:
		return errors.Errorf("reconcile: unknown change kind %d", c.Kind)
	}
	if err != nil {
		return err
	}
	r.purger.QueueCrateInvalidation(ctx, c.Name)
	return nil
}

func (r *Reconciler) handleAdded(ctx context.Context, c Change) error {
	priority := DefaultPriority
	if p, ok, err := r.store.MatchDefaultPriority(ctx, c.Name); err != nil {
		return errors.Wrap(err, "match_default_priority")
	} else if ok {
		priority = p
	}
	if err := r.q.AddCrate(ctx, c.Name, c.Version, priority, ""); err != nil {
		return errors.Wrap(err, "add_crate")
	}
	if err := r.q.DeprioritizeOtherReleases(ctx, c.Name, c.Version, r.priority); err != nil {
		return errors.Wrap(err, "deprioritize_other_releases")
	}
	return nil
}

// handleYank sets yanked state if the release exists locally; if it doesn't
// exist but is queued, the yank is deferred to the eventual build, which
// will pull fresh yank state (§4.6).
func (r *Reconciler) handleYank(ctx context.Context, c Change, yanked bool) error {
	_, err := r.store.GetRelease(ctx, c.Name, c.Version)
	if errors.Is(err, catalog.ErrReleaseNotFound) {
		queued, qerr := r.q.HasBuildQueued(ctx, c.Name, c.Version)
		if qerr != nil {
			return errors.Wrap(qerr, "check queued state for deferred yank")
		}
		if queued {
			return nil // deferred
		}
		return nil // neither local nor queued: nothing to do, matches a no-op success
	}
	if err != nil {
		return errors.Wrap(err, "get release for yank")
	}
	return r.store.SetYanked(ctx, c.Name, c.Version, yanked)
}

func (r *Reconciler) handleVersionDeleted(ctx context.Context, c Change) error {
	if err := r.del.DeleteVersion(ctx, c.Name, c.Version); err != nil {
		return errors.Wrap(err, "delete_version")
	}
	return errors.Wrap(r.q.RemoveVersion(ctx, c.Name, c.Version), "remove_version_from_queue")
}

func (r *Reconciler) handleCrateDeleted(ctx context.Context, c Change) error {
	if err := r.del.DeleteCrate(ctx, c.Name); err != nil {
		return errors.Wrap(err, "delete_crate")
	}
	return errors.Wrap(r.q.RemoveCrate(ctx, c.Name), "remove_crate_from_queue")
}

// ApplyStream processes changes in the order the upstream provides them
// (§5 Ordering guarantees). On error, a handler's failure is logged and
// processing continues with the next change. ApplyStream itself advances the
// last-seen reference to newReference, and only when every change in the
// batch succeeded, so a crash or failure mid-batch causes safe reprocessing
// (§4.6 Failure semantics).
func (r *Reconciler) ApplyStream(ctx context.Context, changes []Change, newReference string, dryRun bool) (processed int, failed int, err error) {
	if dryRun {
		return len(changes), 0, nil
	}
	for _, c := range changes {
		if err := r.ApplyChange(ctx, c); err != nil {
			failed++
			r.log.Error().Err(err).Str("crate", c.Name).Str("version", c.Version).Int("kind", int(c.Kind)).Msg("index reconciler handler failed")
			continue
		}
		processed++
	}
	if failed == 0 {
		if err := r.cfg.Set(ctx, catalog.ConfigLastSeenIndexReference, newReference); err != nil {
			return processed, failed, errors.Wrap(err, "advance last_seen_index_reference")
		}
	}
	return processed, failed, nil
}

// LastSeenReference returns the persisted opaque content hash of the most
// recently fully-processed index state.
func (r *Reconciler) LastSeenReference(ctx context.Context) (string, bool, error) {
	return r.cfg.Get(ctx, catalog.ConfigLastSeenIndexReference)
}
