// Package queue implements the Build Queue (C5): a priority- and
// attempt-ordered work dispenser backed by DB row locks, with retry and
// wall-clock back-off (§4.5).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package queue

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
	"github.com/rust-lang/docs.rs-sub002/internal/metrics"
)

// Entry is one pending build (§3 QueueEntry).
type Entry struct {
	Name         string
	Version      string
	Priority     int
	Attempt      int
	LastAttempt  *time.Time
	RegistryTag  string
}

// Outcome is what a dispensed job's handler reports back to process_next
// (§4.5 step 4).
type Outcome struct {
	ShouldReattempt bool
	Successful      bool
}

// Queue is the SQL-backed C5 facade. BuildAttempts and DelayBetweenAttempts
// come from config.BuildQueueConfig; PriorityManualFromCrate is the
// deprioritization target used by the Index Reconciler (§4.6).
type Queue struct {
	db                      *sql.DB
	cfg                     catalog.ServiceConfig
	buildAttempts           int
	delayBetweenAttempts    time.Duration
	priorityManualFromCrate int
}

func New(db *sql.DB, cfg catalog.ServiceConfig, buildAttempts int, delay time.Duration, priorityManualFromCrate int) *Queue {
	return &Queue{
		db:                      db,
		cfg:                     cfg,
		buildAttempts:           buildAttempts,
		delayBetweenAttempts:    delay,
		priorityManualFromCrate: priorityManualFromCrate,
	}
}

// AddCrate upserts a queue entry. On conflict it resets attempts to 0 and
// last_attempt to NULL and overwrites priority and registry, regardless of
// the row's prior state (§4.5, §8 property).
func (q *Queue) AddCrate(ctx context.Context, name, version string, priority int, registry string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO queue (name, version, priority, attempt, last_attempt, registry)
		VALUES ($1, $2, $3, 0, NULL, $4)
		ON CONFLICT (name, version) DO UPDATE SET
			priority = EXCLUDED.priority,
			registry = EXCLUDED.registry,
			attempt = 0,
			last_attempt = NULL`,
		name, version, priority, registry)
	if err != nil {
		return errors.Wrapf(err, "add_crate %s@%s", name, version)
	}
	return nil
}

func (q *Queue) HasBuildQueued(ctx context.Context, name, version string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM queue WHERE name = $1 AND version = $2)`,
		name, version).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "has_build_queued")
	}
	return exists, nil
}

func (q *Queue) RemoveVersion(ctx context.Context, name, version string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM queue WHERE name = $1 AND version = $2`, name, version)
	return errors.Wrapf(err, "remove_version %s@%s", name, version)
}

func (q *Queue) RemoveCrate(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM queue WHERE name = $1`, name)
	return errors.Wrapf(err, "remove_crate %s", name)
}

// DeprioritizeOtherReleases raises the priority of every other queued
// version of name to at least newPriority, leaving latestVersion untouched
// (§4.5, used by the reconciler's Added handler).
func (q *Queue) DeprioritizeOtherReleases(ctx context.Context, name, latestVersion string, newPriority int) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue SET priority = $3
		WHERE name = $1 AND version != $2 AND priority < $3`,
		name, latestVersion, newPriority)
	return errors.Wrap(err, "deprioritize_other_releases")
}

func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM queue`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "pending_count")
	}
	metrics.QueuePendingCount.Set(float64(n))
	return n, nil
}

// PrioritizedCount counts entries with priority <= 0.
func (q *Queue) PrioritizedCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM queue WHERE priority <= 0`).Scan(&n)
	return n, errors.Wrap(err, "prioritized_count")
}

// PendingCountByPriority groups pending entries by priority bucket.
func (q *Queue) PendingCountByPriority(ctx context.Context) (map[int]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT priority, count(*) FROM queue GROUP BY priority`)
	if err != nil {
		return nil, errors.Wrap(err, "pending_count_by_priority")
	}
	defer rows.Close()
	out := make(map[int]int)
	for rows.Next() {
		var p, c int
		if err := rows.Scan(&p, &c); err != nil {
			return nil, err
		}
		out[p] = c
	}
	return out, rows.Err()
}

// QueuedCrates returns an ordered view matching process_next's own
// selection order, for admin/listing purposes.
func (q *Queue) QueuedCrates(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT name, version, priority, attempt, last_attempt, registry
		FROM queue ORDER BY priority ASC, attempt ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "queued_crates")
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var lastAttempt sql.NullTime
		var registry sql.NullString
		if err := rows.Scan(&e.Name, &e.Version, &e.Priority, &e.Attempt, &lastAttempt, &registry); err != nil {
			return nil, err
		}
		if lastAttempt.Valid {
			e.LastAttempt = &lastAttempt.Time
		}
		e.RegistryTag = registry.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Lock/Unlock/IsLocked read-write the queue_locked flag in the singleton
// config namespace. The queue itself never refuses to dispense work based
// on this flag — external consumers are required, but not forced, to honor
// it (§4.5).
func (q *Queue) Lock(ctx context.Context) error {
	return q.cfg.Set(ctx, catalog.ConfigQueueLocked, "true")
}

func (q *Queue) Unlock(ctx context.Context) error {
	return q.cfg.Set(ctx, catalog.ConfigQueueLocked, "false")
}

func (q *Queue) IsLocked(ctx context.Context) (bool, error) {
	v, ok, err := q.cfg.Get(ctx, catalog.ConfigQueueLocked)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

// Handler is the caller-supplied work function given one dispensed entry.
type Handler func(ctx context.Context, entry Entry) (Outcome, error)

// ProcessNext implements the transactional dispense loop of §4.5:
//  1. SELECT ... FOR UPDATE SKIP LOCKED one eligible row.
//  2. None eligible -> commit, return (false, nil).
//  3. Call f; on should_reattempt=false and f succeeded, delete the row.
//  4. Otherwise bump attempt/last_attempt; past the cap, delete + count a
//     failure; otherwise leave the row for later re-selection.
//
// Multiple workers may call ProcessNext concurrently; FOR UPDATE SKIP LOCKED
// makes this a safe work-stealing queue with no in-process coordination
// (§4.5 Concurrency, §5 Locking discipline).
func (q *Queue) ProcessNext(ctx context.Context, f Handler) (dispensed bool, err error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var (
		id          int64
		e           Entry
		lastAttempt sql.NullTime
		registry    sql.NullString
	)
	row := tx.QueryRowContext(ctx, `
		SELECT id, name, version, priority, attempt, last_attempt, registry
		FROM queue
		WHERE last_attempt IS NULL OR last_attempt < now() - $1::interval
		ORDER BY priority ASC, attempt ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, intervalLiteral(q.delayBetweenAttempts))
	err = row.Scan(&id, &e.Name, &e.Version, &e.Priority, &e.Attempt, &lastAttempt, &registry)
	if errors.Is(err, sql.ErrNoRows) {
		return false, errors.Wrap(tx.Commit(), "commit empty dispense")
	}
	if err != nil {
		return false, errors.Wrap(err, "select queue entry")
	}
	if lastAttempt.Valid {
		e.LastAttempt = &lastAttempt.Time
	}
	e.RegistryTag = registry.String

	outcome, ferr := f(ctx, e)
	if ferr == nil && !outcome.ShouldReattempt && outcome.Successful {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE id = $1`, id); err != nil {
			return false, errors.Wrap(err, "delete queue row on success")
		}
		return true, errors.Wrap(tx.Commit(), "commit success")
	}

	newAttempt := e.Attempt + 1
	if newAttempt >= q.buildAttempts {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE id = $1`, id); err != nil {
			return false, errors.Wrap(err, "delete queue row past cap")
		}
		metrics.FailedCratesCount.Inc()
		return true, errors.Wrap(tx.Commit(), "commit cap-exceeded deletion")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE queue SET attempt = $2, last_attempt = now() WHERE id = $1`, id, newAttempt); err != nil {
		return false, errors.Wrap(err, "bump attempt")
	}
	return true, errors.Wrap(tx.Commit(), "commit reattempt")
}

// intervalLiteral renders a Go duration as a Postgres interval literal
// string, since lib/pq has no native time.Duration binding.
func intervalLiteral(d time.Duration) string {
	return strconv.Itoa(int(d.Seconds())) + " seconds"
}
