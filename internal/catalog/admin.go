package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// RefreshAllLatestVersionIDs recomputes crate.latest_version_id for every
// crate row, used by the admin `database update-latest-version-id` command
// after a bulk backfill (§6.1).
func (s *Store) RefreshAllLatestVersionIDs(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM crates`)
	if err != nil {
		return errors.Wrap(err, "list crates")
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return err
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()
	for _, n := range names {
		if err := refreshLatestVersionTx(ctx, tx, n); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FlatStorageReleases lists (name, version, id) for releases not yet
// converted to archive storage, used by `database repackage` (§4.2, §6.1).
// limit <= 0 means unbounded.
func (s *Store) FlatStorageReleases(ctx context.Context, limit int) ([]Release, error) {
	query := `
		SELECT r.id, r.crate_id, c.name, r.version, r.is_library
		FROM releases r JOIN crates c ON c.id = r.crate_id
		WHERE r.archive_storage = false AND r.rustdoc_status = true
		ORDER BY r.id ASC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "flat_storage_releases")
	}
	defer rows.Close()
	var out []Release
	for rows.Next() {
		var r Release
		var name string
		if err := rows.Scan(&r.ID, &r.CrateID, &name, &r.Version, &r.IsLibrary); err != nil {
			return nil, err
		}
		r.Name = name
		out = append(out, r)
	}
	return out, rows.Err()
}

// BrokenNightlyReleases returns releases that have any failed nightly build
// started between start (inclusive) and end (exclusive), used by `queue
// rebuild-broken-nightly` (§6.1). Later builds of the same release are not
// considered, and a release appears once per matching failed build.
func (s *Store) BrokenNightlyReleases(ctx context.Context, start, end time.Time) ([]Release, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.crate_id, c.name, r.version
		FROM releases r
		JOIN crates c ON c.id = r.crate_id
		JOIN builds b ON b.release_id = r.id
		WHERE b.toolchain_version = 'nightly'
		  AND b.status = $3
		  AND b.started >= $1 AND b.started < $2
		ORDER BY r.id ASC`, start, end, BuildFailure)
	if err != nil {
		return nil, errors.Wrap(err, "broken_nightly_releases")
	}
	defer rows.Close()
	var out []Release
	for rows.Next() {
		var r Release
		var name string
		if err := rows.Scan(&r.ID, &r.CrateID, &name, &r.Version); err != nil {
			return nil, err
		}
		r.Name = name
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListBlacklist, AddToBlacklist, RemoveFromBlacklist maintain the out-of-band
// deny list (GLOSSARY "Blacklist"): the `queue add` admin command refuses
// blacklisted names, but AddCrate and process_next themselves do not consult
// it, per §4.5/§9.
func (s *Store) ListBlacklist(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM blacklisted_crates ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list_blacklist")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) AddToBlacklist(ctx context.Context, name string) error {
	norm, err := NormalizeCrateName(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blacklisted_crates (name) VALUES ($1) ON CONFLICT DO NOTHING`, norm)
	return errors.Wrapf(err, "add_to_blacklist %q", norm)
}

func (s *Store) RemoveFromBlacklist(ctx context.Context, name string) error {
	norm, err := NormalizeCrateName(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM blacklisted_crates WHERE name = $1`, norm)
	return errors.Wrapf(err, "remove_from_blacklist %q", norm)
}

// SandboxLimits are the per-crate sandbox_overrides used by the external
// builder; this core only stores and serves them (§4.10, §6.1).
type SandboxLimits struct {
	MemoryBytes    int64
	MaxTargets     int
	TimeoutSeconds int
}

func (s *Store) GetSandboxLimits(ctx context.Context, name string) (SandboxLimits, error) {
	norm, err := NormalizeCrateName(name)
	if err != nil {
		return SandboxLimits{}, err
	}
	var lim SandboxLimits
	err = s.db.QueryRowContext(ctx, `
		SELECT memory_bytes, max_targets, timeout_seconds
		FROM sandbox_overrides WHERE crate_name = $1`, norm).
		Scan(&lim.MemoryBytes, &lim.MaxTargets, &lim.TimeoutSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return SandboxLimits{}, errors.Errorf("no sandbox limits set for %q", norm)
	}
	if err != nil {
		return SandboxLimits{}, errors.Wrap(err, "get_sandbox_limits")
	}
	return lim, nil
}

func (s *Store) ListSandboxLimits(ctx context.Context) (map[string]SandboxLimits, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT crate_name, memory_bytes, max_targets, timeout_seconds FROM sandbox_overrides ORDER BY crate_name`)
	if err != nil {
		return nil, errors.Wrap(err, "list_sandbox_limits")
	}
	defer rows.Close()
	out := make(map[string]SandboxLimits)
	for rows.Next() {
		var name string
		var lim SandboxLimits
		if err := rows.Scan(&name, &lim.MemoryBytes, &lim.MaxTargets, &lim.TimeoutSeconds); err != nil {
			return nil, err
		}
		out[name] = lim
	}
	return out, rows.Err()
}

func (s *Store) SetSandboxLimits(ctx context.Context, name string, lim SandboxLimits) error {
	norm, err := NormalizeCrateName(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sandbox_overrides (crate_name, memory_bytes, max_targets, timeout_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (crate_name) DO UPDATE SET
			memory_bytes = EXCLUDED.memory_bytes,
			max_targets = EXCLUDED.max_targets,
			timeout_seconds = EXCLUDED.timeout_seconds`,
		norm, lim.MemoryBytes, lim.MaxTargets, lim.TimeoutSeconds)
	return errors.Wrapf(err, "set_sandbox_limits %q", norm)
}

func (s *Store) RemoveSandboxLimits(ctx context.Context, name string) error {
	norm, err := NormalizeCrateName(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM sandbox_overrides WHERE crate_name = $1`, norm)
	return errors.Wrapf(err, "remove_sandbox_limits %q", norm)
}

// Default-priority patterns use SQL LIKE syntax over crate name, exactly as
// `queue default-priority` documents (§6.1): a newly seen crate matching a
// pattern is queued at that priority instead of the global default.
func (s *Store) GetDefaultPriority(ctx context.Context, pattern string) (int, bool, error) {
	var p int
	err := s.db.QueryRowContext(ctx, `
		SELECT priority FROM default_priority_patterns WHERE pattern = $1`, pattern).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "get_default_priority")
	}
	return p, true, nil
}

func (s *Store) ListDefaultPriorities(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern, priority FROM default_priority_patterns ORDER BY pattern`)
	if err != nil {
		return nil, errors.Wrap(err, "list_default_priorities")
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var pattern string
		var p int
		if err := rows.Scan(&pattern, &p); err != nil {
			return nil, err
		}
		out[pattern] = p
	}
	return out, rows.Err()
}

func (s *Store) SetDefaultPriority(ctx context.Context, pattern string, priority int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO default_priority_patterns (pattern, priority) VALUES ($1, $2)
		ON CONFLICT (pattern) DO UPDATE SET priority = EXCLUDED.priority`, pattern, priority)
	return errors.Wrapf(err, "set_default_priority %q", pattern)
}

func (s *Store) RemoveDefaultPriority(ctx context.Context, pattern string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM default_priority_patterns WHERE pattern = $1`, pattern)
	return errors.Wrapf(err, "remove_default_priority %q", pattern)
}

// MatchDefaultPriority finds the first pattern (ordered for determinism)
// matching name and returns its priority, used by the reconciler's Added
// handler before falling back to the global default (§4.6).
func (s *Store) MatchDefaultPriority(ctx context.Context, name string) (int, bool, error) {
	var p int
	err := s.db.QueryRowContext(ctx, `
		SELECT priority FROM default_priority_patterns
		WHERE $1 LIKE pattern ORDER BY pattern LIMIT 1`, name).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "match_default_priority")
	}
	return p, true, nil
}
