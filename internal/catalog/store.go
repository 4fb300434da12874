package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	_ "github.com/lib/pq" // postgres driver registration
)

// Store is the catalog's SQL-backed CRUD surface used by C6/C7/C10.
// Every mutating method here is the transactional unit referenced by the
// spec: callers never span a network call across one of these transactions
// (§5).
type Store struct {
	db *sql.DB
}

func Open(connString string, maxOpen, maxIdle int, maxLifetime time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog database")
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	return &Store{db: db}, nil
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *sql.DB { return s.db }

// InitCrate returns the existing crate id or inserts a new row, matching the
// upsert-by-normalized-name invariant (§3).
func (s *Store) InitCrate(ctx context.Context, name string) (int64, error) {
	norm, err := NormalizeCrateName(name)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO crates (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, norm).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "init crate %q", norm)
	}
	return id, nil
}

// InitRelease creates (or finds) a release row for (crate_id, version). The
// in-progress build row is created separately by InitBuild, per the C7
// ordering: crate -> release -> build.
func (s *Store) InitRelease(ctx context.Context, crateID int64, version string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO releases (crate_id, version)
		VALUES ($1, $2)
		ON CONFLICT (crate_id, version) DO UPDATE SET version = EXCLUDED.version
		RETURNING id`, crateID, version).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "init release %s", version)
	}
	return id, nil
}

func (s *Store) InitBuild(ctx context.Context, releaseID int64, rustcVersion, toolchainVer string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO builds (release_id, started, status, rustc_version, toolchain_version)
		VALUES ($1, now(), $2, $3, $4)
		RETURNING id`, releaseID, BuildInProgress, rustcVersion, toolchainVer).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "init build")
	}
	return id, nil
}

// FinishRelease records the complete target list, compression set, and size
// totals gathered by the ingestor (§4.7 step 10).
func (s *Store) FinishRelease(ctx context.Context, releaseID int64, targets []string, defaultTarget string, isLibrary bool, compressions []CompressionAlgorithm, rustdocSize, sourceSize int64, repositoryID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE releases
		SET targets = $2, default_target = $3, is_library = $4,
		    rustdoc_size = $5, source_size = $6, repository_id = $7, rustdoc_status = true
		WHERE id = $1`,
		releaseID, pqStringArray(targets), defaultTarget, isLibrary, rustdocSize, sourceSize, repositoryID)
	if err != nil {
		return errors.Wrap(err, "finish release")
	}
	for _, c := range compressions {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO compression_rels (release_id, algorithm) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, releaseID, c.String()); err != nil {
			return errors.Wrap(err, "record compression_rels")
		}
	}
	return nil
}

func (s *Store) FinishBuild(ctx context.Context, buildID int64, status BuildStatus, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE builds SET finished = now(), status = $2, errors = $3 WHERE id = $1`,
		buildID, status, errText)
	if err != nil {
		return errors.Wrap(err, "finish build")
	}
	return nil
}

// UpdateBuildWithError records the debug rendering of an ingest failure
// without removing the release row (§4.7 error path, §7 builds-page text).
func (s *Store) UpdateBuildWithError(ctx context.Context, buildID int64, debugErr string) error {
	return s.FinishBuild(ctx, buildID, BuildFailure, debugErr)
}

// SetYanked updates release.yanked and refreshes latest_version_id (§4.6).
func (s *Store) SetYanked(ctx context.Context, crateName, version string, yanked bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE releases r SET yanked = $3
		FROM crates c
		WHERE r.crate_id = c.id AND c.name = $1 AND r.version = $2`,
		crateName, version, yanked)
	if err != nil {
		return errors.Wrap(err, "set yanked")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit() // release not found locally; deferred to eventual build (§4.6)
	}
	if err := refreshLatestVersionTx(ctx, tx, crateName); err != nil {
		return err
	}
	return tx.Commit()
}

func refreshLatestVersionTx(ctx context.Context, tx *sql.Tx, crateName string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE crates c SET latest_version_id = (
			SELECT r.id FROM releases r
			WHERE r.crate_id = c.id AND r.yanked = false AND r.rustdoc_status = true
			ORDER BY string_to_array(r.version, '.')::int[] DESC
			LIMIT 1
		)
		WHERE c.name = $1`, crateName)
	if err != nil {
		return errors.Wrap(err, "refresh latest_version_id")
	}
	return nil
}

// GetRelease fetches a release by crate name + version, used by handlers and
// the reconciler's full-consistency diff (§4.6).
func (s *Store) GetRelease(ctx context.Context, crateName, version string) (*Release, error) {
	rel := &Release{Version: version}
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.crate_id, r.yanked, r.is_library, r.archive_storage
		FROM releases r JOIN crates c ON c.id = r.crate_id
		WHERE c.name = $1 AND r.version = $2`, crateName, version).
		Scan(&rel.ID, &rel.CrateID, &rel.Yanked, &rel.IsLibrary, &rel.ArchiveStorage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReleaseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get release")
	}
	return rel, nil
}

// MarkArchived flips a release from flat to archive storage and rewrites its
// compression_rels in one transaction, so a concurrent reader never observes
// archive_storage=true paired with a stale compression set (§4.2 repackage).
func (s *Store) MarkArchived(ctx context.Context, releaseID int64, compressions []CompressionAlgorithm) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE releases SET archive_storage = true WHERE id = $1`, releaseID); err != nil {
		return errors.Wrap(err, "mark archive_storage")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM compression_rels WHERE release_id = $1`, releaseID); err != nil {
		return errors.Wrap(err, "clear compression_rels")
	}
	for _, c := range compressions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO compression_rels (release_id, algorithm) VALUES ($1, $2)`, releaseID, c.String()); err != nil {
			return errors.Wrap(err, "record compression_rels")
		}
	}
	return tx.Commit()
}

// CrateNamesByLetter lists every crate whose normalized name starts with
// letter, used by the per-letter sitemap partitions (§6.2, §6.3).
func (s *Store) CrateNamesByLetter(ctx context.Context, letter byte) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM crates WHERE name LIKE $1 ORDER BY name`, string(letter)+"%")
	if err != nil {
		return nil, errors.Wrap(err, "crate_names_by_letter")
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

var (
	ErrReleaseNotFound = errors.New("release not found")
	ErrCrateNotFound   = errors.New("crate not found")
)

// pqStringArray renders a Go string slice as a Postgres text[] literal.
func pqStringArray(vals []string) string {
	out := "{"
	for i, v := range vals {
		if i > 0 {
			out += ","
		}
		out += `"` + v + `"`
	}
	return out + "}"
}
