// Package deletion implements the Deletion Engine (C10): removing a crate
// or release from the catalog and all backing stores (§4.10).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package deletion

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/rust-lang/docs.rs-sub002/internal/storage"
)

// metadataTables lists the dependent tables delete_version clears, in a
// fixed order (§4.10).
var metadataTables = []string{"keyword_rels", "builds", "compression_rels", "doc_coverage"}

// Engine is the SQL + storage facade for C10. It owns no subsystem's
// lifecycle; it is handed a *sql.DB and a *storage.Store at construction,
// per the cyclic-reference-avoidance design note (§9).
type Engine struct {
	db    *sql.DB
	store *storage.Store
}

func New(db *sql.DB, store *storage.Store) *Engine {
	return &Engine{db: db, store: store}
}

// DeleteVersion removes one release's metadata rows, the release row
// itself, refreshes crate.latest_version_id, then (only after commit)
// deletes its backing blobs. A non-existent release is a no-op success
// (§4.10 idempotence).
func (e *Engine) DeleteVersion(ctx context.Context, crateName, version string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var releaseID int64
	var isLibrary bool
	err = tx.QueryRowContext(ctx, `
		SELECT r.id, r.is_library FROM releases r JOIN crates c ON c.id = r.crate_id
		WHERE c.name = $1 AND r.version = $2`, crateName, version).Scan(&releaseID, &isLibrary)
	if errors.Is(err, sql.ErrNoRows) {
		return tx.Commit() // idempotent no-op (§4.10)
	}
	if err != nil {
		return errors.Wrap(err, "find release for deletion")
	}

	for _, table := range metadataTables {
		q := fmt.Sprintf(`DELETE FROM %s WHERE release_id = $1`, table)
		if _, err := tx.ExecContext(ctx, q, releaseID); err != nil {
			return errors.Wrapf(err, "delete from %s", table)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM releases WHERE id = $1`, releaseID); err != nil {
		return errors.Wrap(err, "delete release row")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE crates c SET latest_version_id = (
			SELECT r.id FROM releases r
			WHERE r.crate_id = c.id AND r.yanked = false AND r.rustdoc_status = true
			ORDER BY string_to_array(r.version, '.')::int[] DESC
			LIMIT 1
		) WHERE c.name = $1`, crateName); err != nil {
		return errors.Wrap(err, "refresh latest_version_id")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit delete_version")
	}

	// Only after a successful commit do we touch storage, so a crash before
	// commit leaves blobs intact and a rerun re-attempts cleanly (§4.10).
	if err := e.store.DeletePrefix(ctx, "sources/"+crateName+"/"+version); err != nil {
		return errors.Wrap(err, "delete source blobs")
	}
	if err := e.store.DeletePrefix(ctx, "sources/"+crateName+"/"+version+".zip"); err != nil {
		return errors.Wrap(err, "delete source archive")
	}
	if err := e.store.DeletePrefix(ctx, "sources/"+crateName+"/"+version+".zip.index"); err != nil {
		return errors.Wrap(err, "delete source archive index")
	}
	if isLibrary {
		if err := e.store.DeletePrefix(ctx, "rustdoc/"+crateName+"/"+version); err != nil {
			return errors.Wrap(err, "delete rustdoc blobs")
		}
		if err := e.store.DeletePrefix(ctx, "rustdoc/"+crateName+"/"+version+".zip"); err != nil {
			return errors.Wrap(err, "delete rustdoc archive")
		}
		if err := e.store.DeletePrefix(ctx, "rustdoc/"+crateName+"/"+version+".zip.index"); err != nil {
			return errors.Wrap(err, "delete rustdoc archive index")
		}
	}
	return nil
}

// DeleteCrate transactionally wipes every row referencing the crate, then
// deletes the per-crate storage prefixes: sources/<name>, and rustdoc/<name>
// when any release was a library (§4.10). No local archive cache directory
// is removed; DeleteCrate touches only the catalog and the Content Store.
func (e *Engine) DeleteCrate(ctx context.Context, crateName string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var crateID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM crates WHERE name = $1`, crateName).Scan(&crateID)
	if errors.Is(err, sql.ErrNoRows) {
		return tx.Commit() // idempotent no-op
	}
	if err != nil {
		return errors.Wrap(err, "find crate for deletion")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sandbox_overrides WHERE crate_name = $1`, crateName); err != nil {
		return errors.Wrap(err, "delete sandbox_overrides")
	}
	for _, table := range metadataTables {
		q := fmt.Sprintf(`DELETE FROM %s WHERE release_id IN (SELECT id FROM releases WHERE crate_id = $1)`, table)
		if _, err := tx.ExecContext(ctx, q, crateID); err != nil {
			return errors.Wrapf(err, "delete from %s", table)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM owner_rels WHERE crate_id = $1`, crateID); err != nil {
		return errors.Wrap(err, "delete owner_rels")
	}

	var hasLibrary bool
	if err := tx.QueryRowContext(ctx, `
		SELECT bool_or(is_library) FROM releases WHERE crate_id = $1`, crateID).Scan(&hasLibrary); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "compute has_library")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM releases WHERE crate_id = $1`, crateID); err != nil {
		return errors.Wrap(err, "delete releases")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crates WHERE id = $1`, crateID); err != nil {
		return errors.Wrap(err, "delete crate row")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit delete_crate")
	}

	if err := e.store.DeletePrefix(ctx, "sources/"+crateName); err != nil {
		return errors.Wrap(err, "delete source prefix")
	}
	if hasLibrary {
		if err := e.store.DeletePrefix(ctx, "rustdoc/"+crateName); err != nil {
			return errors.Wrap(err, "delete rustdoc prefix")
		}
	}
	return nil
}
