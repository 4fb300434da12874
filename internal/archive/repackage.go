package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
	"github.com/rust-lang/docs.rs-sub002/internal/storage"
)

// repackageConcurrency bounds how many flat objects are downloaded at once
// during a single release's repackage, independent of any server-wide
// upload concurrency (§4.2).
const repackageConcurrency = 8

// maxDownloadedFileSize guards a single flat object's download against an
// unexpectedly huge file poisoning the repackage temp directory.
const maxDownloadedFileSize = 256 << 20

// PrefixTarget names one flat prefix to be packed into its own archive blob
// plus index sidecar as part of a release's repackage (§4.2: "downloading
// all keys under its rustdoc and sources prefixes... archiving each
// directory").
type PrefixTarget struct {
	FlatPrefix  string
	ArchivePath string
	IndexPath   string
}

// RepackageRelease converts one release's flat object layout into an
// archive blob plus index per target (rustdoc, sources), atomically flipping
// the catalog row only after every target's blobs are durably stored, then
// deleting all of the old flat prefixes. A crash before the catalog update
// leaves the release still served entirely from flat prefixes; a crash after
// the catalog flip but before the deletes leaves orphaned flat objects
// cleaned up by a later retry of the same release, so the whole flow is safe
// to re-run (§4.2, §3: "archive_storage=true implies the flat per-file
// prefix must not exist" for every one of the release's prefixes).
func RepackageRelease(ctx context.Context, catStore *catalog.Store, store *storage.Store, releaseID int64, targets []PrefixTarget, compression catalog.CompressionAlgorithm) error {
	for _, t := range targets {
		if err := repackagePrefix(ctx, store, t, compression); err != nil {
			return errors.Wrapf(err, "repackage prefix %s", t.FlatPrefix)
		}
	}

	if err := catStore.MarkArchived(ctx, releaseID, []catalog.CompressionAlgorithm{compression}); err != nil {
		return errors.Wrap(err, "mark release archived")
	}

	for _, t := range targets {
		if err := store.DeletePrefix(ctx, t.FlatPrefix); err != nil {
			return errors.Wrapf(err, "delete old flat prefix %s", t.FlatPrefix)
		}
	}
	return nil
}

// repackagePrefix packs and stores a single target's archive + index blobs,
// leaving the flat prefix and catalog row untouched; the caller flips the
// catalog row and deletes flat prefixes only after every target succeeds.
func repackagePrefix(ctx context.Context, store *storage.Store, t PrefixTarget, compression catalog.CompressionAlgorithm) error {
	tmpDir, err := os.MkdirTemp("", "dsrs-repackage-*")
	if err != nil {
		return errors.Wrap(err, "create repackage temp dir")
	}
	defer os.RemoveAll(tmpDir)

	if err := downloadPrefix(ctx, store, t.FlatPrefix, tmpDir); err != nil {
		return errors.Wrap(err, "download flat prefix")
	}

	packed, err := Pack(tmpDir)
	if err != nil {
		return errors.Wrap(err, "pack archive")
	}

	indexContent, err := storage.Compress(compression, packed.IndexBytes)
	if err != nil {
		return errors.Wrap(err, "compress archive index")
	}

	if err := store.StoreOne(ctx, t.ArchivePath, packed.ArchiveBytes, "application/zip", catalog.CompressionNone); err != nil {
		return errors.Wrap(err, "store archive")
	}
	if err := store.StoreOne(ctx, t.IndexPath, indexContent, "application/octet-stream", compression); err != nil {
		return errors.Wrap(err, "store archive index")
	}
	return nil
}

// downloadPrefix mirrors every object under prefix into dir, at most
// repackageConcurrency in flight, preserving the relative path below prefix
// so Pack sees the same layout the flat store exposed.
func downloadPrefix(ctx context.Context, store *storage.Store, prefix, dir string) error {
	paths, errs := store.ListPrefix(ctx, prefix)

	sem := semaphore.NewWeighted(repackageConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for path := range paths {
		path := path
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return downloadOne(gctx, store, prefix, path, dir)
		})
	}
	if err := <-errs; err != nil {
		return err
	}
	return g.Wait()
}

func downloadOne(ctx context.Context, store *storage.Store, prefix, path, dir string) error {
	blob, err := store.GetStream(ctx, path, nil)
	if err != nil {
		return errors.Wrapf(err, "fetch %s", path)
	}
	defer blob.Body.Close()

	content, err := storage.Materialize(blob.Body, maxDownloadedFileSize)
	if err != nil {
		return errors.Wrapf(err, "materialize %s", path)
	}

	rel := strings.TrimPrefix(path, prefix)
	rel = strings.TrimPrefix(rel, "/")
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrapf(err, "mkdir for %s", path)
	}
	return errors.Wrapf(os.WriteFile(full, content, 0o644), "write %s", path)
}
