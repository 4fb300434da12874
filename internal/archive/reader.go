package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"mime"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rust-lang/docs.rs-sub002/internal/storage"
)

// maxIndexSize bounds how much memory a single index decode may consume;
// indexes are tiny (one entry is ~30 bytes) so this comfortably covers even
// a crate with hundreds of thousands of rustdoc pages.
const maxIndexSize = 64 << 20

// StreamInsideArchive resolves innerPath against the index stored alongside
// archivePath, performs a single ranged read of just that file's bytes, and
// returns them as a StreamingBlob carrying a range-derived ETag (§4.2, §6.4).
// When decompress is false the raw per-entry zip stream is returned
// untouched, letting a caller that already speaks DEFLATE skip the copy.
func StreamInsideArchive(ctx context.Context, store *storage.Store, archivePath, indexPath, innerPath string, decompress bool) (*storage.StreamingBlob, error) {
	idx, err := loadIndex(ctx, store, indexPath)
	if err != nil {
		return nil, err
	}

	entry, ok := idx.Lookup(innerPath)
	if !ok {
		return nil, storage.ErrPathNotFound
	}

	archiveBlob, err := store.GetStream(ctx, archivePath, &storage.Range{Start: entry.ArchiveStart, End: entry.ArchiveEnd})
	if err != nil {
		return nil, errors.Wrapf(err, "read archive range for %s", innerPath)
	}
	defer archiveBlob.Body.Close()

	segment, err := storage.Materialize(archiveBlob.Body, entry.ArchiveEnd-entry.ArchiveStart+1)
	if err != nil {
		return nil, errors.Wrapf(err, "materialize archive segment for %s", innerPath)
	}

	content := segment
	if decompress && entry.Method == uint16(zip.Deflate) {
		content, err = InflateSegment(entry.Method, segment, entry.UncompressedSize)
		if err != nil {
			return nil, errors.Wrapf(err, "inflate %s", innerPath)
		}
	}

	etag := storage.RangeETag(archiveBlob.ETag, entry.ArchiveStart, entry.ArchiveEnd)
	return &storage.StreamingBlob{
		Path:          innerPath,
		Mime:          mime.TypeByExtension(filepath.Ext(innerPath)),
		ETag:          etag,
		ContentLength: int64(len(content)),
		Body:          io.NopCloser(bytes.NewReader(content)),
	}, nil
}

// loadIndex fetches and decodes the index sidecar in full; it is never
// range-read since random access exists precisely to avoid that for the
// (much larger) archive blob.
func loadIndex(ctx context.Context, store *storage.Store, indexPath string) (*Index, error) {
	blob, err := store.GetStream(ctx, indexPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch archive index")
	}
	body, err := blob.Decompress()
	if err != nil {
		return nil, errors.Wrap(err, "decompress archive index")
	}
	defer body.Close()

	raw, err := storage.Materialize(body, maxIndexSize)
	if err != nil {
		return nil, errors.Wrap(err, "materialize archive index")
	}
	idx, err := DecodeIndex(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode archive index")
	}
	return idx, nil
}
