package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
)

// FSBackend stores blobs as plain files under Root, a root-rooted FQN
// layout without a cluster-specific content-type registry, since this store
// has exactly one content type: addressable blobs.
type FSBackend struct {
	Root string
}

func NewFSBackend(root string) *FSBackend { return &FSBackend{Root: root} }

func (f *FSBackend) abs(path string) string { return filepath.Join(f.Root, filepath.FromSlash(path)) }

func (f *FSBackend) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(f.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "fs exists")
	}
	return true, nil
}

func (f *FSBackend) GetStream(_ context.Context, path string, rng *Range) (*StreamingBlob, error) {
	full := f.abs(path)
	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotFound
		}
		return nil, errors.Wrap(err, "fs open")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "fs stat")
	}
	meta := f.readMeta(full)

	size := info.Size()
	var body io.ReadCloser = file
	length := size
	if rng != nil {
		if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "fs seek")
		}
		length = rng.End - rng.Start + 1
		body = &limitedReadCloser{r: io.LimitReader(file, length), c: file}
	}

	return &StreamingBlob{
		Path:          path,
		Mime:          meta.mime,
		DateUpdated:   info.ModTime(),
		ETag:          meta.etag,
		Compression:   meta.compression,
		ContentLength: length,
		Body:          body,
	}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

func (f *FSBackend) StoreOne(_ context.Context, path string, content []byte, mime string, compression catalog.CompressionAlgorithm) error {
	full := f.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(err, "fs mkdir")
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errors.Wrap(err, "fs write")
	}
	f.writeMeta(full, objectMeta{mime: mime, updated: time.Now(), etag: computeETag(content), compression: compression})
	return nil
}

func (f *FSBackend) ListPrefix(ctx context.Context, prefix string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		var paths []string
		root := f.abs(prefix)
		// godirwalk.Walk requires an existing root; an absent prefix is an
		// empty listing, not an error.
		if _, err := os.Stat(root); os.IsNotExist(err) {
			chunkSend(ctx, out, errs, paths, nil)
			return
		}
		err := godirwalk.Walk(root, &godirwalk.Options{
			Callback: func(osPathname string, de *godirwalk.Dirent) error {
				if de.IsDir() || strings.HasSuffix(osPathname, metaSuffix) {
					return nil
				}
				rel, rerr := filepath.Rel(f.Root, osPathname)
				if rerr != nil {
					return rerr
				}
				paths = append(paths, filepath.ToSlash(rel))
				return nil
			},
			Unsorted: true,
		})
		chunkSend(ctx, out, errs, paths, err)
	}()
	return out, errs
}

func (f *FSBackend) DeletePrefix(_ context.Context, prefix string) error {
	root := f.abs(prefix)
	if err := os.RemoveAll(root); err != nil {
		return errors.Wrap(err, "fs delete prefix")
	}
	_ = os.RemoveAll(root + metaSuffix)
	return nil
}

const metaSuffix = ".dsrsmeta"

// readMeta/writeMeta persist the sidecar attributes (mime, etag,
// compression) a plain filesystem doesn't carry natively.
func (f *FSBackend) readMeta(full string) objectMeta {
	data, err := os.ReadFile(full + metaSuffix)
	if err != nil {
		return objectMeta{mime: "application/octet-stream"}
	}
	parts := strings.SplitN(string(data), "\n", 3)
	m := objectMeta{mime: "application/octet-stream"}
	if len(parts) > 0 {
		m.mime = parts[0]
	}
	if len(parts) > 1 {
		m.etag = parts[1]
	}
	if len(parts) > 2 {
		m.compression = parseCompression(strings.TrimSpace(parts[2]))
	}
	return m
}

func (f *FSBackend) writeMeta(full string, m objectMeta) {
	_ = os.WriteFile(full+metaSuffix, []byte(m.mime+"\n"+m.etag+"\n"+m.compression.String()), 0o644)
}
