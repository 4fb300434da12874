package storage

import (
	"context"
	"time"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
)

// Backend is the small capability interface every storage provider
// implements; selection happens once at startup from configuration (§9).
type Backend interface {
	Exists(ctx context.Context, path string) (bool, error)
	GetStream(ctx context.Context, path string, rng *Range) (*StreamingBlob, error)
	StoreOne(ctx context.Context, path string, content []byte, mime string, compression catalog.CompressionAlgorithm) error
	ListPrefix(ctx context.Context, prefix string) (<-chan string, <-chan error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// objectMeta is what a backend keeps alongside raw bytes.
type objectMeta struct {
	mime        string
	updated     time.Time
	etag        string
	compression catalog.CompressionAlgorithm
}

// computeETag derives a strong ETag from content bytes. Equal bytes always
// produce equal ETags (§8 round-trip property).
func computeETag(content []byte) string {
	return "\"" + xxhashHex(content) + "\""
}

// chunkSend is a helper used by ListPrefix implementations to send an
// already-collected listing over a channel one path at a time (§9:
// coroutine-style, not restartable, cancellation = drop). The caller holds
// the whole listing in memory before chunkSend starts.
func chunkSend(ctx context.Context, out chan<- string, errs chan<- error, paths []string, err error) {
	defer close(out)
	defer close(errs)
	if err != nil {
		errs <- err
		return
	}
	for _, p := range paths {
		select {
		case out <- p:
		case <-ctx.Done():
			return
		}
	}
}
