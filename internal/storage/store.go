package storage

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
)

// Store is the Content Store facade (C1). It adds batch-upload retry
// semantics and public-access tag toggles on top of a single Backend.
type Store struct {
	backend Backend

	mu          sync.Mutex
	publicTags  map[string]bool
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend, publicTags: make(map[string]bool)}
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) { return s.backend.Exists(ctx, path) }

func (s *Store) GetStream(ctx context.Context, path string, rng *Range) (*StreamingBlob, error) {
	return s.backend.GetStream(ctx, path, rng)
}

func (s *Store) StoreOne(ctx context.Context, path string, content []byte, mime string, compression catalog.CompressionAlgorithm) error {
	return s.backend.StoreOne(ctx, path, content, mime, compression)
}

func (s *Store) ListPrefix(ctx context.Context, prefix string) (<-chan string, <-chan error) {
	return s.backend.ListPrefix(ctx, prefix)
}

func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	return s.backend.DeletePrefix(ctx, prefix)
}

// SetPublicAccess toggles a coarse "this prefix/tag is publicly readable"
// flag. The flag lives only in this Store and is reported by IsPublic; no
// backend reads it or changes ACLs from it.
func (s *Store) SetPublicAccess(tag string, public bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publicTags[tag] = public
}

func (s *Store) IsPublic(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicTags[tag]
}

const maxBatchRetries = 3

// StoreBatch attempts all uploads in parallel; failures are collected and
// retried up to three times; on the fourth failure the whole operation is
// fatal. Individual uploads are independent — partial success is observable
// via the returned per-path results even on a fatal error (§4.1).
func (s *Store) StoreBatch(ctx context.Context, uploads []Upload) (succeeded []string, err error) {
	remaining := uploads
	var allSucceeded []string

	for attempt := 0; attempt <= maxBatchRetries; attempt++ {
		if len(remaining) == 0 {
			return allSucceeded, nil
		}
		var (
			mu     sync.Mutex
			failed []Upload
		)
		g, gctx := errgroup.WithContext(ctx)
		for _, u := range remaining {
			u := u
			g.Go(func() error {
				if uerr := s.backend.StoreOne(gctx, u.Path, u.Content, u.Mime, u.Compression); uerr != nil {
					mu.Lock()
					failed = append(failed, u)
					mu.Unlock()
					return nil // collected, not propagated — individual failures don't cancel siblings
				}
				mu.Lock()
				allSucceeded = append(allSucceeded, u.Path)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if len(failed) == 0 {
			return allSucceeded, nil
		}
		if attempt == maxBatchRetries {
			return allSucceeded, errors.Errorf("storage: store_batch failed for %d path(s) after %d attempts", len(failed), maxBatchRetries+1)
		}
		remaining = failed
	}
	return allSucceeded, nil
}
