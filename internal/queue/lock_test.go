package queue

import (
	"context"
	"testing"
	"time"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
)

func newTestQueue() *Queue {
	return New(nil, catalog.NewMemServiceConfig(), 5, time.Minute, 10)
}

func TestQueueLockUnlock(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	locked, err := q.IsLocked(ctx)
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if locked {
		t.Fatal("expected a fresh queue to start unlocked")
	}

	if err := q.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	locked, err = q.IsLocked(ctx)
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if !locked {
		t.Fatal("expected queue to be locked after Lock")
	}

	if err := q.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	locked, err = q.IsLocked(ctx)
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if locked {
		t.Fatal("expected queue to be unlocked after Unlock")
	}
}
