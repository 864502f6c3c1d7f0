package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	inventory "fuel-ledger/internal/inventory/domain"
)

func TestKeyedMutex_TimesOutWithContention(t *testing.T) {
	locks := NewKeyedMutex()
	release, err := locks.Lock(context.Background(), "seq:a", 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := locks.Lock(context.Background(), "seq:a", 20*time.Millisecond); !errors.Is(err, inventory.ErrSequenceContention) {
		t.Fatalf("expected ErrSequenceContention, got %v", err)
	}

	other, err := locks.Lock(context.Background(), "seq:b", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("independent key blocked: %v", err)
	}
	other()

	release()
	release()
	if locks.Len() != 0 {
		t.Fatalf("expected no live keys, got %d", locks.Len())
	}
}

func TestKeyedMutex_HandsOverOnRelease(t *testing.T) {
	locks := NewKeyedMutex()
	release, err := locks.Lock(context.Background(), "lot:1", 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	acquired := make(chan func(), 1)
	go func() {
		next, err := locks.Lock(context.Background(), "lot:1", time.Second)
		if err != nil {
			acquired <- nil
			return
		}
		acquired <- next
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	next := <-acquired
	if next == nil {
		t.Fatalf("waiter failed after release")
	}
	next()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	locks := NewKeyedMutex()
	release, err := locks.Lock(context.Background(), "k", 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(ctx, "k", 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
