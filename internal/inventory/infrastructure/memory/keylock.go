package memory

import (
	"context"
	"sync"
	"time"

	inventory "fuel-ledger/internal/inventory/domain"
)

// KeyedMutex is a map of mutexes created on demand. Entries are dropped once
// no goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*lockSlot)}
}

// Lock acquires key. It gives up with ErrSequenceContention after wait (when
// wait > 0) and with the context error when ctx ends first. The returned
// release func is safe to call more than once.
func (k *KeyedMutex) Lock(ctx context.Context, key string, wait time.Duration) (func(), error) {
	k.mu.Lock()
	slot := k.slots[key]
	if slot == nil {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				k.drop(key, slot)
			})
		}, nil
	case <-ctx.Done():
		k.drop(key, slot)
		return nil, ctx.Err()
	case <-timeout:
		k.drop(key, slot)
		return nil, inventory.ErrSequenceContention
	}
}

// Len returns the number of live keys.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *KeyedMutex) drop(key string, slot *lockSlot) {
	k.mu.Lock()
	slot.refs--
	if slot.refs == 0 && k.slots[key] == slot {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}
