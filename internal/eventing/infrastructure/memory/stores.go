package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"fuel-ledger/internal/eventing"
)

// ProcessedStore keeps consumer idempotency markers in memory.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewProcessedStore constructs an empty store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]time.Time)}
}

// HasProcessed reports whether consumerName already handled eventID.
func (p *ProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	if eventID == "" || consumerName == "" {
		return false, errors.New("processed store: invalid arguments")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[consumerName+"|"+eventID]
	return ok, nil
}

// MarkProcessed records eventID as handled by consumerName.
func (p *ProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: invalid arguments")
	}
	p.mu.Lock()
	p.seen[consumerName+"|"+eventID] = time.Now().UTC()
	p.mu.Unlock()
	return nil
}

// Purge forgets markers recorded before cutoff.
func (p *ProcessedStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var removed int64
	for key, at := range p.seen {
		if at.Before(cutoff) {
			delete(p.seen, key)
			removed++
		}
	}
	return removed, nil
}

// DeadLetter is a failed delivery kept for inspection.
type DeadLetter struct {
	Envelope eventing.Envelope
	Error    string
}

// DLQStore keeps dead letters in memory.
type DLQStore struct {
	mu      sync.Mutex
	entries []DeadLetter
}

// NewDLQStore constructs an empty store.
func NewDLQStore() *DLQStore {
	return &DLQStore{}
}

// RecordFailure appends a dead letter.
func (d *DLQStore) RecordFailure(_ context.Context, env eventing.Envelope, cause error) error {
	entry := DeadLetter{Envelope: env}
	if cause != nil {
		entry.Error = cause.Error()
	}
	d.mu.Lock()
	d.entries = append(d.entries, entry)
	d.mu.Unlock()
	return nil
}

// Entries returns a copy of the dead letters.
func (d *DLQStore) Entries() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DeadLetter(nil), d.entries...)
}
