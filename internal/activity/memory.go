package activity

import (
	"context"
	"sort"
	"sync"
)

// MemorySink keeps activity in process. It backs the default runtime and tests.
type MemorySink struct {
	mu     sync.RWMutex
	seen   map[string]struct{}
	events []Event
}

// NewMemorySink constructs an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Name identifies the sink.
func (s *MemorySink) Name() string { return "memory" }

// Append stores an event once per event id.
func (s *MemorySink) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[event.EventID]; ok {
		return nil
	}
	s.seen[event.EventID] = struct{}{}
	s.events = append(s.events, event)
	return nil
}

// List returns stored events, most recent first.
func (s *MemorySink) List(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Event, 0, len(s.events))
	for _, event := range s.events {
		if filter.UnitID != "" && event.UnitID != filter.UnitID {
			continue
		}
		if filter.LotID != "" && event.LotID != filter.LotID {
			continue
		}
		result = append(result, event)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}
