package eventing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry maps event type names to constructors for decoding outbox payloads.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() any
}

// NewRegistry constructs a registry with the given samples registered.
func NewRegistry(samples ...any) *Registry {
	r := &Registry{factories: make(map[string]func() any)}
	for _, sample := range samples {
		r.Register(sample)
	}
	return r
}

// Register registers an event type (value or pointer).
func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	r.factories[t.String()] = func() any {
		return reflect.New(t).Interface()
	}
	r.mu.Unlock()
}

// Types lists registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodePayload decodes an envelope payload into a concrete event value.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("eventing: nil registry")
	}
	r.mu.RLock()
	factory := r.factories[env.EventType]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("eventing: unknown event type %q", env.EventType)
	}
	target := factory()
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, err
	}
	return reflect.ValueOf(target).Elem().Interface(), nil
}
