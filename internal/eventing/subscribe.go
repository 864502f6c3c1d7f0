package eventing

import (
	"context"
	"time"

	"fuel-ledger/internal/observability/metrics"
)

// ProcessedStore provides idempotency checks.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe wraps handler with idempotency if store is provided.
func Subscribe(bus Bus, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if store == nil {
		bus.Subscribe(eventType, observed(consumerName, handler))
		return
	}
	bus.Subscribe(eventType, WrapHandler(consumerName, handler, store))
}

// WrapHandler enforces idempotency per consumer: an event redelivered after a
// partial failure reaches only the consumers that did not finish it.
func WrapHandler(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	handler = observed(consumerName, handler)
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}

func observed(consumerName string, handler EventHandler) EventHandler {
	return func(ctx context.Context, event any) error {
		occurredAt := extractTimeField(event, "OccurredAt")
		if env, ok := EnvelopeFromContext(ctx); ok && !env.OccurredAt.IsZero() {
			occurredAt = env.OccurredAt
		}
		if !occurredAt.IsZero() {
			metrics.ObserveConsumerLag(consumerName, time.Since(occurredAt))
		}
		return handler(ctx, event)
	}
}
