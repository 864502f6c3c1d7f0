package activity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fuel-ledger/internal/eventing"
	"fuel-ledger/internal/inventory/application/events"
	"fuel-ledger/internal/observability/metrics"
)

const defaultAppendTimeout = 5 * time.Second

// Trail fans relayed ledger events out to its sinks. Each sink is a separate
// idempotent consumer, so a redelivery after a partial failure only reaches
// the sinks that missed it.
type Trail struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures the trail.
type Option func(*Trail)

// WithAppendTimeout bounds every single append.
func WithAppendTimeout(timeout time.Duration) Option {
	return func(t *Trail) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Trail) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTrail constructs a trail over sinks; nil sinks are skipped.
func NewTrail(sinks []Sink, opts ...Option) *Trail {
	t := &Trail{timeout: defaultAppendTimeout, logger: zap.NewNop()}
	for _, sink := range sinks {
		if sink != nil {
			t.sinks = append(t.sinks, sink)
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EventTypes lists the ledger events the trail records.
func EventTypes() []any {
	return []any{events.LotCreated{}, events.TransferRecorded{}, events.TestingDrawRecorded{}}
}

// Subscribe registers one consumer per sink and event type.
func (t *Trail) Subscribe(bus eventing.Bus, processed eventing.ProcessedStore) {
	for _, sample := range EventTypes() {
		eventType := eventing.EventType(sample)
		for _, sink := range t.sinks {
			eventing.Subscribe(bus, eventType, "activity."+sink.Name(), t.handler(sink), processed)
		}
	}
}

func (t *Trail) handler(sink Sink) eventing.EventHandler {
	return func(ctx context.Context, payload any) error {
		env, ok := eventing.EnvelopeFromContext(ctx)
		if !ok {
			built, err := eventing.BuildEnvelope(payload, eventing.Meta{})
			if err != nil {
				return err
			}
			env = built
		}
		return t.append(ctx, sink, FromEnvelope(env, payload))
	}
}

func (t *Trail) append(ctx context.Context, sink Sink, event Event) error {
	appendCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := sink.Append(appendCtx, event); err != nil {
		metrics.IncActivityAppend(sink.Name(), metrics.ResultError)
		t.logger.Warn("activity append failed",
			zap.String("sink", sink.Name()),
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %v", ErrAppendFailed, sink.Name(), err)
	}
	metrics.IncActivityAppend(sink.Name(), metrics.ResultSuccess)
	return nil
}
