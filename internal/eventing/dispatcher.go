package eventing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fuel-ledger/internal/observability/metrics"
)

const (
	defaultDispatchLimit = 50
	defaultMaxAttempts   = 5
)

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	// ListPending returns undelivered records (pending or failed), oldest first.
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	// MarkFailed keeps the record for another attempt and increments its attempt count.
	MarkFailed(ctx context.Context, id string) error
	// MarkDead stops retrying the record.
	MarkDead(ctx context.Context, id string) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents an undelivered outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
	Attempts int
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Requested int
	Claimed   int
	Sent      int
	Failed    int
	Dead      int
}

// Dispatcher relays committed outbox records to the bus.
type Dispatcher struct {
	bus         Bus
	outbox      OutboxStore
	registry    *Registry
	dlq         DLQStore
	logger      *zap.Logger
	maxAttempts int
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the logger.
func WithDispatchLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxAttempts bounds delivery attempts before a record goes to the DLQ.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus Bus, outbox OutboxStore, registry *Registry, dlq DLQStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		bus:         bus,
		outbox:      outbox,
		registry:    registry,
		dlq:         dlq,
		logger:      zap.NewNop(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch pulls undelivered outbox records and delivers them. Delivery errors
// are recorded on the record and never returned; only store errors are.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = defaultDispatchLimit
	}
	result := DispatchResult{Requested: limit}
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return result, errors.New("eventing: dispatcher not configured")
	}

	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, err
	}
	result.Claimed = len(records)

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, record := range records {
		env := record.Envelope
		payload, err := d.registry.DecodePayload(env)
		if err == nil {
			err = d.bus.Publish(WithEnvelope(ctx, env), payload)
		}
		if err == nil {
			keep(d.outbox.MarkSent(ctx, record.ID))
			result.Sent++
			continue
		}

		attempts := record.Attempts + 1
		d.logger.Warn("outbox delivery failed",
			zap.String("outbox_id", record.ID),
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if attempts >= d.maxAttempts {
			if d.dlq != nil {
				keep(d.dlq.RecordFailure(ctx, env, err))
			}
			keep(d.outbox.MarkDead(ctx, record.ID))
			result.Dead++
			continue
		}
		keep(d.outbox.MarkFailed(ctx, record.ID))
		result.Failed++
	}

	dispatchResult := metrics.ResultSuccess
	if firstErr != nil || result.Failed > 0 || result.Dead > 0 {
		dispatchResult = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(dispatchResult, time.Since(start), result.Sent, result.Failed, result.Dead)
	return result, firstErr
}
