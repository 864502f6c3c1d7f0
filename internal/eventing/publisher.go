package eventing

import (
	"context"
	"errors"
)

// OutboxWriter inserts outbox records. Implementations join the unit of work
// carried by ctx, so the record commits or rolls back with the caller's writes.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Publisher records activity events into the outbox. Delivery happens later
// through the Dispatcher, after the surrounding unit of work has committed.
type Publisher struct {
	outbox   OutboxWriter
	tenantID string
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, tenantID string) *Publisher {
	return &Publisher{outbox: outbox, tenantID: tenantID}
}

// Record builds the envelope and writes it to the outbox.
func (p *Publisher) Record(ctx context.Context, event any) error {
	if p == nil || p.outbox == nil {
		return errors.New("eventing: nil outbox")
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, p.tenantID))
	if err != nil {
		return err
	}
	_, err = p.outbox.Insert(ctx, env)
	return err
}
