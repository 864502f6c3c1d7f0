package eventing

import "context"

type contextKey string

const (
	contextKeyEnvelope contextKey = "eventing.envelope"
	contextKeyTenant   contextKey = "eventing.tenant_id"
	contextKeyCorr     contextKey = "eventing.correlation_id"
	contextKeyActor    contextKey = "eventing.actor"
)

// WithEnvelope attaches the envelope being delivered to ctx.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKeyEnvelope, env)
}

// EnvelopeFromContext returns envelope metadata if available.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(contextKeyEnvelope).(Envelope)
	return env, ok
}

// WithTenantID sets tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, contextKeyTenant, tenantID)
}

// WithCorrelationID sets correlation id in context, usually the request id.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKeyCorr, correlationID)
}

// WithActor sets the acting subject in context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// MetaFromContext builds metadata from context with defaults.
func MetaFromContext(ctx context.Context, defaultTenantID string) Meta {
	meta := Meta{TenantID: defaultTenantID}
	if tenantID, ok := ctx.Value(contextKeyTenant).(string); ok && tenantID != "" {
		meta.TenantID = tenantID
	}
	if corr, ok := ctx.Value(contextKeyCorr).(string); ok {
		meta.CorrelationID = corr
	}
	if actor, ok := ctx.Value(contextKeyActor).(string); ok {
		meta.Actor = actor
	}
	return meta
}
