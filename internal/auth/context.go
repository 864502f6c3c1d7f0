package auth

import "context"

// Identity is the authenticated caller of a request.
type Identity struct {
	TenantID string
	Role     Role
	Subject  string
}

type identityKey struct{}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, tenantID string, role Role, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{TenantID: tenantID, Role: role, Subject: subject})
}

// IdentityFromContext returns the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// TenantIDFromContext returns the caller tenant or "".
func TenantIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.TenantID
}

// RoleFromContext returns the caller role or "".
func RoleFromContext(ctx context.Context) Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

// SubjectFromContext returns the caller subject, used as the actor of ledger writes.
func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}
