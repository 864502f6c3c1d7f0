package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fuel-ledger/internal/eventing"
)

func newTestHandler(secret []byte, seen *context.Context) http.Handler {
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = r.Context()
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	handler := newTestHandler([]byte("test-secret"), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lots", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	handler := newTestHandler([]byte("test-secret"), nil)

	for _, path := range []string{"/healthz", "/metrics"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestAuthMiddleware_RoleMatrix(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret, nil)

	cases := []struct {
		role   string
		method string
		path   string
		want   int
	}{
		{"viewer", http.MethodGet, "/api/v1/lots", http.StatusOK},
		{"viewer", http.MethodPost, "/api/v1/lots", http.StatusForbidden},
		{"viewer", http.MethodPost, "/api/v1/transfers", http.StatusForbidden},
		{"operator", http.MethodPost, "/api/v1/transfers", http.StatusOK},
		{"operator", http.MethodPost, "/api/v1/units", http.StatusForbidden},
		{"admin", http.MethodPost, "/api/v1/units", http.StatusOK},
		{"operator", http.MethodGet, "/api/v1/reports/stock.xlsx", http.StatusForbidden},
		{"admin", http.MethodGet, "/api/v1/reports/stock.pdf", http.StatusOK},
		{"viewer", http.MethodGet, "/api/v1/units/unit-1", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "tenant-a", tc.role))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s %s: expected %d, got %d", tc.role, tc.method, tc.path, tc.want, resp.Code)
		}
	}
}

func TestAuthMiddleware_PropagatesIdentity(t *testing.T) {
	secret := []byte("test-secret")
	var ctx context.Context
	handler := newTestHandler(secret, &ctx)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lots", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "tenant-a", "Operator"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if TenantIDFromContext(ctx) != "tenant-a" || SubjectFromContext(ctx) != "user-1" || RoleFromContext(ctx) != RoleOperator {
		t.Fatalf("identity not propagated")
	}
	meta := eventing.MetaFromContext(ctx, "default")
	if meta.TenantID != "tenant-a" || meta.Actor != "user-1" {
		t.Fatalf("event metadata not propagated: %+v", meta)
	}
}

func TestParseJWT_RejectsWrongSecret(t *testing.T) {
	token := mustToken(t, []byte("one"), "tenant-a", "admin")
	if _, err := ParseJWT(token, []byte("two")); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestParseJWT_ExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		TenantID: "tenant-a",
		Role:     "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := ParseJWT(token, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssueJWT_RoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueJWT(secret, "tenant-b", RoleAdmin, "ops-bot", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	id := claims.Identity()
	if id.TenantID != "tenant-b" || id.Role != RoleAdmin || id.Subject != "ops-bot" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if _, err := IssueJWT(nil, "tenant-b", RoleAdmin, "ops-bot", 0); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected empty secret rejection, got %v", err)
	}
}

func mustToken(t *testing.T, secret []byte, tenantID, role string) string {
	t.Helper()
	claims := Claims{
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
