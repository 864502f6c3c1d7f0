package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddleware_LogsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var gotMethod string
	var gotStatus int
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}), zap.New(core), func(method string, status int) {
		gotMethod, gotStatus = method, status
	})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/transfers", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusConflict) || fields["path"] != "/api/v1/transfers" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if gotMethod != http.MethodPost || gotStatus != http.StatusConflict {
		t.Fatalf("observer got %s %d", gotMethod, gotStatus)
	}
}

func TestNamed_NilBase(t *testing.T) {
	if Named(nil, "x") == nil {
		t.Fatalf("expected nop logger")
	}
}
