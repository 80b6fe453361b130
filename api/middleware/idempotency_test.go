package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
)

const refundPath = "/api/admin/v1/transactions/6f1c/refunds"

// memIdempotencyStore is an in-memory pkgredis.IdempotencyStore.
type memIdempotencyStore map[string]string

func (m memIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m memIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key], _ = value.(string)
	return true, nil
}

func (m memIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m, key)
	}
	return nil
}

func (m memIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

// refundCall sends a POST to the refund route as adminID, with chi's route
// pattern set the way the router would.
type refundCall struct {
	adminID string
	key     string
	body    string
}

func (c refundCall) serve(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, refundPath, strings.NewReader(c.body))
	if c.key != "" {
		req.Header.Set(idempotencyHeader, c.key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{RefundRoute}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = WithPrincipal(ctx, Principal{UserID: c.adminID, Role: "admin"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestRouteTTL(t *testing.T) {
	cases := map[string]struct {
		method, pattern string
		ok              bool
	}{
		"refund":         {http.MethodPost, RefundRoute, true},
		"refund via get": {http.MethodGet, RefundRoute, false},
		"webhook":        {http.MethodPost, "/api/v1/webhooks/payments", false},
	}
	for name, tc := range cases {
		ttl, ok := routeTTL(tc.method, tc.pattern)
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v, want %v", name, ok, tc.ok)
		}
		if ok && ttl != refundIdempotencyTTL {
			t.Fatalf("%s: ttl=%v, want %v", name, ttl, refundIdempotencyTTL)
		}
	}
}

func TestIdempotencyRequiresKeyOnRefunds(t *testing.T) {
	ran := false
	h := Idempotency(memIdempotencyStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ran = true
	}))

	rec := refundCall{adminID: "admin-1", body: `{"reason":"damaged"}`}.serve(h)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ran {
		t.Fatalf("handler must not run without Idempotency-Key")
	}
}

func TestIdempotencyPassesThroughOtherRoutes(t *testing.T) {
	ran := false
	h := Idempotency(memIdempotencyStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ran = true
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/transactions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !ran || rec.Code != http.StatusNoContent {
		t.Fatalf("expected passthrough, ran=%v code=%d", ran, rec.Code)
	}
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := memIdempotencyStore{}
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"refund_id":"r1"}}`))
	}))

	call := refundCall{adminID: "admin-1", key: "abc", body: `{"amount_minor_units":500}`}
	first := call.serve(h)
	if first.Code != http.StatusCreated || first.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("unexpected first response: %d %v", first.Code, first.Header())
	}

	// whitespace around the body does not change the fingerprint
	call.body = "  " + call.body + "\n"
	second := call.serve(h)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("content type not replayed")
	}
	if second.Body.String() != `{"data":{"refund_id":"r1"}}` {
		t.Fatalf("unexpected replay body %s", second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestIdempotencyRejectsReusedKeyWithNewBody(t *testing.T) {
	h := Idempotency(memIdempotencyStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	refundCall{adminID: "admin-1", key: "xyz", body: `{"amount_minor_units":500}`}.serve(h)
	rec := refundCall{adminID: "admin-1", key: "xyz", body: `{"amount_minor_units":900}`}.serve(h)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeIdempotency, got)
	}
}

func TestIdempotencyKeysAreScopedPerAdmin(t *testing.T) {
	store := memIdempotencyStore{}
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	refundCall{adminID: "admin-1", key: "shared", body: `{}`}.serve(h)
	rec := refundCall{adminID: "admin-2", key: "shared", body: `{"amount_minor_units":1}`}.serve(h)

	if rec.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("second admin should not collide: code=%d calls=%d", rec.Code, calls)
	}
	if len(store) != 2 {
		t.Fatalf("expected two stored entries, got %d", len(store))
	}
}

func TestIdempotencyLeavesServerErrorsRetryable(t *testing.T) {
	store := memIdempotencyStore{}
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	call := refundCall{adminID: "admin-1", key: "retry-me", body: `{"amount_minor_units":100}`}
	if rec := call.serve(h); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 first, got %d", rec.Code)
	}
	if len(store) != 0 {
		t.Fatalf("5xx must not be stored")
	}
	if rec := call.serve(h); rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to reach handler, got %d", rec.Code)
	}
	if calls != 2 || len(store) != 1 {
		t.Fatalf("calls=%d stored=%d", calls, len(store))
	}
}
