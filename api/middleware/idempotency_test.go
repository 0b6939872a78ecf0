package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func post(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
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

func TestIdempotencyRequiresHeaderWhenPolicySaysSo(t *testing.T) {
	called := false
	h := Idempotency(newFakeStore(), MutationIdempotency, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, post("/api/v1/notifications/read-all", "", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if called {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	h := Idempotency(store, MutationIdempotency, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, post("/api/v1/notifications/read-all", "abc", `{"foo":"bar"}`))
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", first.Code)
	}
	if first.Header().Get(replayedHeader) != "" {
		t.Fatalf("first response must not be marked as replayed")
	}

	replay := httptest.NewRecorder()
	h.ServeHTTP(replay, post("/api/v1/notifications/read-all", "abc", `{"foo":"bar"}`))
	if replay.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", replay.Code)
	}
	if replay.Header().Get("Content-Type") != "application/json" || replay.Header().Get(replayedHeader) != "true" {
		t.Fatalf("unexpected replay headers %v", replay.Header())
	}
	if replay.Body.String() != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	for key, ttl := range store.ttls {
		if ttl != MutationIdempotency.TTL {
			t.Fatalf("%s stored with ttl %s", key, ttl)
		}
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	h := Idempotency(newFakeStore(), MutationIdempotency, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), post("/api/v1/notifications/read-all", "xyz", `{"foo":"bar"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, post("/api/v1/notifications/read-all", "xyz", `{"foo":"diff"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, got)
	}
}

func TestIdempotencyRejectsDuplicateInFlight(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	h := Idempotency(store, CheckoutIdempotency, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, post("/api/v1/checkout", "dup", `{"eventId":"e"}`))
		done <- rec
	}()
	<-entered

	second := httptest.NewRecorder()
	h.ServeHTTP(second, post("/api/v1/checkout", "dup", `{"eventId":"e"}`))
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 while first request runs, got %d", second.Code)
	}
	if got := errorCode(t, second); got != string(pkgerrors.CodeConflict) {
		t.Fatalf("unexpected error code %s", got)
	}

	close(release)
	if first := <-done; first.Code != http.StatusCreated {
		t.Fatalf("expected first request 201 got %d", first.Code)
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyOptionalKeyOnCheckout(t *testing.T) {
	store := newFakeStore()
	var calls int
	h := Idempotency(store, CheckoutIdempotency, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, post("/api/v1/checkout", "", `{"eventId":"e"}`))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("requests without a key must not be deduplicated, got %d calls", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	var calls int
	h := Idempotency(store, CheckoutIdempotency, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), post("/api/v1/checkout", "retry-me", `{"eventId":"e"}`))
	}
	if calls != 2 {
		t.Fatalf("a failed checkout must be retryable under the same key, got %d calls", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("failed request should leave no record, got %v", store.data)
	}
}
