package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/gatepass-backend/api/controllers"
	checkoutsvc "github.com/angelmondragon/gatepass-backend/internal/checkout"
	"github.com/angelmondragon/gatepass-backend/internal/eventdata"
	"github.com/angelmondragon/gatepass-backend/internal/notifications"
	"github.com/angelmondragon/gatepass-backend/internal/tickets"
	"github.com/angelmondragon/gatepass-backend/pkg/auth"
	"github.com/angelmondragon/gatepass-backend/pkg/config"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryStore struct {
	mu       sync.Mutex
	data     map[string]string
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key], _ = value.(string)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("idem:%s:%s", scope, id)
}

func (m *memoryStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

type countingCheckout struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCheckout) Checkout(_ context.Context, req checkoutsvc.Request) (*checkoutsvc.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &checkoutsvc.Result{OrderID: uuid.New(), IsFree: true}, nil
}

type stubTickets struct{}

func (stubTickets) Scan(context.Context, tickets.ScanRequest) (*tickets.ScanResult, error) {
	return &tickets.ScanResult{TicketID: uuid.New()}, nil
}

func (stubTickets) Verify(context.Context, string) (*tickets.VerifyResult, error) {
	return &tickets.VerifyResult{Valid: true}, nil
}

func (stubTickets) OrderTickets(context.Context, uuid.UUID, uuid.UUID) ([]tickets.TicketView, error) {
	return nil, nil
}

type stubEvents struct{}

func (stubEvents) Attendees(context.Context, eventdata.Viewer, uuid.UUID) ([]eventdata.Attendee, error) {
	return nil, nil
}

func (stubEvents) Orders(context.Context, eventdata.Viewer, uuid.UUID, pagination.Params) (*eventdata.OrderPage, error) {
	return &eventdata.OrderPage{}, nil
}

func (stubEvents) RSVPCount(context.Context, eventdata.Viewer, uuid.UUID) (int64, error) {
	return 0, nil
}

func (stubEvents) InterestCount(context.Context, eventdata.Viewer, uuid.UUID) (int64, error) {
	return 0, nil
}

type stubNotifications struct{}

func (stubNotifications) UnreadCount(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (stubNotifications) List(context.Context, notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotifications) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (stubNotifications) MarkOrderRead(context.Context, uuid.UUID, uuid.UUID) (int64, error) {
	return 0, nil
}

func (stubNotifications) MarkAllRead(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "issuer", AccessTTL: time.Hour},
		HTTP: config.HTTPConfig{
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitWindow:   time.Minute,
			CheckoutUserLimit: 3,
			ScanUserLimit:     100,
		},
	}
}

type testRouter struct {
	handler  http.Handler
	checkout *countingCheckout
	cfg      *config.Config
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()
	cfg := testConfig()
	checkout := &countingCheckout{}
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	handler := NewRouter(Params{
		Config:        cfg,
		Logger:        logg,
		Store:         newMemoryStore(),
		Ready:         map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}},
		Metrics:       http.NotFoundHandler(),
		Checkout:      checkout,
		Tickets:       stubTickets{},
		Events:        stubEvents{},
		Notifications: stubNotifications{},
	})
	return &testRouter{handler: handler, checkout: checkout, cfg: cfg}
}

func (tr *testRouter) do(t *testing.T, req *http.Request, role enums.UserRole) *httptest.ResponseRecorder {
	t.Helper()
	if role != "" {
		token, err := auth.MintAccessToken(tr.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)
	return resp
}

func checkoutBody() string {
	return fmt.Sprintf(`{"eventId":%q,"fingerprint":"fp-1","items":[{"type":"ticket","ticketTierId":%q,"quantity":1}]}`, uuid.NewString(), uuid.NewString())
}

func TestHealthRoutes(t *testing.T) {
	tr := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := tr.do(t, httptest.NewRequest(http.MethodGet, path, nil), "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestAPIGroupRejectsMissingJWT(t *testing.T) {
	tr := newTestRouter(t)
	resp := tr.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody())), "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestScanRequiresStaffRole(t *testing.T) {
	tr := newTestRouter(t)
	body := fmt.Sprintf(`{"token":"x","eventId":%q}`, uuid.NewString())
	resp := tr.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/tickets/scan", strings.NewReader(body)), enums.UserRoleAttendee)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for attendee got %d", resp.Code)
	}
}

func TestEventReadsRequireOrganizer(t *testing.T) {
	tr := newTestRouter(t)
	path := "/api/v1/events/" + uuid.NewString() + "/rsvps/count"

	resp := tr.do(t, httptest.NewRequest(http.MethodGet, path, nil), enums.UserRoleStaff)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff got %d", resp.Code)
	}
	resp = tr.do(t, httptest.NewRequest(http.MethodGet, path, nil), enums.UserRoleOrganizer)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for organizer got %d", resp.Code)
	}
}

func TestCheckoutReplaysIdempotentRequest(t *testing.T) {
	tr := newTestRouter(t)
	token, err := auth.MintAccessToken(tr.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAttendee})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	body := checkoutBody()
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "checkout-1")
		resp := tr.do(t, req, "")
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d: %s", i, resp.Code, resp.Body.String())
		}
	}
	if tr.checkout.calls != 1 {
		t.Fatalf("expected a single checkout call, got %d", tr.checkout.calls)
	}
}

func TestCheckoutRateLimited(t *testing.T) {
	tr := newTestRouter(t)
	token, err := auth.MintAccessToken(tr.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAttendee})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	var last int
	for i := 0; i <= tr.cfg.HTTP.CheckoutUserLimit; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody()))
		req.Header.Set("Authorization", "Bearer "+token)
		last = tr.do(t, req, "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit got %d", last)
	}
}
