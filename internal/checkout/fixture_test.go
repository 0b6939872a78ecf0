package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/internal/inventory"
	"github.com/angelmondragon/gatepass-backend/internal/notifications"
	"github.com/angelmondragon/gatepass-backend/internal/qrcode"
	"github.com/angelmondragon/gatepass-backend/pkg/db"
	"github.com/angelmondragon/gatepass-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	configured bool
	err        error
	calls      []SessionRequest
}

func (g *fakeGateway) Configured() bool { return g.configured }

func (g *fakeGateway) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &Session{
		ID:        "cs_test_" + req.OrderID.String(),
		URL:       "https://pay.example/" + req.OrderID.String(),
		ExpiresAt: req.ExpiresAt,
	}, nil
}

type fakeReceipts struct {
	err  error
	sent []notifications.Receipt
}

func (r *fakeReceipts) SendReceipt(_ context.Context, receipt notifications.Receipt) error {
	r.sent = append(r.sent, receipt)
	return r.err
}

type failingCreateRepo struct {
	Repository
}

func (r failingCreateRepo) WithTx(tx *gorm.DB) Repository {
	return failingCreateRepo{Repository: r.Repository.WithTx(tx)}
}

func (failingCreateRepo) CreateOrder(context.Context, *models.Order, []models.OrderItem) error {
	return errors.New("insert rejected")
}

const holdTTL = 35 * time.Minute

type fixture struct {
	t         *testing.T
	db        *gorm.DB
	clock     *fakeClock
	holds     *inventory.Manager
	gateway   *fakeGateway
	receipts  *fakeReceipts
	signer    *qrcode.Authenticator
	svc       Service
	fulfiller *Fulfiller
	event     models.Event
	user      models.User
}

func newFixture(t *testing.T, customize ...func(*ServiceParams)) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	logg := logger.Nop()

	holds, err := inventory.NewManager(inventory.ManagerParams{DB: conn, Logger: logg, Now: clock.Now})
	require.NoError(t, err)
	signer, err := qrcode.New("test-secret", 1)
	require.NoError(t, err)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)

	f := &fixture{
		t:        t,
		db:       conn,
		clock:    clock,
		holds:    holds,
		gateway:  &fakeGateway{configured: true},
		receipts: &fakeReceipts{},
		signer:   signer,
		event:    dbtest.SeedEvent(t, conn, enums.EventStatusPublished),
		user:     models.User{Email: "buyer@example.com", DisplayName: "Buyer"},
	}
	require.NoError(t, conn.Create(&f.user).Error)

	params := ServiceParams{
		Tx:       db.Wrap(conn),
		Repo:     NewRepository(conn),
		Holds:    holds,
		Gateway:  f.gateway,
		Signer:   signer,
		Outbox:   publisher,
		Receipts: f.receipts,
		Logger:   logg,
		URLs: URLBuilder{
			BaseURL:     "https://gatepass.test",
			SuccessPath: "/orders/{orderId}/confirmation",
			CancelPath:  "/events/{eventId}",
		},
		HoldTTL: holdTTL,
		Now:     clock.Now,
	}
	for _, fn := range customize {
		fn(&params)
	}
	f.svc, err = NewService(params)
	require.NoError(t, err)

	refunds, err := notifications.NewNotifier(notifications.NotifierParams{
		Tx:     db.Wrap(conn),
		Repo:   notifications.NewRepository(conn),
		Outbox: publisher,
	})
	require.NoError(t, err)

	f.fulfiller, err = NewFulfiller(FulfillerParams{
		Tx:       db.Wrap(conn),
		Repo:     NewRepository(conn),
		Holds:    holds,
		Signer:   signer,
		Outbox:   publisher,
		Receipts: f.receipts,
		Refunds:  refunds,
		Logger:   logg,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) tier(priceCents int64, qty int) models.TicketTier {
	return dbtest.SeedTier(f.t, f.db, f.event.ID, priceCents, qty)
}

func (f *fixture) product(priceCents int64) models.Product {
	p := models.Product{EventID: f.event.ID, Name: "Tour Poster", PriceCents: priceCents, IsActive: true}
	require.NoError(f.t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) request(items ...CartLine) Request {
	return Request{
		UserID:      f.user.ID,
		EventID:     f.event.ID,
		Items:       items,
		Fingerprint: "fp-" + uuid.NewString(),
	}
}

func (f *fixture) loadTier(id uuid.UUID) models.TicketTier {
	f.t.Helper()
	var tier models.TicketTier
	require.NoError(f.t, f.db.First(&tier, "id = ?", id).Error)
	require.Equal(f.t, tier.TotalQty, tier.AvailableQty+tier.ReservedQty+tier.SoldQty, "counter invariant broken: %+v", tier)
	return tier
}

func (f *fixture) loadOrder(id uuid.UUID) models.Order {
	f.t.Helper()
	var order models.Order
	require.NoError(f.t, f.db.First(&order, "id = ?", id).Error)
	return order
}

func (f *fixture) holdsByStatus(status enums.HoldStatus) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.TicketHold{}).Where("status = ?", status).Count(&n).Error)
	return n
}

func (f *fixture) refundNotices(orderID uuid.UUID) []models.Notification {
	f.t.Helper()
	var rows []models.Notification
	require.NoError(f.t, f.db.Where("order_id = ? AND kind = ?", orderID, enums.NotificationRefundPending).Find(&rows).Error)
	return rows
}

func (f *fixture) count(model any) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) outboxTypes(orderID uuid.UUID) []string {
	f.t.Helper()
	var types []string
	require.NoError(f.t, f.db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Pluck("event_type", &types).Error)
	return types
}
