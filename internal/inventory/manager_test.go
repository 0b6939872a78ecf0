package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
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

func newManager(t *testing.T) (*Manager, *gorm.DB, *fakeClock) {
	t.Helper()
	db := dbtest.New(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	m, err := NewManager(ManagerParams{DB: db, Logger: logger.Nop(), Now: clock.Now})
	require.NoError(t, err)
	return m, db, clock
}

func loadTier(t *testing.T, db *gorm.DB, id uuid.UUID) models.TicketTier {
	t.Helper()
	var tier models.TicketTier
	require.NoError(t, db.First(&tier, "id = ?", id).Error)
	assert.Equal(t, tier.TotalQty, tier.AvailableQty+tier.ReservedQty+tier.SoldQty, "counter invariant broken: %+v", tier)
	return tier
}

func request(tierID uuid.UUID, qty int) HoldRequest {
	return HoldRequest{TierID: tierID, UserID: uuid.New(), Fingerprint: uuid.NewString(), Quantity: qty}
}

func TestCreateHoldReservesInventory(t *testing.T) {
	m, db, clock := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 2500, 10)

	hold, err := m.CreateHold(context.Background(), nil, request(tier.ID, 3))
	require.NoError(t, err)

	assert.Equal(t, enums.HoldStatusActive, hold.Status)
	assert.Equal(t, clock.Now().Add(DefaultHoldTTL), hold.ExpiresAt)

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 7, got.AvailableQty)
	assert.Equal(t, 3, got.ReservedQty)
}

func TestCreateHoldOutOfStockLeavesInventoryUnchanged(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 2500, 2)

	_, err := m.CreateHold(context.Background(), nil, request(tier.ID, 3))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 2, got.AvailableQty)
	assert.Zero(t, got.ReservedQty)

	var holds int64
	require.NoError(t, db.Model(&models.TicketHold{}).Count(&holds).Error)
	assert.Zero(t, holds)
}

func TestCreateHoldRejectsInactiveTier(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 2500, 5)
	require.NoError(t, db.Model(&tier).Update("is_active", false).Error)

	_, err := m.CreateHold(context.Background(), nil, request(tier.ID, 1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))
}

func TestCreateHoldValidatesRequest(t *testing.T) {
	m, _, _ := newManager(t)
	tierID := uuid.New()

	cases := map[string]HoldRequest{
		"no tier":        {UserID: uuid.New(), Fingerprint: "fp", Quantity: 1},
		"no user":        {TierID: tierID, Fingerprint: "fp", Quantity: 1},
		"no fingerprint": {TierID: tierID, UserID: uuid.New(), Quantity: 1},
		"zero qty":       {TierID: tierID, UserID: uuid.New(), Fingerprint: "fp"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.CreateHold(context.Background(), nil, req)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestConcurrentHoldsNeverOversell(t *testing.T) {
	m, db, _ := newManager(t)
	const available = 25
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, available)

	var (
		wg        sync.WaitGroup
		granted   atomic.Int64
		rejected  atomic.Int64
		unexpects atomic.Int64
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			_, err := m.CreateHold(context.Background(), nil, request(tier.ID, qty))
			switch {
			case err == nil:
				granted.Add(int64(qty))
			case pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock):
				rejected.Add(1)
			default:
				unexpects.Add(1)
			}
		}(1 + i%3)
	}
	wg.Wait()

	require.Zero(t, unexpects.Load())
	assert.LessOrEqual(t, granted.Load(), int64(available))
	assert.Positive(t, rejected.Load())

	got := loadTier(t, db, tier.ID)
	assert.EqualValues(t, granted.Load(), got.ReservedQty)
	assert.GreaterOrEqual(t, got.AvailableQty, 0)
}

func TestReleaseHoldIsIdempotent(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 5)
	ctx := context.Background()

	hold, err := m.CreateHold(ctx, nil, request(tier.ID, 4))
	require.NoError(t, err)

	require.NoError(t, m.ReleaseHold(ctx, nil, hold.ID))
	require.NoError(t, m.ReleaseHold(ctx, nil, hold.ID))

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 5, got.AvailableQty)
	assert.Zero(t, got.ReservedQty)

	stored, err := m.Get(ctx, nil, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusReleased, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)
}

func TestReleaseAfterConvertIsNoop(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 5)
	ctx := context.Background()

	hold, err := m.CreateHold(ctx, nil, request(tier.ID, 2))
	require.NoError(t, err)
	require.NoError(t, m.ConvertHoldToSale(ctx, nil, hold.ID))
	require.NoError(t, m.ReleaseHold(ctx, nil, hold.ID))

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 3, got.AvailableQty)
	assert.Equal(t, 2, got.SoldQty)
}

func TestReleaseMissingHold(t *testing.T) {
	m, _, _ := newManager(t)
	err := m.ReleaseHold(context.Background(), nil, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeHoldNotFound))
}

func TestConvertHoldToSaleIsIdempotent(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 5)
	ctx := context.Background()

	hold, err := m.CreateHold(ctx, nil, request(tier.ID, 2))
	require.NoError(t, err)

	require.NoError(t, m.ConvertHoldToSale(ctx, nil, hold.ID))
	require.NoError(t, m.ConvertHoldToSale(ctx, nil, hold.ID))

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 3, got.AvailableQty)
	assert.Zero(t, got.ReservedQty)
	assert.Equal(t, 2, got.SoldQty)
}

func TestConvertExpiredHoldFailsAndRestoresInventory(t *testing.T) {
	m, db, clock := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 5)
	ctx := context.Background()

	req := request(tier.ID, 2)
	req.TTL = time.Minute
	hold, err := m.CreateHold(ctx, nil, req)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	err = m.ConvertHoldToSale(ctx, nil, hold.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeHoldExpired))

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 5, got.AvailableQty)
	assert.Zero(t, got.SoldQty)

	// a second attempt keeps failing without crediting again
	err = m.ConvertHoldToSale(ctx, nil, hold.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeHoldExpired))
	assert.Equal(t, 5, loadTier(t, db, tier.ID).AvailableQty)
}

func TestConvertMissingHold(t *testing.T) {
	m, _, _ := newManager(t)
	err := m.ConvertHoldToSale(context.Background(), nil, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeHoldNotFound))
}

func TestConvertReleasedHoldFails(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 5)
	ctx := context.Background()

	hold, err := m.CreateHold(ctx, nil, request(tier.ID, 1))
	require.NoError(t, err)
	require.NoError(t, m.ReleaseHold(ctx, nil, hold.ID))

	err = m.ConvertHoldToSale(ctx, nil, hold.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeHoldExpired))
}

func TestLazyExpiryFreesInventoryForNextBuyer(t *testing.T) {
	m, db, clock := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 2)
	ctx := context.Background()

	abandoned := request(tier.ID, 2)
	abandoned.TTL = 10 * time.Minute
	first, err := m.CreateHold(ctx, nil, abandoned)
	require.NoError(t, err)

	_, err = m.CreateHold(ctx, nil, request(tier.ID, 1))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))

	clock.Advance(11 * time.Minute)
	_, err = m.CreateHold(ctx, nil, request(tier.ID, 2))
	require.NoError(t, err)

	var stored models.TicketHold
	require.NoError(t, db.First(&stored, "id = ?", first.ID).Error)
	assert.Equal(t, enums.HoldStatusExpired, stored.Status)

	got := loadTier(t, db, tier.ID)
	assert.Zero(t, got.AvailableQty)
	assert.Equal(t, 2, got.ReservedQty)
}

func TestReleasingPastDueHoldRecordsExpiry(t *testing.T) {
	m, db, clock := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 3)
	ctx := context.Background()

	hold, err := m.CreateHold(ctx, nil, request(tier.ID, 3))
	require.NoError(t, err)
	clock.Advance(DefaultHoldTTL + time.Second)

	got, err := m.Get(ctx, nil, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusExpired, got.Status)

	require.NoError(t, m.ReleaseHold(ctx, nil, hold.ID))
	require.NoError(t, m.ReleaseHold(ctx, nil, hold.ID))

	var stored models.TicketHold
	require.NoError(t, db.First(&stored, "id = ?", hold.ID).Error)
	assert.Equal(t, enums.HoldStatusExpired, stored.Status)
	assert.Equal(t, 3, loadTier(t, db, tier.ID).AvailableQty)
}

func TestSameCheckoutKeyReplacesHold(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 5)
	ctx := context.Background()

	req := request(tier.ID, 2)
	first, err := m.CreateHold(ctx, nil, req)
	require.NoError(t, err)

	req.Quantity = 3
	second, err := m.CreateHold(ctx, nil, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	prev, err := m.Get(ctx, nil, first.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusReleased, prev.Status)

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 2, got.AvailableQty)
	assert.Equal(t, 3, got.ReservedQty)

	// a different fingerprint for the same user is a separate checkout
	other := req
	other.Fingerprint = "second-tab"
	other.Quantity = 1
	_, err = m.CreateHold(ctx, nil, other)
	require.NoError(t, err)
	assert.Equal(t, 4, loadTier(t, db, tier.ID).ReservedQty)
}

func TestReleaseAllRestoresEveryHold(t *testing.T) {
	m, db, _ := newManager(t)
	tierA := dbtest.SeedTier(t, db, uuid.New(), 1000, 5)
	tierB := dbtest.SeedTier(t, db, uuid.New(), 1000, 5)
	ctx := context.Background()

	a, err := m.CreateHold(ctx, nil, request(tierA.ID, 2))
	require.NoError(t, err)
	b, err := m.CreateHold(ctx, nil, request(tierB.ID, 5))
	require.NoError(t, err)

	require.NoError(t, m.ReleaseAll(ctx, []uuid.UUID{a.ID, b.ID}))
	assert.Equal(t, 5, loadTier(t, db, tierA.ID).AvailableQty)
	assert.Equal(t, 5, loadTier(t, db, tierB.ID).AvailableQty)

	err = m.ReleaseAll(ctx, []uuid.UUID{uuid.New()})
	assert.Error(t, err)
}

func TestSellDirect(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 3)
	ctx := context.Background()

	require.NoError(t, m.SellDirect(ctx, nil, tier.ID, 2))
	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 1, got.AvailableQty)
	assert.Equal(t, 2, got.SoldQty)

	err := m.SellDirect(ctx, nil, tier.ID, 2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))
}

func TestDueHoldsAndExpireHold(t *testing.T) {
	m, db, clock := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 6)
	ctx := context.Background()

	short := request(tier.ID, 2)
	short.TTL = time.Minute
	expiring, err := m.CreateHold(ctx, nil, short)
	require.NoError(t, err)
	_, err = m.CreateHold(ctx, nil, request(tier.ID, 1))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	due, err := m.DueHolds(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{expiring.ID}, due)

	moved, err := m.ExpireHold(ctx, expiring.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = m.ExpireHold(ctx, expiring.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 5, got.AvailableQty)
	assert.Equal(t, 1, got.ReservedQty)
}

func TestOperationsComposeInsideCallerTransaction(t *testing.T) {
	m, db, _ := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 4)
	ctx := context.Background()

	hold, err := m.CreateHold(ctx, nil, request(tier.ID, 2))
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := m.ConvertHoldToSale(ctx, tx, hold.ID); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 2, got.ReservedQty)
	assert.Zero(t, got.SoldQty)
}

func TestSweepExpiredReturnsOnlyTransitionedHolds(t *testing.T) {
	m, db, clock := newManager(t)
	tier := dbtest.SeedTier(t, db, uuid.New(), 1000, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := request(tier.ID, 2)
		req.TTL = time.Minute
		_, err := m.CreateHold(ctx, nil, req)
		require.NoError(t, err)
	}
	_, err := m.CreateHold(ctx, nil, request(tier.ID, 1))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	swept, err := m.SweepExpired(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, swept, 2)

	swept, err = m.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, swept, 1)

	got := loadTier(t, db, tier.ID)
	assert.Equal(t, 9, got.AvailableQty)
	assert.Equal(t, 1, got.ReservedQty)
}
