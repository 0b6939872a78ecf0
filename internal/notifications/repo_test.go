package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

var inboxBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedEventAt(t *testing.T, conn *gorm.DB, startsAt time.Time) models.Event {
	t.Helper()
	event := models.Event{OrganizerID: uuid.New(), Name: "Launch Night", Status: enums.EventStatusPublished, StartsAt: startsAt}
	require.NoError(t, conn.Create(&event).Error)
	return event
}

func seedReceipts(t *testing.T, repo Repository, userID, eventID uuid.UUID, n int) []models.Notification {
	t.Helper()
	out := make([]models.Notification, 0, n)
	for i := 0; i < n; i++ {
		row := models.Notification{
			UserID:      userID,
			OrderID:     uuid.New(),
			EventID:     eventID,
			Kind:        enums.NotificationReceipt,
			TicketCount: 1,
			Title:       "You're going to Launch Night",
			Message:     "1 ticket confirmed.",
			CreatedAt:   inboxBase.Add(time.Duration(i) * time.Minute),
		}
		created, err := repo.CreateOnce(context.Background(), &row)
		require.NoError(t, err)
		require.True(t, created)
		out = append(out, row)
	}
	return out
}

func TestRepositoryCreateOnceIsPerOrderAndKind(t *testing.T) {
	conn := dbtest.New(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	orderID, userID, eventID := uuid.New(), uuid.New(), uuid.New()

	receipt := func() *models.Notification {
		return &models.Notification{UserID: userID, OrderID: orderID, EventID: eventID, Kind: enums.NotificationReceipt, Title: "r", Message: "m"}
	}
	created, err := repo.CreateOnce(ctx, receipt())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateOnce(ctx, receipt())
	require.NoError(t, err)
	assert.False(t, created)

	created, err = repo.CreateOnce(ctx, &models.Notification{UserID: userID, OrderID: orderID, EventID: eventID, Kind: enums.NotificationRefundPending, Title: "r", Message: "m"})
	require.NoError(t, err)
	assert.True(t, created, "a refund notice sits beside the receipt")

	var n int64
	require.NoError(t, conn.Model(&models.Notification{}).Where("order_id = ?", orderID).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestRepositoryListPagesNewestFirst(t *testing.T) {
	conn := dbtest.New(t)
	repo := NewRepository(conn)
	userID := uuid.New()
	rows := seedReceipts(t, repo, userID, uuid.New(), 3)
	seedReceipts(t, repo, uuid.New(), uuid.New(), 2)
	ctx := context.Background()

	page, next, err := repo.List(ctx, listNotificationsParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, rows[2].ID, page[0].ID)
	assert.Equal(t, rows[1].ID, page[1].ID)
	require.NotNil(t, next)
	assert.Equal(t, rows[0].ID, next.ID)

	page, next, err = repo.List(ctx, listNotificationsParams{UserID: userID, Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, rows[0].ID, page[0].ID)
	assert.Nil(t, next)
}

func TestRepositoryListFiltersByKindAndEvent(t *testing.T) {
	conn := dbtest.New(t)
	repo := NewRepository(conn)
	userID, eventA, eventB := uuid.New(), uuid.New(), uuid.New()
	seedReceipts(t, repo, userID, eventA, 2)
	seedReceipts(t, repo, userID, eventB, 1)
	refund := models.Notification{UserID: userID, OrderID: uuid.New(), EventID: eventA, Kind: enums.NotificationRefundPending, Title: "r", Message: "m"}
	_, err := repo.CreateOnce(context.Background(), &refund)
	require.NoError(t, err)

	page, _, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, EventID: eventA})
	require.NoError(t, err)
	assert.Len(t, page, 3)

	page, _, err = repo.List(context.Background(), listNotificationsParams{UserID: userID, Kind: enums.NotificationRefundPending})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, refund.ID, page[0].ID)
}

func TestRepositoryOrderTicketsScopedToBuyer(t *testing.T) {
	conn := dbtest.New(t)
	repo := NewRepository(conn)
	buyer, orderA, orderB := uuid.New(), uuid.New(), uuid.New()
	for _, ticket := range []models.Ticket{
		{OrderID: orderA, OrderItemID: uuid.New(), EventID: uuid.New(), TierID: uuid.New(), UserID: buyer, QRToken: "a1", Status: enums.TicketStatusValid},
		{OrderID: orderA, OrderItemID: uuid.New(), EventID: uuid.New(), TierID: uuid.New(), UserID: buyer, QRToken: "a2", Status: enums.TicketStatusUsed},
		{OrderID: orderB, OrderItemID: uuid.New(), EventID: uuid.New(), TierID: uuid.New(), UserID: uuid.New(), QRToken: "b1", Status: enums.TicketStatusValid},
	} {
		require.NoError(t, conn.Create(&ticket).Error)
	}

	byOrder, err := repo.OrderTickets(context.Background(), buyer, []uuid.UUID{orderA, orderB})
	require.NoError(t, err)
	assert.Len(t, byOrder[orderA], 2)
	assert.Empty(t, byOrder[orderB], "another buyer's tickets never show up")
	for _, ticket := range byOrder[orderA] {
		assert.Empty(t, ticket.QRToken, "tokens are not read for the inbox")
	}
}

func TestRepositoryMarkReadScopedToUser(t *testing.T) {
	conn := dbtest.New(t)
	repo := NewRepository(conn)
	owner := uuid.New()
	rows := seedReceipts(t, repo, owner, uuid.New(), 3)
	ctx := context.Background()
	now := time.Now().UTC()

	res, err := repo.MarkRead(ctx, uuid.New(), rows[0].ID, now)
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = repo.MarkRead(ctx, owner, rows[0].ID, now)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Updated)

	res, err = repo.MarkRead(ctx, owner, rows[0].ID, now)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Updated)

	marked, err := repo.MarkOrderRead(ctx, uuid.New(), rows[1].OrderID, now)
	require.NoError(t, err)
	assert.Zero(t, marked)
	marked, err = repo.MarkOrderRead(ctx, owner, rows[1].OrderID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	unread, err := repo.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	updated, err := repo.MarkAllRead(ctx, owner, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	unread, err = repo.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestRepositoryDeleteReadForPastEvents(t *testing.T) {
	conn := dbtest.New(t)
	repo := NewRepository(conn)
	owner := uuid.New()
	ctx := context.Background()
	cutoff := inboxBase

	past := seedEventAt(t, conn, cutoff.Add(-48*time.Hour))
	upcoming := seedEventAt(t, conn, cutoff.Add(48*time.Hour))
	pastRows := seedReceipts(t, repo, owner, past.ID, 2)
	upcomingRows := seedReceipts(t, repo, owner, upcoming.ID, 1)

	_, err := repo.MarkRead(ctx, owner, pastRows[0].ID, inboxBase)
	require.NoError(t, err)
	_, err = repo.MarkRead(ctx, owner, upcomingRows[0].ID, inboxBase)
	require.NoError(t, err)

	deleted, err := repo.DeleteReadForPastEvents(ctx, nil, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.Notification
	require.NoError(t, conn.Where("user_id = ?", owner).Find(&remaining).Error)
	ids := make([]uuid.UUID, 0, len(remaining))
	for _, row := range remaining {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{pastRows[1].ID, upcomingRows[0].ID}, ids)
}
