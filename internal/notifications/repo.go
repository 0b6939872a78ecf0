package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/pagination"
)

// Repository persists the buyer inbox. Every row belongs to one order.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOnce(ctx context.Context, notification *models.Notification) (bool, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error)
	OrderTickets(ctx context.Context, userID uuid.UUID, orderIDs []uuid.UUID) (map[uuid.UUID][]models.Ticket, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkOrderRead(ctx context.Context, userID, orderID uuid.UUID, now time.Time) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	DeleteReadForPastEvents(ctx context.Context, tx *gorm.DB, startedBefore time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
	Kind       enums.NotificationKind
	EventID    uuid.UUID
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// CreateOnce inserts the notification unless the order already has one of
// the same kind. It reports whether a row was written.
func (r *repositoryImpl) CreateOnce(ctx context.Context, notification *models.Notification) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(notification)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repositoryImpl) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", params.UserID)
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if params.Kind != "" {
		query = query.Where("kind = ?", params.Kind)
	}
	if params.EventID != uuid.Nil {
		query = query.Where("event_id = ?", params.EventID)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) <= normalized {
		return rows, nil, nil
	}
	next := rows[normalized]
	return rows[:normalized], &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
}

// OrderTickets loads the caller's tickets for a page of orders in one query,
// grouped by order.
func (r *repositoryImpl) OrderTickets(ctx context.Context, userID uuid.UUID, orderIDs []uuid.UUID) (map[uuid.UUID][]models.Ticket, error) {
	out := make(map[uuid.UUID][]models.Ticket, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Select("id", "order_id", "event_id", "tier_id", "status", "used_at", "created_at").
		Where("user_id = ? AND order_id IN ?", userID, orderIDs).
		Order("created_at ASC, id ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		out[t.OrderID] = append(out[t.OrderID], t)
	}
	return out, nil
}

func (r *repositoryImpl) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
		UpdateColumn("read_at", now)
	if res.Error != nil {
		return notificationMarkResult{}, res.Error
	}
	if res.RowsAffected > 0 {
		return notificationMarkResult{Updated: true, Found: true}, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Count(&count).Error; err != nil {
		return notificationMarkResult{}, err
	}
	return notificationMarkResult{Found: count > 0}, nil
}

// MarkOrderRead clears every unread entry for one of the caller's orders.
func (r *repositoryImpl) MarkOrderRead(ctx context.Context, userID, orderID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("order_id = ? AND user_id = ? AND read_at IS NULL", orderID, userID).
		UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteReadForPastEvents purges read entries whose event started before the
// cutoff. Entries for upcoming events stay because they carry the buyer's
// ticket links; unread entries stay regardless.
func (r *repositoryImpl) DeleteReadForPastEvents(ctx context.Context, tx *gorm.DB, startedBefore time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	past := db.Model(&models.Event{}).Select("id").Where("starts_at < ?", startedBefore)
	res := db.WithContext(ctx).
		Where("read_at IS NOT NULL AND event_id IN (?)", past).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
