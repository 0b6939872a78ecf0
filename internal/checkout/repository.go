package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// Repository exposes the order, catalog, and ticket queries checkout needs.
// Finders return (nil, nil) when the row does not exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	FindActiveTier(ctx context.Context, eventID, tierID uuid.UUID) (*models.TicketTier, error)
	FindActiveProduct(ctx context.Context, eventID, productID uuid.UUID) (*models.Product, error)
	FindTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error)
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	CompletePending(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error)
	CancelPending(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error)
	SetGatewaySession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	CreateTickets(ctx context.Context, tickets []models.Ticket) error
	GrantEntitlement(ctx context.Context, entitlement *models.ContentEntitlement) error
	StalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository backed by db.
func NewRepository(db *gorm.DB) Repository {
	if db == nil {
		return nil
	}
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	return firstOrNil(&event, r.db.WithContext(ctx).Where("id = ?", eventID).First(&event).Error)
}

func (r *repository) FindActiveTier(ctx context.Context, eventID, tierID uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := r.db.WithContext(ctx).
		Where("id = ? AND event_id = ? AND is_active = ?", tierID, eventID, true).
		First(&tier).Error
	return firstOrNil(&tier, err)
}

func (r *repository) FindActiveProduct(ctx context.Context, eventID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND event_id = ? AND is_active = ?", productID, eventID, true).
		First(&product).Error
	return firstOrNil(&product, err)
}

func (r *repository) FindTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	return firstOrNil(&tier, r.db.WithContext(ctx).Where("id = ?", tierID).First(&tier).Error)
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	return firstOrNil(&user, r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error)
}

// CreateOrder inserts the order and its items. Callers pass a transactional
// repository so both inserts commit together.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(order).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	return db.Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	return firstOrNil(&order, r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error)
}

func (r *repository) FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("gateway_session_id = ?", sessionID).First(&order).Error
	return firstOrNil(&order, err)
}

func (r *repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// CompletePending flips a pending order to completed. It reports false when
// the order was not pending, which makes completion happen at most once.
func (r *repository) CompletePending(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	return r.transitionPending(ctx, orderID, map[string]any{
		"status":       enums.OrderStatusCompleted,
		"completed_at": now,
		"updated_at":   now,
	})
}

func (r *repository) CancelPending(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	return r.transitionPending(ctx, orderID, map[string]any{
		"status":     enums.OrderStatusCancelled,
		"updated_at": now,
	})
}

func (r *repository) transitionPending(ctx context.Context, orderID uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetGatewaySession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("gateway_session_id", sessionID).Error
}

func (r *repository) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tickets).Error
}

// GrantEntitlement is a no-op when the user already holds the content.
func (r *repository) GrantEntitlement(ctx context.Context, entitlement *models.ContentEntitlement) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}},
			DoNothing: true,
		}).
		Create(entitlement).Error
}

func (r *repository) StalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func firstOrNil[T any](row *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}
