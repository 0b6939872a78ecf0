package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// Order is one checkout. TotalCents == SubtotalCents + FeesCents.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	EventID          uuid.UUID         `gorm:"column:event_id;type:uuid;not null;index"`
	SubtotalCents    int64             `gorm:"column:subtotal_cents;not null"`
	FeesCents        int64             `gorm:"column:fees_cents;not null"`
	TotalCents       int64             `gorm:"column:total_cents;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	GatewaySessionID *string           `gorm:"column:gateway_session_id;uniqueIndex"`
	CompletedAt      *time.Time        `gorm:"column:completed_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
