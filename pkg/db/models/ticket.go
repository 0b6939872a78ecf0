package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// Ticket is one admission unit. QRToken is the encoded payload handed to the
// holder; its signature is recomputed on every verification.
type Ticket struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID uuid.UUID          `gorm:"column:order_item_id;type:uuid;not null;index"`
	EventID     uuid.UUID          `gorm:"column:event_id;type:uuid;not null;index"`
	TierID      uuid.UUID          `gorm:"column:tier_id;type:uuid;not null"`
	UserID      uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	QRToken     string             `gorm:"column:qr_token;not null"`
	Status      enums.TicketStatus `gorm:"column:status;type:text;not null;default:'valid'"`
	UsedAt      *time.Time         `gorm:"column:used_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (t *Ticket) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
