package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// Notification is a buyer inbox entry tied to one order. (order_id, kind) is
// unique so redelivered confirmations never stack duplicates.
type Notification struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID     uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_notifications_order_kind,priority:1"`
	EventID     uuid.UUID              `gorm:"column:event_id;type:uuid;not null;index"`
	Kind        enums.NotificationKind `gorm:"column:kind;type:text;not null;uniqueIndex:ux_notifications_order_kind,priority:2"`
	TicketCount int                    `gorm:"column:ticket_count;not null;default:0"`
	Title       string                 `gorm:"column:title;not null"`
	Message     string                 `gorm:"column:message;not null"`
	Link        *string                `gorm:"column:link"`
	ReadAt      *time.Time             `gorm:"column:read_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	assignID(&n.ID)
	return nil
}
