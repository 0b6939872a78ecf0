package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContentEntitlement grants a buyer access to content bundled with a tier.
type ContentEntitlement struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_content_entitlements_user_content"`
	ContentID uuid.UUID `gorm:"column:content_id;type:uuid;not null;uniqueIndex:ux_content_entitlements_user_content"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *ContentEntitlement) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
