package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketTier is a priced ticket category with its own inventory pool.
// AvailableQty + ReservedQty + SoldQty always equals TotalQty.
type TicketTier struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	EventID          uuid.UUID  `gorm:"column:event_id;type:uuid;not null;index"`
	Name             string     `gorm:"column:name;not null"`
	PriceCents       int64      `gorm:"column:price_cents;not null"`
	FeeFlatCents     int64      `gorm:"column:fee_flat_cents;not null;default:0"`
	FeePctBps        int64      `gorm:"column:fee_pct_bps;not null;default:0"`
	TotalQty         int        `gorm:"column:total_qty;not null"`
	AvailableQty     int        `gorm:"column:available_qty;not null"`
	ReservedQty      int        `gorm:"column:reserved_qty;not null;default:0"`
	SoldQty          int        `gorm:"column:sold_qty;not null;default:0"`
	IsActive         bool       `gorm:"column:is_active;not null;default:true"`
	TierOrder        int        `gorm:"column:tier_order;not null;default:0"`
	BundledContentID *uuid.UUID `gorm:"column:bundled_content_id;type:uuid"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *TicketTier) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
