package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// OrderItem snapshots the pricing of one cart line. Exactly one of TierID and
// ProductID is set, matching ItemType.
type OrderItem struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	ItemType       enums.OrderItemType `gorm:"column:item_type;type:text;not null"`
	TierID         *uuid.UUID          `gorm:"column:tier_id;type:uuid"`
	ProductID      *uuid.UUID          `gorm:"column:product_id;type:uuid"`
	HoldID         *uuid.UUID          `gorm:"column:hold_id;type:uuid"`
	Quantity       int                 `gorm:"column:quantity;not null"`
	UnitPriceCents int64               `gorm:"column:unit_price_cents;not null"`
	UnitFeeCents   int64               `gorm:"column:unit_fee_cents;not null;default:0"`
	SubtotalCents  int64               `gorm:"column:subtotal_cents;not null"`
	FeesCents      int64               `gorm:"column:fees_cents;not null;default:0"`
	TotalCents     int64               `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
