package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// TicketHold reserves Quantity units of a tier for one checkout attempt.
type TicketHold struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TierID      uuid.UUID        `gorm:"column:tier_id;type:uuid;not null;index:idx_ticket_holds_key"`
	UserID      uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index:idx_ticket_holds_key"`
	Fingerprint string           `gorm:"column:fingerprint;not null;index:idx_ticket_holds_key"`
	Quantity    int              `gorm:"column:quantity;not null"`
	Status      enums.HoldStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt   time.Time        `gorm:"column:expires_at;not null;index"`
	ResolvedAt  *time.Time       `gorm:"column:resolved_at"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (h *TicketHold) BeforeCreate(*gorm.DB) error {
	assignID(&h.ID)
	return nil
}

// IsPastDue reports whether an active hold has outlived its TTL at now.
func (h TicketHold) IsPastDue(now time.Time) bool {
	return h.Status == enums.HoldStatusActive && !now.Before(h.ExpiresAt)
}
