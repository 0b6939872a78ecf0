package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// Event is the ticketed occasion that tiers, products, and attendees hang off.
type Event struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrganizerID uuid.UUID         `gorm:"column:organizer_id;type:uuid;not null"`
	Name        string            `gorm:"column:name;not null"`
	Status      enums.EventStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	StartsAt    time.Time         `gorm:"column:starts_at;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *Event) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
