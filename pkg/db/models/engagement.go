package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RSVP records a free attendance reply.
type RSVP struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EventID   uuid.UUID `gorm:"column:event_id;type:uuid;not null;index"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RSVP) TableName() string { return "rsvps" }

func (r *RSVP) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// Interest records a user marking an event as interesting.
type Interest struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EventID   uuid.UUID `gorm:"column:event_id;type:uuid;not null;index"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *Interest) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// GuestTicket is a comped guest-list entry issued by the organizer.
type GuestTicket struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	EventID   uuid.UUID  `gorm:"column:event_id;type:uuid;not null;index"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid"`
	GuestName string     `gorm:"column:guest_name;not null"`
	Email     string     `gorm:"column:email;not null"`
	Quantity  int        `gorm:"column:quantity;not null;default:1"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (g *GuestTicket) BeforeCreate(*gorm.DB) error {
	assignID(&g.ID)
	return nil
}
