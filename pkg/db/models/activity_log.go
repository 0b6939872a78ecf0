package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// ActivityLog is an append-only audit row.
type ActivityLog struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	EventType          enums.ActivityEventType `gorm:"column:event_type;type:text;not null"`
	Category           enums.ActivityCategory  `gorm:"column:category;type:text;not null"`
	Description        string                  `gorm:"column:description;not null"`
	ActorID            *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	TargetResourceType string                  `gorm:"column:target_resource_type"`
	TargetResourceID   string                  `gorm:"column:target_resource_id"`
	TargetResourceName string                  `gorm:"column:target_resource_name"`
	Metadata           json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	IPAddress          string                  `gorm:"column:ip_address"`
	UserAgent          string                  `gorm:"column:user_agent"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (a *ActivityLog) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
