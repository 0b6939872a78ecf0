// Package activity appends audit rows to activity_logs. Recording never
// fails the caller: write errors are logged and dropped.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

const writeTimeout = 3 * time.Second

// Entry is one audit record. IPAddress and UserAgent fall back to the request
// metadata carried by ctx when left empty.
type Entry struct {
	EventType          enums.ActivityEventType
	Category           enums.ActivityCategory
	Description        string
	ActorID            *uuid.UUID
	TargetResourceType string
	TargetResourceID   string
	TargetResourceName string
	Metadata           map[string]any
	IPAddress          string
	UserAgent          string
}

// Recorder is the write side used by services.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Sink persists entries through gorm.
type Sink struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewSink(db *gorm.DB, logg *logger.Logger) *Sink {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Sink{db: db, logg: logg}
}

// Record writes entry synchronously. The write is detached from ctx
// cancellation so an audit row still lands after the client disconnects.
func (s *Sink) Record(ctx context.Context, entry Entry) {
	if s == nil || s.db == nil {
		return
	}
	row, err := toRow(ctx, entry)
	if err != nil {
		s.logg.Error(ctx, "encode activity metadata", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := s.db.WithContext(writeCtx).Create(&row).Error; err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"activity_event": string(entry.EventType),
			"target_id":      entry.TargetResourceID,
		})
		s.logg.Error(logCtx, "record activity", err)
	}
}

func toRow(ctx context.Context, entry Entry) (models.ActivityLog, error) {
	meta := RequestMetaFromContext(ctx)
	if entry.IPAddress == "" {
		entry.IPAddress = meta.IPAddress
	}
	if entry.UserAgent == "" {
		entry.UserAgent = meta.UserAgent
	}
	if entry.Category == "" {
		entry.Category = entry.EventType.Category()
	}

	row := models.ActivityLog{
		EventType:          entry.EventType,
		Category:           entry.Category,
		Description:        entry.Description,
		ActorID:            entry.ActorID,
		TargetResourceType: entry.TargetResourceType,
		TargetResourceID:   entry.TargetResourceID,
		TargetResourceName: entry.TargetResourceName,
		IPAddress:          entry.IPAddress,
		UserAgent:          entry.UserAgent,
	}
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return models.ActivityLog{}, err
		}
		row.Metadata = raw
	}
	return row, nil
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
