// Package dbtest opens isolated in-memory sqlite databases carrying the full
// gatepass schema.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// AllModels lists every table the service owns.
func AllModels() []any {
	return models.All()
}

// New returns a migrated database private to the calling test. All access is
// funneled through one connection, so concurrent callers queue on the pool.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:gatepass_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// SeedTier inserts an active tier with all inventory available.
func SeedTier(t testing.TB, conn *gorm.DB, eventID uuid.UUID, priceCents int64, qty int) models.TicketTier {
	t.Helper()
	tier := models.TicketTier{
		EventID:      eventID,
		Name:         "General Admission",
		PriceCents:   priceCents,
		TotalQty:     qty,
		AvailableQty: qty,
		IsActive:     true,
	}
	if err := conn.Create(&tier).Error; err != nil {
		t.Fatalf("seed tier: %v", err)
	}
	return tier
}

// SeedEvent inserts an event with the given status.
func SeedEvent(t testing.TB, conn *gorm.DB, status enums.EventStatus) models.Event {
	t.Helper()
	event := models.Event{
		OrganizerID: uuid.New(),
		Name:        "Launch Night",
		Status:      status,
		StartsAt:    time.Now().UTC().Add(72 * time.Hour),
	}
	if err := conn.Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}
