package activity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gatepass-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

func TestRecordPersistsEntryWithRequestMeta(t *testing.T) {
	conn := dbtest.New(t)
	sink := NewSink(conn, logger.Nop())
	actor := uuid.New()
	ctx := WithRequestMeta(context.Background(), RequestMeta{IPAddress: "203.0.113.7", UserAgent: "scanner/2.1"})

	sink.Record(ctx, Entry{
		EventType:          enums.ActivityTicketScanned,
		Description:        "Ticket admitted",
		ActorID:            &actor,
		TargetResourceType: "ticket",
		TargetResourceID:   "t-1",
		Metadata:           map[string]any{"gate": "north"},
	})

	var rows []models.ActivityLog
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, enums.ActivityCategoryAccess, row.Category)
	assert.Equal(t, "203.0.113.7", row.IPAddress)
	assert.Equal(t, "scanner/2.1", row.UserAgent)
	require.NotNil(t, row.ActorID)
	assert.Equal(t, actor, *row.ActorID)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(row.Metadata, &meta))
	assert.Equal(t, "north", meta["gate"])
}

func TestRecordExplicitFieldsWin(t *testing.T) {
	conn := dbtest.New(t)
	sink := NewSink(conn, nil)
	ctx := WithRequestMeta(context.Background(), RequestMeta{IPAddress: "10.0.0.1"})

	sink.Record(ctx, Entry{
		EventType:   enums.ActivityHoldsSwept,
		Category:    enums.ActivityCategorySales,
		Description: "sweep",
		IPAddress:   "127.0.0.1",
	})

	var row models.ActivityLog
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, "127.0.0.1", row.IPAddress)
	assert.Equal(t, enums.ActivityCategorySales, row.Category)
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	conn := dbtest.New(t)
	sink := NewSink(conn, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink.Record(ctx, Entry{EventType: enums.ActivityOrderCompleted, Description: "done"})

	var count int64
	require.NoError(t, conn.Model(&models.ActivityLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordSwallowsWriteErrors(t *testing.T) {
	conn := dbtest.New(t)
	require.NoError(t, conn.Migrator().DropTable(&models.ActivityLog{}))
	sink := NewSink(conn, logger.Nop())

	assert.NotPanics(t, func() {
		sink.Record(context.Background(), Entry{EventType: enums.ActivityOrderCompleted, Description: "lost"})
	})
}
