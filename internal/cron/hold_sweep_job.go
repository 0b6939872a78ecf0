package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox/payloads"
)

const defaultSweepBatch = 500

type holdSweeper interface {
	SweepExpired(ctx context.Context, limit int) ([]uuid.UUID, error)
	DueHolds(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// HoldSweepJobParams configure the expired hold sweeper.
type HoldSweepJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Holds     holdSweeper
	Outbox    outboxEmitter
	BatchSize int
}

// NewHoldSweepJob builds the job that returns past-due holds to inventory.
// Reads already expire holds lazily; the sweep covers tiers nobody reads.
func NewHoldSweepJob(params HoldSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Holds == nil {
		return nil, fmt.Errorf("hold sweeper required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &holdSweepJob{
		logg:   params.Logger,
		db:     params.DB,
		holds:  params.Holds,
		outbox: params.Outbox,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type holdSweepJob struct {
	logg   *logger.Logger
	db     txRunner
	holds  holdSweeper
	outbox outboxEmitter
	batch  int
	now    func() time.Time
}

func (j *holdSweepJob) Name() string { return "hold-sweep" }

func (j *holdSweepJob) Run(ctx context.Context) error {
	swept, sweepErr := j.holds.SweepExpired(ctx, j.batch)

	var remaining int
	if len(swept) == j.batch {
		due, err := j.holds.DueHolds(ctx, j.batch)
		if err != nil {
			sweepErr = multierr.Append(sweepErr, err)
		}
		remaining = len(due)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"holds_expired": len(swept),
		"remaining":     remaining,
		"batch_size":    j.batch,
	})
	if len(swept) == 0 {
		j.logg.Debug(logCtx, "no holds due")
		return sweepErr
	}

	sweptAt := j.now().UTC()
	emitErr := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventHoldsExpired,
			AggregateType: enums.AggregateHold,
			AggregateID:   uuid.New(),
			OccurredAt:    sweptAt,
			Data: payloads.HoldsExpiredEvent{
				HoldIDs:   swept,
				SweptAt:   sweptAt,
				Remaining: remaining,
			},
		})
	})
	if emitErr != nil {
		sweepErr = multierr.Append(sweepErr, fmt.Errorf("emit holds expired: %w", emitErr))
	}
	j.logg.Info(logCtx, "hold sweep complete")
	return sweepErr
}
