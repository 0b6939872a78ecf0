package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

const (
	defaultPendingOrderTTL  = 2 * time.Hour
	defaultPendingBatchSize = 100
	orderTTLCadence         = 5 * time.Minute
)

// OrderTTLJobParams configure the pending order scheduler.
type OrderTTLJobParams struct {
	Logger    *logger.Logger
	Orders    staleOrderCanceller
	TTL       time.Duration
	BatchSize int
}

type staleOrderCanceller interface {
	CancelStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewOrderTTLJob builds the cron job that cancels orders whose payment never
// completed. Cancelling releases their holds and voids their tickets.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPendingBatchSize
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders staleOrderCanceller
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Every() time.Duration { return orderTTLCadence }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	cancelled, err := j.orders.CancelStalePending(ctx, cutoff, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"orders_cancelled": cancelled,
	})
	if err != nil {
		return fmt.Errorf("cancel stale orders: %w", err)
	}
	if cancelled > 0 {
		j.logg.Info(logCtx, "stale pending orders cancelled")
	}
	return nil
}
