package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

const (
	defaultInboxRetention = 30 * 24 * time.Hour
	retentionCadence      = time.Hour
)

type inboxPruner interface {
	DeleteReadForPastEvents(ctx context.Context, tx *gorm.DB, startedBefore time.Time) (int64, error)
}

// NotificationCleanupJobParams configure the inbox purge. Retention counts
// from the event's start, so receipts for upcoming events are never purged.
type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository inboxPruner
	Retention  time.Duration
}

func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("notifications repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultInboxRetention
	}
	return &notificationCleanupJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

// notificationCleanupJob drops read receipts and refund notices once their
// event is retention in the past.
type notificationCleanupJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      inboxPruner
	retention time.Duration
	now       func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Every() time.Duration { return retentionCadence }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	startedBefore := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = j.repo.DeleteReadForPastEvents(ctx, tx, startedBefore)
		return err
	})
	if err != nil {
		return fmt.Errorf("notification cleanup: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"events_started_before": startedBefore,
		"retention":             j.retention.String(),
		"rows_deleted":          deleted,
	}), "inbox entries for past events purged")
	return nil
}
