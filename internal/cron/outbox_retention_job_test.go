package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

func TestOutboxRetentionJobPrunesBothTables(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}
	job := newOutboxRetentionJob(t, pruner, pruner, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultOutboxRetention); !pruner.outboxCutoff.Equal(want) {
		t.Fatalf("expected outbox cutoff %s, got %s", want, pruner.outboxCutoff)
	}
	if want := now.Add(-defaultDLQRetention); !pruner.dlqCutoff.Equal(want) {
		t.Fatalf("expected dlq cutoff %s, got %s", want, pruner.dlqCutoff)
	}
	if pruner.minAttempts != outboxMinAttempts {
		t.Fatalf("expected min attempts %d, got %d", outboxMinAttempts, pruner.minAttempts)
	}
}

func TestOutboxRetentionJobHonoursConfiguredRetention(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}
	job := newOutboxRetentionJob(t, pruner, nil, 48*time.Hour)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-48 * time.Hour); !pruner.outboxCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, pruner.outboxCutoff)
	}
	if !pruner.dlqCutoff.IsZero() {
		t.Fatal("dlq should not be pruned without a dlq repository")
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	pruner := &fakePruner{dlqErr: errors.New("boom")}
	job := newOutboxRetentionJob(t, pruner, pruner, 0)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newOutboxRetentionJob(t *testing.T, outbox outboxPruner, dlq dlqPruner, retention time.Duration) *outboxRetentionJob {
	t.Helper()
	params := OutboxRetentionJobParams{
		Logger:    logger.Nop(),
		DB:        passthroughTx{},
		Outbox:    outbox,
		Retention: retention,
	}
	if dlq != nil {
		params.DLQ = dlq
	}
	jobIface, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakePruner struct {
	outboxCutoff time.Time
	dlqCutoff    time.Time
	minAttempts  int
	dlqErr       error
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.outboxCutoff = cutoff
	f.minAttempts = minAttemptCount
	return 7, nil
}

func (f *fakePruner) DeleteFailedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.dlqCutoff = cutoff
	return 2, f.dlqErr
}
