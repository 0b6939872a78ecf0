package cron

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Periodic is implemented by jobs that should run less often than the
// service's tick.
type Periodic interface {
	Every() time.Duration
}
