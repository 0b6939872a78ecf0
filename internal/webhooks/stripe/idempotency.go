package stripewebhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/gatepass-backend/pkg/outbox/idempotency"
)

// Consumer names the webhook in processed-event keys.
const Consumer = "stripe-webhook"

// IdempotencyGuard remembers Stripe event ids so redeliveries are skipped.
type IdempotencyGuard struct {
	manager  *idempotency.Manager
	consumer string
}

func NewIdempotencyGuard(manager *idempotency.Manager, consumer string) (*IdempotencyGuard, error) {
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if consumer == "" {
		consumer = Consumer
	}
	return &IdempotencyGuard{manager: manager, consumer: consumer}, nil
}

// CheckAndMark reports whether eventID was already processed, marking it
// otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	seen, err := g.manager.CheckAndMarkProcessed(ctx, g.consumer, eventID)
	if err != nil {
		return false, fmt.Errorf("check stripe event %q: %w", eventID, err)
	}
	return seen, nil
}

// Delete forgets eventID so the next delivery is handled again.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	return g.manager.Delete(ctx, g.consumer, eventID)
}
