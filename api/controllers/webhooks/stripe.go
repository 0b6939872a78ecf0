package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gatepass-backend/api/responses"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/gatepass-backend/pkg/stripe"
)

// maxWebhookBody matches the payload ceiling Stripe documents for events.
const maxWebhookBody = 65536

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// EventVerifier authenticates a raw delivery and decodes it.
type EventVerifier interface {
	VerifyEvent(payload []byte, header string) (stripe.Event, error)
}

// EventGuard marks an event id as processed. Delete forgets it so a failed
// delivery can be retried.
type EventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// StripeWebhook verifies and dispatches Stripe checkout session events.
// Duplicate deliveries are acknowledged without reprocessing; a failed
// delivery answers non-2xx and is released so Stripe's retry runs it again.
func StripeWebhook(svc StripeWebhookService, verifier EventVerifier, guard EventGuard, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}
		event, err := verifier.VerifyEvent(payload, sigHeader)
		if err != nil {
			code := pkgerrors.CodeDependency
			if errors.Is(err, pkgstripe.ErrInvalidSignature) {
				code = pkgerrors.CodeValidation
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(code, err, "verify stripe signature"))
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			logg.Debug(ctx, "duplicate stripe event acknowledged")
			responses.WriteSuccess(w, map[string]bool{"received": true, "duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if delErr := guard.Delete(ctx, event.ID); delErr != nil {
				logg.Error(ctx, "release stripe event guard", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(ctx, "stripe event processed")
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
