package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gatepass-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

type fulfiller interface {
	FulfillPaidOrder(ctx context.Context, orderID uuid.UUID, sessionID string) (*checkout.FulfillmentResult, error)
	CancelSession(ctx context.Context, orderID uuid.UUID, sessionID string) (bool, error)
}

type ServiceParams struct {
	Fulfiller fulfiller
	Logger    *logger.Logger
}

// Service turns Stripe checkout session events into order transitions.
type Service struct {
	fulfiller fulfiller
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Fulfiller == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fulfiller required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{fulfiller: params.Fulfiller, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		sess, orderID, err := decodeSession(event)
		if err != nil {
			return err
		}
		if !sessionPaid(sess) {
			// async methods settle later through async_payment_succeeded
			s.logg.Info(ctx, fmt.Sprintf("checkout session %s completed unpaid, awaiting settlement", sess.ID))
			return nil
		}
		result, err := s.fulfiller.FulfillPaidOrder(ctx, orderID, sess.ID)
		if err != nil {
			return s.acknowledgeTerminal(ctx, event, err)
		}
		s.logg.Info(ctx, fmt.Sprintf("order %s fulfillment outcome %s", result.OrderID, result.Outcome))
		return nil
	case stripe.EventTypeCheckoutSessionExpired,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		sess, orderID, err := decodeSession(event)
		if err != nil {
			return err
		}
		cancelled, err := s.fulfiller.CancelSession(ctx, orderID, sess.ID)
		if err != nil {
			return s.acknowledgeTerminal(ctx, event, err)
		}
		if cancelled {
			s.logg.Info(ctx, fmt.Sprintf("order %s cancelled after %s", orderID, event.Type))
		}
		return nil
	default:
		return nil
	}
}

// acknowledgeTerminal swallows errors a redelivery cannot fix so Stripe stops
// retrying the event.
func (s *Service) acknowledgeTerminal(ctx context.Context, event *stripe.Event, err error) error {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNotFound, pkgerrors.CodeConflict, pkgerrors.CodeValidation:
		s.logg.Warn(ctx, fmt.Sprintf("stripe event %s (%s) ignored: %v", event.ID, event.Type, err))
		return nil
	default:
		return err
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, uuid.UUID, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if sess.ID == "" {
		return nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	orderID, err := OrderIDFromSession(&sess)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return &sess, orderID, nil
}

// OrderIDFromSession reads the order id from session metadata, falling back
// to the client reference id. Expired sessions may resolve by session id
// alone, so a missing id yields uuid.Nil without error.
func OrderIDFromSession(sess *stripe.CheckoutSession) (uuid.UUID, error) {
	raw := strings.TrimSpace(sess.Metadata[checkout.MetadataOrderID])
	if raw == "" {
		raw = strings.TrimSpace(sess.ClientReferenceID)
	}
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id in session metadata")
	}
	return id, nil
}

func sessionPaid(sess *stripe.CheckoutSession) bool {
	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid,
		stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return true
	default:
		return false
	}
}
