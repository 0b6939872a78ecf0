package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/internal/activity"
	"github.com/angelmondragon/gatepass-backend/internal/notifications"
	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

// FulfillmentOutcome describes what a payment confirmation did to its order.
type FulfillmentOutcome string

const (
	OutcomeCompleted        FulfillmentOutcome = "completed"
	OutcomeAlreadyCompleted FulfillmentOutcome = "already_completed"
	OutcomeRefundRequired   FulfillmentOutcome = "refund_required"
)

// FulfillmentResult is returned by FulfillPaidOrder.
type FulfillmentResult struct {
	OrderID   uuid.UUID
	Outcome   FulfillmentOutcome
	TicketIDs []uuid.UUID
}

var errSoldOut = errors.New("inventory exhausted before payment confirmed")

// FulfillerParams wires the Fulfiller. Receipts, Refunds and Activity are
// optional.
type FulfillerParams struct {
	Tx       txRunner
	Repo     Repository
	Holds    holdManager
	Signer   ticketSigner
	Outbox   outboxPublisher
	Receipts receiptSender
	Refunds  refundNotifier
	Activity activity.Recorder
	Logger   *logger.Logger
	Currency string
	Now      func() time.Time
}

// Fulfiller completes paid orders on payment confirmation and cancels the
// ones whose payment never arrives.
type Fulfiller struct {
	tx        txRunner
	repo      Repository
	lifecycle *lifecycle
	receipts  receiptSender
	refunds   refundNotifier
	activity  activity.Recorder
	logg      *logger.Logger
	currency  string
}

func NewFulfiller(params FulfillerParams) (*Fulfiller, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("checkout repository required")
	case params.Holds == nil:
		return nil, fmt.Errorf("hold manager required")
	case params.Signer == nil:
		return nil, fmt.Errorf("ticket signer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if params.Activity == nil {
		params.Activity = activity.Nop{}
	}
	if params.Currency == "" {
		params.Currency = "usd"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Fulfiller{
		tx:   params.Tx,
		repo: params.Repo,
		lifecycle: &lifecycle{
			repo:   params.Repo,
			holds:  params.Holds,
			signer: params.Signer,
			outbox: params.Outbox,
			now:    func() time.Time { return now().UTC() },
		},
		receipts: params.Receipts,
		refunds:  params.Refunds,
		activity: params.Activity,
		logg:     params.Logger,
		currency: params.Currency,
	}, nil
}

// FulfillPaidOrder mints the order's tickets exactly once. Repeat deliveries
// for a completed order are no-ops. A confirmation for a cancelled order, or
// one whose inventory sold out after the hold lapsed, cancels the order and
// flags it for refund.
func (f *Fulfiller) FulfillPaidOrder(ctx context.Context, orderID uuid.UUID, sessionID string) (*FulfillmentResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = f.logg.WithOrderID(ctx, orderID.String())

	result := &FulfillmentResult{OrderID: orderID}
	var order *models.Order
	err := f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := f.repo.WithTx(tx)
		var err error
		order, err = repo.FindOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if sessionID != "" && order.GatewaySessionID != nil && *order.GatewaySessionID != sessionID {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment session does not belong to order").
				WithDetails(map[string]any{"orderId": orderID, "sessionId": sessionID})
		}

		switch order.Status {
		case enums.OrderStatusCompleted:
			result.Outcome = OutcomeAlreadyCompleted
			return nil
		case enums.OrderStatusCancelled:
			result.Outcome = OutcomeRefundRequired
			return f.flagRefund(ctx, tx, order, sessionID, "order_cancelled")
		case enums.OrderStatusPending:
		default:
			return pkgerrors.Newf(pkgerrors.CodeInternal, "order has unknown status %q", order.Status)
		}

		if sessionID != "" && order.GatewaySessionID == nil {
			if err := repo.SetGatewaySession(ctx, orderID, sessionID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment session")
			}
		}

		tickets, ok, err := f.lifecycle.complete(ctx, tx, order, false, true)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock) {
				return errSoldOut
			}
			return err
		}
		if !ok {
			result.Outcome = OutcomeAlreadyCompleted
			return nil
		}
		result.Outcome = OutcomeCompleted
		for _, t := range tickets {
			result.TicketIDs = append(result.TicketIDs, t.ID)
		}
		return nil
	})

	if errors.Is(err, errSoldOut) {
		f.logg.Warn(ctx, "paid order could not be fulfilled, inventory sold out")
		err = f.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if _, err := f.lifecycle.cancel(ctx, tx, orderID, "sold_out"); err != nil {
				return err
			}
			return f.flagRefund(ctx, tx, order, sessionID, "sold_out")
		})
		if err != nil {
			return nil, err
		}
		result.Outcome = OutcomeRefundRequired
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeCompleted {
		f.afterPayment(ctx, order, len(result.TicketIDs))
	}
	return result, nil
}

// flagRefund records the refund_required event and, when a notifier is
// wired, the buyer's refund notice in the same transaction.
func (f *Fulfiller) flagRefund(ctx context.Context, tx *gorm.DB, order *models.Order, sessionID, reason string) error {
	if err := f.lifecycle.requireRefund(ctx, tx, order.ID, sessionID, reason); err != nil {
		return err
	}
	if f.refunds == nil {
		return nil
	}
	notice := notifications.RefundNotice{
		OrderID:    order.ID,
		UserID:     order.UserID,
		EventID:    order.EventID,
		TotalCents: order.TotalCents,
		Currency:   f.currency,
		Reason:     reason,
	}
	if event, err := f.repo.WithTx(tx).FindEvent(ctx, order.EventID); err == nil && event != nil {
		notice.EventName = event.Name
	}
	return f.refunds.NotifyRefundTx(ctx, tx, notice)
}

func (f *Fulfiller) afterPayment(ctx context.Context, order *models.Order, ticketCount int) {
	event, err := f.repo.FindEvent(ctx, order.EventID)
	if err != nil || event == nil {
		event = &models.Event{ID: order.EventID}
	}
	f.activity.Record(ctx, activity.Entry{
		EventType:          enums.ActivityPaymentConfirmed,
		Description:        fmt.Sprintf("payment confirmed, %d ticket(s) issued", ticketCount),
		ActorID:            &order.UserID,
		TargetResourceType: "order",
		TargetResourceID:   order.ID.String(),
		TargetResourceName: event.Name,
		Metadata: map[string]any{
			"eventId":     order.EventID.String(),
			"totalCents":  order.TotalCents,
			"ticketCount": ticketCount,
		},
	})
	sendReceipt(ctx, f.receipts, f.repo, f.logg, event, order, ticketCount, f.currency)
}

// CancelOrder cancels a pending order and releases its holds. It reports
// false when the order had already left pending.
func (f *Fulfiller) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (bool, error) {
	var cancelled bool
	err := f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		cancelled, err = f.lifecycle.cancel(ctx, tx, orderID, reason)
		return err
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		f.activity.Record(ctx, activity.Entry{
			EventType:          enums.ActivityOrderCancelled,
			Description:        "pending order cancelled: " + reason,
			TargetResourceType: "order",
			TargetResourceID:   orderID.String(),
			Metadata:           map[string]any{"reason": reason},
		})
	}
	return cancelled, nil
}

// CancelSession cancels the pending order bound to an expired payment session.
func (f *Fulfiller) CancelSession(ctx context.Context, orderID uuid.UUID, sessionID string) (bool, error) {
	if orderID == uuid.Nil && sessionID != "" {
		order, err := f.repo.FindOrderBySession(ctx, sessionID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by session")
		}
		if order == nil {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for session")
		}
		orderID = order.ID
	}
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id or session id required")
	}
	return f.CancelOrder(ctx, orderID, "payment_session_expired")
}

// CancelStalePending cancels up to limit orders left pending since before
// cutoff. Per-order failures are combined and do not stop the batch.
func (f *Fulfiller) CancelStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	orders, err := f.repo.StalePendingOrders(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale orders")
	}
	var (
		cancelled int
		errs      error
	)
	for _, order := range orders {
		ok, err := f.CancelOrder(ctx, order.ID, "pending_timeout")
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
			continue
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, errs
}
