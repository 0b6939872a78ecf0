package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/internal/pricing"
	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox/payloads"
)

// Receipt is what the buyer is told after an order completes.
type Receipt struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	EventID     uuid.UUID
	Email       string
	EventName   string
	TotalCents  int64
	Currency    string
	TicketCount int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier writes the in-app receipt and queues the email for the mailer.
type Notifier struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
	link   func(orderID uuid.UUID) string
}

// NotifierParams wires Notifier dependencies. OrderLink builds the deep link
// stored on the notification; it may be nil.
type NotifierParams struct {
	Tx        txRunner
	Repo      Repository
	Outbox    outboxPublisher
	OrderLink func(orderID uuid.UUID) string
}

func NewNotifier(params NotifierParams) (*Notifier, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	return &Notifier{
		tx:     params.Tx,
		repo:   params.Repo,
		outbox: params.Outbox,
		link:   params.OrderLink,
	}, nil
}

// SendReceipt stores the receipt and the receipt_requested event in one
// transaction. An order gets one receipt: a repeat call for the same order
// writes nothing and queues no second email. Callers treat a failure as
// non-fatal.
func (n *Notifier) SendReceipt(ctx context.Context, receipt Receipt) error {
	if receipt.OrderID == uuid.Nil || receipt.UserID == uuid.Nil || receipt.EventID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order, user and event ids required")
	}
	currency := strings.ToUpper(strings.TrimSpace(receipt.Currency))
	total := pricing.FormatCents(receipt.TotalCents)

	notification := models.Notification{
		UserID:      receipt.UserID,
		OrderID:     receipt.OrderID,
		EventID:     receipt.EventID,
		Kind:        enums.NotificationReceipt,
		TicketCount: receipt.TicketCount,
		Title:       fmt.Sprintf("You're going to %s", receipt.EventName),
		Message:     receiptMessage(receipt.TicketCount, receipt.TotalCents, total, currency),
		Link:        n.orderLink(receipt.OrderID),
	}

	return n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := n.repo.WithTx(tx).CreateOnce(ctx, &notification)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create receipt notification")
		}
		if !created {
			return nil
		}
		return n.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReceiptRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   receipt.OrderID,
			Actor:         &outbox.ActorRef{UserID: receipt.UserID},
			Data: payloads.ReceiptRequestedEvent{
				OrderID:        receipt.OrderID,
				UserID:         receipt.UserID,
				Email:          receipt.Email,
				EventTitle:     receipt.EventName,
				Total:          total,
				Currency:       currency,
				TicketCount:    receipt.TicketCount,
				NotificationID: notification.ID,
			},
		})
	})
}

// RefundNotice tells a buyer their payment will be returned.
type RefundNotice struct {
	OrderID    uuid.UUID
	UserID     uuid.UUID
	EventID    uuid.UUID
	EventName  string
	TotalCents int64
	Currency   string
	Reason     string
}

// NotifyRefundTx writes the refund notice inside the caller's transaction,
// next to the refund_required flag it accompanies. Repeat calls for the same
// order are no-ops.
func (n *Notifier) NotifyRefundTx(ctx context.Context, tx *gorm.DB, notice RefundNotice) error {
	if notice.OrderID == uuid.Nil || notice.UserID == uuid.Nil || notice.EventID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order, user and event ids required")
	}
	currency := strings.ToUpper(strings.TrimSpace(notice.Currency))
	notification := models.Notification{
		UserID:  notice.UserID,
		OrderID: notice.OrderID,
		EventID: notice.EventID,
		Kind:    enums.NotificationRefundPending,
		Title:   fmt.Sprintf("Your order for %s could not be completed", notice.EventName),
		Message: refundMessage(notice.Reason, pricing.FormatCents(notice.TotalCents), currency),
		Link:    n.orderLink(notice.OrderID),
	}
	if _, err := n.repo.WithTx(tx).CreateOnce(ctx, &notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund notification")
	}
	return nil
}

func (n *Notifier) orderLink(orderID uuid.UUID) *string {
	if n.link == nil {
		return nil
	}
	link := n.link(orderID)
	return &link
}

func refundMessage(reason, total, currency string) string {
	cause := "The order was cancelled before your payment arrived."
	if reason == "sold_out" {
		cause = "The tickets sold out before your payment arrived."
	}
	return fmt.Sprintf("%s Your payment of %s %s will be refunded.", cause, total, currency)
}

func receiptMessage(tickets int, cents int64, total, currency string) string {
	noun := "tickets"
	if tickets == 1 {
		noun = "ticket"
	}
	if cents == 0 {
		return fmt.Sprintf("%d %s confirmed. No payment was required.", tickets, noun)
	}
	return fmt.Sprintf("%d %s confirmed. Total paid: %s %s.", tickets, noun, total, currency)
}
