package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ticketSigner interface {
	Generate(ticketID, eventID uuid.UUID) (string, error)
}

// lifecycle moves orders out of pending. Every method runs inside the
// caller's transaction.
type lifecycle struct {
	repo   Repository
	holds  holdManager
	signer ticketSigner
	outbox outboxPublisher
	now    func() time.Time
}

// complete marks a pending order completed, converts its holds, and mints one
// ticket per unit. With directSale set, a ticket line whose hold has lapsed is
// sold straight from available inventory instead of failing. It returns
// (nil, false, nil) when the order was no longer pending.
func (l *lifecycle) complete(ctx context.Context, tx *gorm.DB, order *models.Order, free, directSale bool) ([]models.Ticket, bool, error) {
	repo := l.repo.WithTx(tx)
	now := l.now()
	ok, err := repo.CompletePending(ctx, order.ID, now)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
	}
	if !ok {
		return nil, false, nil
	}
	order.Status = enums.OrderStatusCompleted
	order.CompletedAt = &now

	items, err := repo.ListItems(ctx, order.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}

	var tickets []models.Ticket
	granted := map[uuid.UUID]struct{}{}
	for _, item := range items {
		switch item.ItemType {
		case enums.OrderItemTicket:
			if err := l.settleTicketItem(ctx, tx, item, directSale); err != nil {
				return nil, false, err
			}
			minted, err := l.mint(order, item)
			if err != nil {
				return nil, false, err
			}
			tickets = append(tickets, minted...)
			if err := l.grantBundled(ctx, repo, order, *item.TierID, granted); err != nil {
				return nil, false, err
			}
		case enums.OrderItemProduct:
		default:
			return nil, false, pkgerrors.Newf(pkgerrors.CodeInternal, "order item %s has unknown type %q", item.ID, item.ItemType)
		}
	}

	if err := repo.CreateTickets(ctx, tickets); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert tickets")
	}
	if err := l.emitCompleted(ctx, tx, order, tickets, free, now); err != nil {
		return nil, false, err
	}
	return tickets, true, nil
}

func (l *lifecycle) settleTicketItem(ctx context.Context, tx *gorm.DB, item models.OrderItem, directSale bool) error {
	if item.TierID == nil {
		return pkgerrors.Newf(pkgerrors.CodeInternal, "ticket item %s has no tier", item.ID)
	}
	if item.HoldID != nil {
		err := l.holds.ConvertHoldToSale(ctx, tx, *item.HoldID)
		if err == nil {
			return nil
		}
		if !directSale || !pkgerrors.IsCode(err, pkgerrors.CodeHoldExpired) {
			return err
		}
	} else if !directSale {
		return pkgerrors.Newf(pkgerrors.CodeHoldNotFound, "ticket item %s has no hold", item.ID)
	}
	return l.holds.SellDirect(ctx, tx, *item.TierID, item.Quantity)
}

func (l *lifecycle) mint(order *models.Order, item models.OrderItem) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0, item.Quantity)
	for i := 0; i < item.Quantity; i++ {
		id := uuid.New()
		token, err := l.signer.Generate(id, order.EventID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign ticket")
		}
		tickets = append(tickets, models.Ticket{
			ID:          id,
			OrderID:     order.ID,
			OrderItemID: item.ID,
			EventID:     order.EventID,
			TierID:      *item.TierID,
			UserID:      order.UserID,
			QRToken:     token,
			Status:      enums.TicketStatusValid,
		})
	}
	return tickets, nil
}

func (l *lifecycle) grantBundled(ctx context.Context, repo Repository, order *models.Order, tierID uuid.UUID, granted map[uuid.UUID]struct{}) error {
	tier, err := repo.FindTier(ctx, tierID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier == nil || tier.BundledContentID == nil {
		return nil
	}
	if _, ok := granted[*tier.BundledContentID]; ok {
		return nil
	}
	granted[*tier.BundledContentID] = struct{}{}
	err = repo.GrantEntitlement(ctx, &models.ContentEntitlement{
		UserID:    order.UserID,
		ContentID: *tier.BundledContentID,
		OrderID:   order.ID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant entitlement")
	}
	return nil
}

func (l *lifecycle) emitCompleted(ctx context.Context, tx *gorm.DB, order *models.Order, tickets []models.Ticket, free bool, now time.Time) error {
	actor := &outbox.ActorRef{UserID: order.UserID}
	err := l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    now,
		Data: payloads.OrderCompletedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			EventID:     order.EventID,
			TotalCents:  order.TotalCents,
			Free:        free,
			TicketCount: len(tickets),
			CompletedAt: now,
		},
	})
	if err != nil {
		return fmt.Errorf("emit order completed: %w", err)
	}
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	err = l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTicketsIssued,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    now,
		Data: payloads.TicketsIssuedEvent{
			OrderID:   order.ID,
			EventID:   order.EventID,
			UserID:    order.UserID,
			TicketIDs: ids,
		},
	})
	if err != nil {
		return fmt.Errorf("emit tickets issued: %w", err)
	}
	return nil
}

// cancel marks a pending order cancelled and releases its active holds. It
// reports false when the order was no longer pending.
func (l *lifecycle) cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error) {
	repo := l.repo.WithTx(tx)
	now := l.now()
	ok, err := repo.CancelPending(ctx, orderID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !ok {
		return false, nil
	}
	items, err := repo.ListItems(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	for _, item := range items {
		if item.HoldID == nil {
			continue
		}
		if err := l.holds.ReleaseHold(ctx, tx, *item.HoldID); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeHoldNotFound) {
			return false, err
		}
	}
	err = l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		OccurredAt:    now,
		Data: payloads.OrderCancelledEvent{
			OrderID:     orderID,
			Reason:      reason,
			CancelledAt: now,
		},
	})
	if err != nil {
		return false, fmt.Errorf("emit order cancelled: %w", err)
	}
	return true, nil
}

func (l *lifecycle) requireRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, sessionID, reason string) error {
	return l.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundRequired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		OccurredAt:    l.now(),
		Data: payloads.RefundRequiredEvent{
			OrderID:   orderID,
			SessionID: sessionID,
			Reason:    reason,
		},
	})
}
