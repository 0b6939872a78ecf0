// Package checkout turns a cart into an order. Holds are taken line by line,
// the order and its items are written in one transaction, and the order then
// either completes on the spot (zero total) or waits on a hosted payment
// session. Any failure after the first hold releases every hold taken before
// the error is returned.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/internal/activity"
	"github.com/angelmondragon/gatepass-backend/internal/inventory"
	"github.com/angelmondragon/gatepass-backend/internal/notifications"
	"github.com/angelmondragon/gatepass-backend/internal/pricing"
	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/metrics"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox/payloads"
)

const compensationTimeout = 10 * time.Second

type holdManager interface {
	CreateHold(ctx context.Context, tx *gorm.DB, req inventory.HoldRequest) (*models.TicketHold, error)
	ReleaseHold(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) error
	ReleaseAll(ctx context.Context, holdIDs []uuid.UUID) error
	ConvertHoldToSale(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) error
	SellDirect(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, qty int) error
}

type receiptSender interface {
	SendReceipt(ctx context.Context, receipt notifications.Receipt) error
}

type refundNotifier interface {
	NotifyRefundTx(ctx context.Context, tx *gorm.DB, notice notifications.RefundNotice) error
}

// Service executes checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, req Request) (*Result, error)
}

// ServiceParams wires the checkout service. Receipts, Activity, and Metrics
// are optional.
type ServiceParams struct {
	Tx       txRunner
	Repo     Repository
	Holds    holdManager
	Gateway  PaymentGateway
	Signer   ticketSigner
	Outbox   outboxPublisher
	Receipts receiptSender
	Activity activity.Recorder
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	URLs     URLBuilder
	HoldTTL  time.Duration
	Currency string
	Now      func() time.Time
}

type service struct {
	tx        txRunner
	repo      Repository
	holds     holdManager
	gateway   PaymentGateway
	lifecycle *lifecycle
	outbox    outboxPublisher
	receipts  receiptSender
	activity  activity.Recorder
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	urls      URLBuilder
	holdTTL   time.Duration
	currency  string
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Holds == nil {
		return nil, fmt.Errorf("hold manager required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("ticket signer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Activity == nil {
		params.Activity = activity.Nop{}
	}
	if params.HoldTTL <= 0 {
		params.HoldTTL = inventory.DefaultHoldTTL
	}
	if params.Currency == "" {
		params.Currency = "usd"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	utcNow := func() time.Time { return now().UTC() }
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		holds:   params.Holds,
		gateway: params.Gateway,
		lifecycle: &lifecycle{
			repo:   params.Repo,
			holds:  params.Holds,
			signer: params.Signer,
			outbox: params.Outbox,
			now:    utcNow,
		},
		outbox:   params.Outbox,
		receipts: params.Receipts,
		activity: params.Activity,
		metrics:  params.Metrics,
		logg:     params.Logger,
		urls:     params.URLs,
		holdTTL:  params.HoldTTL,
		currency: params.Currency,
		now:      utcNow,
	}, nil
}

func (s *service) Checkout(ctx context.Context, req Request) (result *Result, err error) {
	started := time.Now()
	path := "unknown"
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(pkgerrors.CodeOf(err))
		}
		s.metrics.Observe(path, outcome, time.Since(started))
	}()

	if !s.gateway.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "payment gateway is not configured")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.Items = consolidate(req.Items)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":  req.UserID.String(),
		"event_id": req.EventID.String(),
	})

	event, err := s.repo.FindEvent(ctx, req.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if !onSale(event.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "event is not on sale").
			WithDetails(map[string]any{"status": event.Status})
	}

	lines, err := s.priceAndHold(ctx, req)
	if err != nil {
		s.releaseHolds(ctx, lines)
		return nil, err
	}

	breakdowns := make([]pricing.Breakdown, len(lines))
	for i, line := range lines {
		breakdowns[i] = line.breakdown
	}
	totals := pricing.Sum(breakdowns...)

	order, err := s.createOrder(ctx, req, lines, totals)
	if err != nil {
		s.releaseHolds(ctx, lines)
		s.logg.Error(ctx, "order creation failed, holds released", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeOrderCreation, err, "order could not be created")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if totals.IsFree() {
		path = "free"
		return s.completeFree(ctx, event, order, lines, totals)
	}
	path = "paid"
	return s.openSession(ctx, req, event, order, lines, totals)
}

func onSale(status enums.EventStatus) bool {
	return status == enums.EventStatusPublished || status == enums.EventStatusTest
}

// priceAndHold validates each line and reserves ticket inventory. On error it
// still returns the lines priced so far so the caller can release their holds.
func (s *service) priceAndHold(ctx context.Context, req Request) ([]pricedLine, error) {
	lines := make([]pricedLine, 0, len(req.Items))
	for i, line := range req.Items {
		switch line.Kind {
		case LineTicket:
			tier, err := s.repo.FindActiveTier(ctx, req.EventID, line.TierID)
			if err != nil {
				return lines, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket tier")
			}
			if tier == nil {
				return lines, pkgerrors.New(pkgerrors.CodeInvalidTier, "ticket tier is not available for this event").
					WithDetails(map[string]any{"item": i, "ticketTierId": line.TierID})
			}
			breakdown, err := pricing.Price(pricing.FeeSchedule{
				PriceCents:   tier.PriceCents,
				FeeFlatCents: tier.FeeFlatCents,
				FeePctBps:    tier.FeePctBps,
			}, line.Quantity)
			if err != nil {
				return lines, err
			}
			hold, err := s.holds.CreateHold(ctx, nil, inventory.HoldRequest{
				TierID:      tier.ID,
				UserID:      req.UserID,
				Fingerprint: req.Fingerprint,
				Quantity:    line.Quantity,
				TTL:         s.holdTTL,
			})
			if err != nil {
				return lines, err
			}
			lines = append(lines, pricedLine{
				line:      line,
				name:      tier.Name,
				breakdown: breakdown,
				holdID:    &hold.ID,
				holdUntil: hold.ExpiresAt,
			})
		case LineProduct:
			product, err := s.repo.FindActiveProduct(ctx, req.EventID, line.ProductID)
			if err != nil {
				return lines, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			if product == nil {
				return lines, pkgerrors.New(pkgerrors.CodeInvalidProduct, "product is not available").
					WithDetails(map[string]any{"item": i, "productId": line.ProductID})
			}
			breakdown, err := pricing.ProductPrice(product.PriceCents, line.Quantity)
			if err != nil {
				return lines, err
			}
			lines = append(lines, pricedLine{line: line, name: product.Name, breakdown: breakdown})
		default:
			return lines, lineError(i, fmt.Sprintf("unsupported item type %q", line.Kind))
		}
	}
	return lines, nil
}

func (s *service) createOrder(ctx context.Context, req Request, lines []pricedLine, totals pricing.Totals) (*models.Order, error) {
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        req.UserID,
		EventID:       req.EventID,
		SubtotalCents: totals.SubtotalCents,
		FeesCents:     totals.FeesCents,
		TotalCents:    totals.TotalCents,
		Status:        enums.OrderStatusPending,
	}
	items := make([]models.OrderItem, len(lines))
	holdIDs := make([]uuid.UUID, 0, len(lines))
	for i, line := range lines {
		items[i] = orderItem(line)
		if line.holdID != nil {
			holdIDs = append(holdIDs, *line.holdID)
		}
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order, items); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: req.UserID},
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				EventID:    order.EventID,
				TotalCents: order.TotalCents,
				HoldIDs:    holdIDs,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func orderItem(line pricedLine) models.OrderItem {
	b := line.breakdown
	item := models.OrderItem{
		Quantity:       b.Quantity,
		UnitPriceCents: b.UnitPriceCents,
		UnitFeeCents:   b.UnitFeeCents,
		SubtotalCents:  b.SubtotalCents,
		FeesCents:      b.FeesCents,
		TotalCents:     b.TotalCents,
	}
	switch line.line.Kind {
	case LineTicket:
		tierID := line.line.TierID
		item.ItemType = enums.OrderItemTicket
		item.TierID = &tierID
		item.HoldID = line.holdID
	case LineProduct:
		productID := line.line.ProductID
		item.ItemType = enums.OrderItemProduct
		item.ProductID = &productID
	}
	return item
}

func (s *service) completeFree(ctx context.Context, event *models.Event, order *models.Order, lines []pricedLine, totals pricing.Totals) (*Result, error) {
	var tickets []models.Ticket
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		minted, ok, err := s.lifecycle.complete(ctx, tx, order, true, false)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
		}
		tickets = minted
		return nil
	})
	if err != nil {
		s.abandon(ctx, order.ID, lines, "fulfillment_failed")
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeOrderCreation, err, "order could not be completed")
		}
		return nil, err
	}

	ticketIDs := make([]uuid.UUID, len(tickets))
	for i, t := range tickets {
		ticketIDs[i] = t.ID
	}
	s.afterCompletion(ctx, event, order, len(tickets))

	return &Result{
		OrderID:     order.ID,
		IsFree:      true,
		RedirectURL: s.urls.Success(order.ID, event.ID),
		Totals:      totals,
		TicketIDs:   ticketIDs,
	}, nil
}

func (s *service) openSession(ctx context.Context, req Request, event *models.Event, order *models.Order, lines []pricedLine, totals pricing.Totals) (*Result, error) {
	expiresAt := s.sessionExpiry(lines)
	sessionReq := SessionRequest{
		OrderID:    order.ID,
		UserID:     req.UserID,
		EventID:    req.EventID,
		Currency:   s.currency,
		Lines:      sessionLines(event.Name, lines),
		SuccessURL: s.urls.Success(order.ID, event.ID),
		CancelURL:  s.urls.Cancel(order.ID, event.ID),
		ExpiresAt:  expiresAt,
	}
	if user, err := s.repo.FindUser(ctx, req.UserID); err == nil && user != nil {
		sessionReq.CustomerEmail = user.Email
	}

	sess, err := s.gateway.CreateSession(ctx, sessionReq)
	if err != nil {
		s.logg.Error(ctx, "payment session creation failed", err)
		s.abandon(ctx, order.ID, lines, "payment_gateway_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "payment provider unavailable")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetGatewaySession(ctx, order.ID, sess.ID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutSessionOpened,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: req.UserID},
			Data: payloads.CheckoutSessionOpenedEvent{
				OrderID:   order.ID,
				SessionID: sess.ID,
				ExpiresAt: sess.ExpiresAt,
			},
		})
	})
	if err != nil {
		// confirmations carry the order id in metadata, so fulfillment still works
		s.logg.Warn(ctx, fmt.Sprintf("persist payment session %s: %v", sess.ID, err))
	}

	expires := sess.ExpiresAt
	return &Result{
		OrderID:   order.ID,
		SessionID: sess.ID,
		URL:       sess.URL,
		ExpiresAt: &expires,
		Totals:    totals,
	}, nil
}

// sessionExpiry pins the payment session to the earliest hold expiry so the
// session never outlives the inventory it pays for.
func (s *service) sessionExpiry(lines []pricedLine) time.Time {
	var earliest time.Time
	for _, line := range lines {
		if line.holdID == nil {
			continue
		}
		if earliest.IsZero() || line.holdUntil.Before(earliest) {
			earliest = line.holdUntil
		}
	}
	if earliest.IsZero() {
		return s.now().Add(s.holdTTL)
	}
	return earliest
}

func sessionLines(eventName string, lines []pricedLine) []SessionLine {
	out := make([]SessionLine, 0, len(lines))
	for _, line := range lines {
		unit := line.breakdown.UnitPriceCents + line.breakdown.UnitFeeCents
		if unit == 0 {
			continue
		}
		name := line.name
		if line.line.Kind == LineTicket {
			name = fmt.Sprintf("%s: %s", eventName, line.name)
		}
		out = append(out, SessionLine{Name: name, UnitAmountCents: unit, Quantity: line.breakdown.Quantity})
	}
	return out
}

func (s *service) afterCompletion(ctx context.Context, event *models.Event, order *models.Order, ticketCount int) {
	s.activity.Record(ctx, activity.Entry{
		EventType:          enums.ActivityTicketPurchased,
		Description:        fmt.Sprintf("%d ticket(s) issued for %s", ticketCount, event.Name),
		ActorID:            &order.UserID,
		TargetResourceType: "order",
		TargetResourceID:   order.ID.String(),
		TargetResourceName: event.Name,
		Metadata: map[string]any{
			"eventId":     event.ID.String(),
			"totalCents":  order.TotalCents,
			"ticketCount": ticketCount,
			"free":        order.TotalCents == 0,
		},
	})
	sendReceipt(ctx, s.receipts, s.repo, s.logg, event, order, ticketCount, s.currency)
}

func sendReceipt(ctx context.Context, sender receiptSender, repo Repository, logg *logger.Logger, event *models.Event, order *models.Order, ticketCount int, currency string) {
	if sender == nil {
		return
	}
	receipt := notifications.Receipt{
		OrderID:     order.ID,
		UserID:      order.UserID,
		EventID:     order.EventID,
		EventName:   event.Name,
		TotalCents:  order.TotalCents,
		Currency:    currency,
		TicketCount: ticketCount,
	}
	if user, err := repo.FindUser(ctx, order.UserID); err == nil && user != nil {
		receipt.Email = user.Email
	}
	if err := sender.SendReceipt(ctx, receipt); err != nil {
		logg.Warn(ctx, fmt.Sprintf("receipt notification failed: %v", err))
	}
}

// releaseHolds runs compensation detached from the request context so a
// client disconnect cannot leave holds behind.
func (s *service) releaseHolds(ctx context.Context, lines []pricedLine) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if line.holdID != nil {
			ids = append(ids, *line.holdID)
		}
	}
	if len(ids) == 0 {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.holds.ReleaseAll(releaseCtx, ids); err != nil {
		s.logg.Error(ctx, "release holds after failed checkout", err)
	}
}

// abandon releases the holds and cancels the pending order.
func (s *service) abandon(ctx context.Context, orderID uuid.UUID, lines []pricedLine, reason string) {
	s.releaseHolds(ctx, lines)
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	err := s.tx.WithTx(cancelCtx, func(tx *gorm.DB) error {
		_, err := s.lifecycle.cancel(cancelCtx, tx, orderID, reason)
		return err
	})
	if err != nil {
		s.logg.Error(ctx, "cancel abandoned order", err)
	}
}
