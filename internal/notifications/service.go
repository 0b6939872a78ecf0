package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/pagination"
)

// Service is the buyer's inbox: one receipt per completed order, plus a
// notice when a paid order has to be refunded.
type Service interface {
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkOrderRead(ctx context.Context, userID, orderID uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ListParams filters the inbox. Kind and EventID are optional.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
	Kind       enums.NotificationKind
	EventID    uuid.UUID
}

// ListResult wraps one inbox page and the cursor for the next.
type ListResult struct {
	Items  []Entry `json:"items"`
	Cursor string  `json:"cursor"`
}

// Entry is an inbox row. Receipts list the order's tickets with their
// current status so the buyer can open each one from the inbox.
type Entry struct {
	ID          uuid.UUID              `json:"id"`
	Kind        enums.NotificationKind `json:"kind"`
	OrderID     uuid.UUID              `json:"orderId"`
	EventID     uuid.UUID              `json:"eventId"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Link        *string                `json:"link,omitempty"`
	TicketCount int                    `json:"ticketCount"`
	Tickets     []TicketRef            `json:"tickets,omitempty"`
	ReadAt      *time.Time             `json:"readAt,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// TicketRef points at one issued ticket.
type TicketRef struct {
	ID     uuid.UUID          `json:"id"`
	Status enums.TicketStatus `json:"status"`
	URL    string             `json:"url,omitempty"`
}

// ServiceParams wires the inbox. TicketLink builds the deep link for a
// ticket and may be nil.
type ServiceParams struct {
	Repo       Repository
	TicketLink func(ticketID uuid.UUID) string
	Now        func() time.Time
}

type service struct {
	repo       Repository
	ticketLink func(ticketID uuid.UUID) string
	now        func() time.Time
}

// NewService wires notifications dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		ticketLink: params.TicketLink,
		now:        func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if params.Kind != "" && !params.Kind.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown notification kind %q", params.Kind)
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
		Kind:       params.Kind,
		EventID:    params.EventID,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	receiptOrders := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if row.Kind == enums.NotificationReceipt {
			receiptOrders = append(receiptOrders, row.OrderID)
		}
	}
	tickets, err := s.repo.OrderTickets(ctx, params.UserID, receiptOrders)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt tickets")
	}

	items := make([]Entry, len(rows))
	for i, row := range rows {
		items[i] = s.entry(row, tickets[row.OrderID])
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) entry(row models.Notification, tickets []models.Ticket) Entry {
	e := Entry{
		ID:          row.ID,
		Kind:        row.Kind,
		OrderID:     row.OrderID,
		EventID:     row.EventID,
		Title:       row.Title,
		Message:     row.Message,
		Link:        row.Link,
		TicketCount: row.TicketCount,
		ReadAt:      row.ReadAt,
		CreatedAt:   row.CreatedAt,
	}
	for _, t := range tickets {
		ref := TicketRef{ID: t.ID, Status: t.Status}
		if s.ticketLink != nil {
			ref.URL = s.ticketLink(t.ID)
		}
		e.Tickets = append(e.Tickets, ref)
	}
	return e
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count notifications")
	}
	return count, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

// MarkOrderRead is called when the buyer opens an order, so its receipt and
// any refund notice stop counting as unread.
func (s *service) MarkOrderRead(ctx context.Context, userID, orderID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	count, err := s.repo.MarkOrderRead(ctx, userID, orderID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order notifications read")
	}
	return count, nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	count, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
