package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted when a checkout persists a pending order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	UserID     uuid.UUID   `json:"user_id"`
	EventID    uuid.UUID   `json:"event_id"`
	TotalCents int64       `json:"total_cents"`
	HoldIDs    []uuid.UUID `json:"hold_ids"`
}

// CheckoutSessionOpenedEvent records the payment session bound to an order.
type CheckoutSessionOpenedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OrderCompletedEvent is emitted once per order when it reaches completed.
type OrderCompletedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	EventID     uuid.UUID `json:"event_id"`
	TotalCents  int64     `json:"total_cents"`
	Free        bool      `json:"free"`
	TicketCount int       `json:"ticket_count"`
	CompletedAt time.Time `json:"completed_at"`
}

// OrderCancelledEvent reports a pending order that will not complete.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// TicketsIssuedEvent lists tickets minted for an order.
type TicketsIssuedEvent struct {
	OrderID   uuid.UUID   `json:"order_id"`
	EventID   uuid.UUID   `json:"event_id"`
	UserID    uuid.UUID   `json:"user_id"`
	TicketIDs []uuid.UUID `json:"ticket_ids"`
}

// TicketScannedEvent is emitted when a ticket is admitted at the door.
type TicketScannedEvent struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	EventID   uuid.UUID `json:"event_id"`
	ScannedBy uuid.UUID `json:"scanned_by"`
	ScannedAt time.Time `json:"scanned_at"`
}

// ReceiptRequestedEvent asks the mailer to deliver an order receipt.
type ReceiptRequestedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	UserID         uuid.UUID `json:"user_id"`
	Email          string    `json:"email"`
	EventTitle     string    `json:"event_title"`
	Total          string    `json:"total"`
	Currency       string    `json:"currency"`
	TicketCount    int       `json:"ticket_count"`
	NotificationID uuid.UUID `json:"notification_id"`
}

// RefundRequiredEvent flags a paid order that could not be fulfilled.
type RefundRequiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	SessionID string    `json:"session_id,omitempty"`
	Reason    string    `json:"reason"`
}

// HoldsExpiredEvent summarizes one sweep of past-due holds.
type HoldsExpiredEvent struct {
	HoldIDs   []uuid.UUID `json:"hold_ids"`
	SweptAt   time.Time   `json:"swept_at"`
	Remaining int         `json:"remaining"`
}
