package eventdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// ShadowPrefix namespaces every identity read from shadow tables.
const ShadowPrefix = "test_"

// AttendeeSource says how a person is attached to an event.
type AttendeeSource string

const (
	SourceTicket   AttendeeSource = "ticket"
	SourceRSVP     AttendeeSource = "rsvp"
	SourceGuest    AttendeeSource = "guest"
	SourceInterest AttendeeSource = "interest"
)

func (s AttendeeSource) valid() bool {
	switch s {
	case SourceTicket, SourceRSVP, SourceGuest, SourceInterest:
		return true
	default:
		return false
	}
}

// Attendee is one person attached to an event through one source. UserID is
// empty for guest-list entries without an account.
type Attendee struct {
	UserID      string         `json:"userId,omitempty"`
	Email       string         `json:"email"`
	DisplayName string         `json:"displayName"`
	Source      AttendeeSource `json:"source"`
	Quantity    int            `json:"quantity"`
	JoinedAt    time.Time      `json:"joinedAt"`
}

// OrderSummary is the organizer's view of one order.
type OrderSummary struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	TotalCents  int64             `json:"totalCents"`
	Status      enums.OrderStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// OrderPage is one page of OrdersByEventID.
type OrderPage struct {
	Orders []OrderSummary `json:"orders"`
	Cursor string         `json:"cursor"`
}

type attendeeRow struct {
	UserID      *string
	Email       string
	DisplayName string
	Source      string
	Quantity    int
	JoinedAt    time.Time
}

type orderRow struct {
	ID          string
	UserID      string
	TotalCents  int64
	Status      string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func namespaced(prefix, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return prefix + id
}

func toAttendee(row attendeeRow, prefix string) (Attendee, error) {
	source := AttendeeSource(row.Source)
	if !source.valid() {
		return Attendee{}, fmt.Errorf("unknown attendee source %q", row.Source)
	}
	var userID string
	if row.UserID != nil {
		userID = namespaced(prefix, *row.UserID)
	}
	if userID == "" && source != SourceGuest {
		return Attendee{}, fmt.Errorf("%s attendee without user id", source)
	}
	if strings.TrimSpace(row.Email) == "" {
		return Attendee{}, fmt.Errorf("attendee %q without email", userID)
	}
	if row.Quantity < 0 {
		return Attendee{}, fmt.Errorf("attendee %q with negative quantity", userID)
	}
	return Attendee{
		UserID:      userID,
		Email:       strings.TrimSpace(row.Email),
		DisplayName: strings.TrimSpace(row.DisplayName),
		Source:      source,
		Quantity:    row.Quantity,
		JoinedAt:    row.JoinedAt.UTC(),
	}, nil
}

func toOrderSummary(row orderRow, prefix string) (OrderSummary, error) {
	status, err := enums.ParseOrderStatus(row.Status)
	if err != nil {
		return OrderSummary{}, err
	}
	if row.ID == "" || row.UserID == "" {
		return OrderSummary{}, fmt.Errorf("order row missing ids")
	}
	summary := OrderSummary{
		ID:         namespaced(prefix, row.ID),
		UserID:     namespaced(prefix, row.UserID),
		TotalCents: row.TotalCents,
		Status:     status,
		CreatedAt:  row.CreatedAt.UTC(),
	}
	if row.CompletedAt != nil {
		at := row.CompletedAt.UTC()
		summary.CompletedAt = &at
	}
	return summary, nil
}
