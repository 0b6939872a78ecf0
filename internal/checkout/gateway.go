package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionLine is one priced line shown on the hosted payment page. Amounts
// are all-inclusive per unit.
type SessionLine struct {
	Name            string
	UnitAmountCents int64
	Quantity        int
}

// SessionRequest opens a hosted payment session for a pending order.
type SessionRequest struct {
	OrderID       uuid.UUID
	UserID        uuid.UUID
	EventID       uuid.UUID
	Currency      string
	CustomerEmail string
	Lines         []SessionLine
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
}

// Metadata is the opaque payload echoed back by payment confirmations.
func (r SessionRequest) Metadata() map[string]string {
	return map[string]string{
		MetadataOrderID: r.OrderID.String(),
		MetadataUserID:  r.UserID.String(),
		MetadataEventID: r.EventID.String(),
	}
}

const (
	MetadataOrderID = "orderId"
	MetadataUserID  = "userId"
	MetadataEventID = "eventId"
)

// Session is the handle returned to the buyer.
type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// PaymentGateway creates hosted payment sessions.
type PaymentGateway interface {
	Configured() bool
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// URLBuilder renders the post-checkout redirect targets from path templates
// containing {orderId} and {eventId}.
type URLBuilder struct {
	BaseURL     string
	SuccessPath string
	CancelPath  string
}

func (b URLBuilder) Success(orderID, eventID uuid.UUID) string {
	return b.render(b.SuccessPath, orderID, eventID)
}

func (b URLBuilder) Cancel(orderID, eventID uuid.UUID) string {
	return b.render(b.CancelPath, orderID, eventID)
}

func (b URLBuilder) render(path string, orderID, eventID uuid.UUID) string {
	out := strings.NewReplacer(
		"{orderId}", orderID.String(),
		"{eventId}", eventID.String(),
	).Replace(path)
	return strings.TrimRight(b.BaseURL, "/") + "/" + strings.TrimLeft(out, "/")
}
