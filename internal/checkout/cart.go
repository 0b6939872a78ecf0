package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gatepass-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
)

// LineKind tags a cart line. Every switch over LineKind must handle each
// value and fail on anything else.
type LineKind string

const (
	LineTicket  LineKind = "ticket"
	LineProduct LineKind = "product"
)

// ParseLineKind maps the wire value onto a LineKind.
func ParseLineKind(raw string) (LineKind, error) {
	switch kind := LineKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case LineTicket, LineProduct:
		return kind, nil
	default:
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported item type %q", raw)
	}
}

// CartLine is one requested line. TierID is set for ticket lines and
// ProductID for product lines.
type CartLine struct {
	Kind      LineKind
	TierID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
}

// TicketLine builds a ticket cart line.
func TicketLine(tierID uuid.UUID, qty int) CartLine {
	return CartLine{Kind: LineTicket, TierID: tierID, Quantity: qty}
}

// ProductLine builds a product cart line.
func ProductLine(productID uuid.UUID, qty int) CartLine {
	return CartLine{Kind: LineProduct, ProductID: productID, Quantity: qty}
}

func (l CartLine) validate(index int) error {
	if l.Quantity <= 0 {
		return lineError(index, "quantity must be positive")
	}
	switch l.Kind {
	case LineTicket:
		if l.TierID == uuid.Nil {
			return lineError(index, "ticketTierId required")
		}
	case LineProduct:
		if l.ProductID == uuid.Nil {
			return lineError(index, "productId required")
		}
	default:
		return lineError(index, fmt.Sprintf("unsupported item type %q", l.Kind))
	}
	return nil
}

func lineError(index int, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).
		WithDetails(map[string]any{"item": index})
}

// Request is an authenticated checkout attempt.
type Request struct {
	UserID      uuid.UUID
	EventID     uuid.UUID
	Items       []CartLine
	Fingerprint string
}

func (r Request) validate() error {
	if r.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	if r.EventID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "eventId required")
	}
	if strings.TrimSpace(r.Fingerprint) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "fingerprint required")
	}
	if len(r.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	for i, line := range r.Items {
		if err := line.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// consolidate folds repeated lines for the same tier or product into the
// first occurrence. A checkout holds at most one reservation per tier, so a
// second line for a tier would otherwise replace the first line's hold.
func consolidate(items []CartLine) []CartLine {
	type lineKey struct {
		kind LineKind
		id   uuid.UUID
	}
	merged := make([]CartLine, 0, len(items))
	index := make(map[lineKey]int, len(items))
	for _, line := range items {
		key := lineKey{kind: line.Kind, id: line.TierID}
		if line.Kind == LineProduct {
			key.id = line.ProductID
		}
		if i, ok := index[key]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// Result is either a completed free order or an open payment session.
type Result struct {
	OrderID     uuid.UUID      `json:"orderId"`
	IsFree      bool           `json:"isFree"`
	RedirectURL string         `json:"redirectUrl,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	URL         string         `json:"url,omitempty"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	Totals      pricing.Totals `json:"totals"`
	TicketIDs   []uuid.UUID    `json:"ticketIds,omitempty"`
}

// pricedLine is a validated line with its captured breakdown.
type pricedLine struct {
	line      CartLine
	name      string
	breakdown pricing.Breakdown
	holdID    *uuid.UUID
	holdUntil time.Time
}
