// Package pricing computes per-line and per-order totals. Ticket fees are
// computed per unit and then multiplied so multi-unit lines never drift from
// single-unit lines.
package pricing

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
)

const bpsDenominator = 10000

// FeeSchedule is the fee configuration of a ticket tier.
type FeeSchedule struct {
	PriceCents   int64
	FeeFlatCents int64
	FeePctBps    int64
}

// Breakdown is the priced snapshot of one line.
type Breakdown struct {
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unitPriceCents"`
	UnitFeeCents   int64 `json:"unitFeeCents"`
	SubtotalCents  int64 `json:"subtotalCents"`
	FeesCents      int64 `json:"feesCents"`
	TotalCents     int64 `json:"totalCents"`
}

// Totals accumulates breakdowns into order-level amounts.
type Totals struct {
	SubtotalCents int64 `json:"subtotalCents"`
	FeesCents     int64 `json:"feesCents"`
	TotalCents    int64 `json:"totalCents"`
}

// UnitFee returns flat + floor(price * bps / 10000).
func UnitFee(s FeeSchedule) int64 {
	return s.FeeFlatCents + (s.PriceCents*s.FeePctBps)/bpsDenominator
}

// Price prices qty units of a ticket tier.
func Price(s FeeSchedule, qty int) (Breakdown, error) {
	if err := validate(s.PriceCents, qty); err != nil {
		return Breakdown{}, err
	}
	if s.FeeFlatCents < 0 || s.FeePctBps < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "fees cannot be negative")
	}
	unitFee := UnitFee(s)
	subtotal := s.PriceCents * int64(qty)
	fees := unitFee * int64(qty)
	return Breakdown{
		Quantity:       qty,
		UnitPriceCents: s.PriceCents,
		UnitFeeCents:   unitFee,
		SubtotalCents:  subtotal,
		FeesCents:      fees,
		TotalCents:     subtotal + fees,
	}, nil
}

// ProductPrice prices merchandise, which carries no fee.
func ProductPrice(priceCents int64, qty int) (Breakdown, error) {
	return Price(FeeSchedule{PriceCents: priceCents}, qty)
}

// Add folds b into t.
func (t Totals) Add(b Breakdown) Totals {
	t.SubtotalCents += b.SubtotalCents
	t.FeesCents += b.FeesCents
	t.TotalCents += b.TotalCents
	return t
}

// Sum totals a set of breakdowns.
func Sum(lines ...Breakdown) Totals {
	var t Totals
	for _, line := range lines {
		t = t.Add(line)
	}
	return t
}

// IsFree reports whether nothing is owed.
func (t Totals) IsFree() bool {
	return t.TotalCents == 0
}

// FormatCents renders cents as a fixed two-decimal amount, e.g. 3069 -> "30.69".
func FormatCents(cents int64) string {
	return decimal.NewFromInt(cents).Shift(-2).StringFixed(2)
}

func validate(priceCents int64, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if priceCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	return nil
}
