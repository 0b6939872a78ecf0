package enums

import "fmt"

// OrderItemType discriminates cart and order lines.
type OrderItemType string

const (
	OrderItemTicket  OrderItemType = "ticket"
	OrderItemProduct OrderItemType = "product"
)

// String implements fmt.Stringer.
func (t OrderItemType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known OrderItemType.
func (t OrderItemType) IsValid() bool {
	return t == OrderItemTicket || t == OrderItemProduct
}

// ParseOrderItemType converts raw input into an OrderItemType.
func ParseOrderItemType(value string) (OrderItemType, error) {
	switch OrderItemType(value) {
	case OrderItemTicket:
		return OrderItemTicket, nil
	case OrderItemProduct:
		return OrderItemProduct, nil
	}
	return "", fmt.Errorf("invalid order item type %q", value)
}
