package enums

import "fmt"

// NotificationKind says which order outcome an inbox entry reports. An order
// carries at most one notification of each kind.
type NotificationKind string

const (
	NotificationReceipt       NotificationKind = "receipt"
	NotificationRefundPending NotificationKind = "refund_pending"
)

var validNotificationKinds = []NotificationKind{
	NotificationReceipt,
	NotificationRefundPending,
}

// String implements fmt.Stringer.
func (k NotificationKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known NotificationKind.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
