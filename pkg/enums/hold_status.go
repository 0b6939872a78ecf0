package enums

import "fmt"

// HoldStatus tracks the lifecycle of a ticket hold. Every hold leaves
// HoldStatusActive exactly once.
type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusReleased  HoldStatus = "released"
	HoldStatusConverted HoldStatus = "converted"
	HoldStatusExpired   HoldStatus = "expired"
)

var validHoldStatuses = []HoldStatus{
	HoldStatusActive,
	HoldStatusReleased,
	HoldStatusConverted,
	HoldStatusExpired,
}

// String implements fmt.Stringer.
func (s HoldStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known HoldStatus.
func (s HoldStatus) IsValid() bool {
	for _, candidate := range validHoldStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s HoldStatus) IsTerminal() bool {
	return s == HoldStatusReleased || s == HoldStatusConverted || s == HoldStatusExpired
}

// ParseHoldStatus converts raw input into a HoldStatus.
func ParseHoldStatus(value string) (HoldStatus, error) {
	for _, candidate := range validHoldStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid hold status %q", value)
}
