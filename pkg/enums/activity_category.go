package enums

// ActivityCategory groups audit log entries for filtering.
type ActivityCategory string

const (
	ActivityCategorySales  ActivityCategory = "sales"
	ActivityCategoryAccess ActivityCategory = "access"
	ActivityCategoryTeam   ActivityCategory = "team"
	ActivityCategorySystem ActivityCategory = "system"
)

// ActivityEventType names the state change being audited.
type ActivityEventType string

const (
	ActivityTicketPurchased  ActivityEventType = "ticket.purchased"
	ActivityOrderCompleted   ActivityEventType = "order.completed"
	ActivityOrderCancelled   ActivityEventType = "order.cancelled"
	ActivityTicketScanned    ActivityEventType = "ticket.scanned"
	ActivityTicketRejected   ActivityEventType = "ticket.scan_rejected"
	ActivityRoleChanged      ActivityEventType = "team.role_changed"
	ActivityHoldsSwept       ActivityEventType = "holds.swept"
	ActivityPaymentConfirmed ActivityEventType = "payment.confirmed"
)

// Category returns the default category for t.
func (t ActivityEventType) Category() ActivityCategory {
	switch t {
	case ActivityTicketPurchased, ActivityOrderCompleted, ActivityOrderCancelled, ActivityPaymentConfirmed:
		return ActivityCategorySales
	case ActivityTicketScanned, ActivityTicketRejected:
		return ActivityCategoryAccess
	case ActivityRoleChanged:
		return ActivityCategoryTeam
	default:
		return ActivityCategorySystem
	}
}
