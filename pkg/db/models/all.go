package models

// All lists every gorm-managed table. Views are created by SQL migrations only.
func All() []any {
	return []any{
		&Event{},
		&TicketTier{},
		&Product{},
		&TicketHold{},
		&Order{},
		&OrderItem{},
		&Ticket{},
		&ContentEntitlement{},
		&User{},
		&RSVP{},
		&Interest{},
		&GuestTicket{},
		&TestUser{},
		&TestOrder{},
		&TestTicket{},
		&TestRSVP{},
		&TestInterest{},
		&TestGuestTicket{},
		&ActivityLog{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
