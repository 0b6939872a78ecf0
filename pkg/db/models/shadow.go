package models

// Shadow rows back events in test status. They share columns with the live
// tables and never join against them.

type TestUser struct{ User }

func (TestUser) TableName() string { return "test_users" }

type TestOrder struct{ Order }

func (TestOrder) TableName() string { return "test_orders" }

type TestTicket struct{ Ticket }

func (TestTicket) TableName() string { return "test_tickets" }

type TestRSVP struct{ RSVP }

func (TestRSVP) TableName() string { return "test_rsvps" }

type TestInterest struct{ Interest }

func (TestInterest) TableName() string { return "test_interests" }

type TestGuestTicket struct{ GuestTicket }

func (TestGuestTicket) TableName() string { return "test_guest_tickets" }
