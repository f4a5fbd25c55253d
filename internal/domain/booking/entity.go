package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slotbook/slotbook-api/internal/domain/events"
	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

// Status represents booking lifecycle status
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// transitions is the whole state machine. Nothing leads back to pending and
// the terminal states have no exits.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// ActiveStatuses occupy capacity.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// IsActive reports whether a booking in this status holds its slot
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CanTransitionTo checks the state machine
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Action is a caller-facing transition request
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// Target returns the status an action leads to
func (a Action) Target() (Status, bool) {
	switch a {
	case ActionConfirm:
		return StatusConfirmed, true
	case ActionCancel:
		return StatusCancelled, true
	case ActionComplete:
		return StatusCompleted, true
	}
	return "", false
}

// Booking is one reservation of a service slot
type Booking struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	BusinessID     uuid.UUID       `db:"business_id" json:"business_id"`
	ServiceID      uuid.UUID       `db:"service_id" json:"service_id"`
	CustomerID     uuid.UUID       `db:"customer_id" json:"customer_id"`
	Date           schedule.Date   `db:"date" json:"date"`
	StartTime      schedule.Clock  `db:"start_time" json:"start_time"`
	EndTime        schedule.Clock  `db:"end_time" json:"end_time"`
	Status         Status          `db:"status" json:"status"`
	NumberOfPeople int             `db:"number_of_people" json:"number_of_people"`
	ContactName    string          `db:"contact_name" json:"contact_name"`
	ContactEmail   string          `db:"contact_email" json:"contact_email"`
	ContactPhone   string          `db:"contact_phone" json:"contact_phone,omitempty"`
	Notes          string          `db:"notes" json:"notes,omitempty"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Key returns the slot bucket the booking competes in
func (b *Booking) Key() SlotKey {
	return SlotKey{BusinessID: b.BusinessID, ServiceID: b.ServiceID, Date: b.Date}
}

// Span returns the occupied range for the availability filter
func (b *Booking) Span() schedule.Span {
	return schedule.Span{Start: b.StartTime, End: b.EndTime}
}

func (b *Booking) event(t events.Type, previous Status, at time.Time) events.Event {
	return events.Event{
		ID:             uuid.New(),
		Type:           t,
		BookingID:      b.ID,
		BusinessID:     b.BusinessID,
		ServiceID:      b.ServiceID,
		CustomerID:     b.CustomerID,
		Date:           b.Date,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		OccurredAt:     at,
	}
}

// SlotKey identifies the set of bookings that compete for capacity
type SlotKey struct {
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	Date       schedule.Date
}

func (k SlotKey) String() string {
	return k.BusinessID.String() + "|" + k.ServiceID.String() + "|" + k.Date.String()
}

// Actor is the identity a request runs as. System is the scheduled job.
type Actor struct {
	UserID uuid.UUID
	System bool
}

// SystemActor is used by the completion job
var SystemActor = Actor{System: true}

func spans(bookings []*Booking) []schedule.Span {
	out := make([]schedule.Span, 0, len(bookings))
	for _, b := range bookings {
		if b.Status.IsActive() {
			out = append(out, b.Span())
		}
	}
	return out
}
