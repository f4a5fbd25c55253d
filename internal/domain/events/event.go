// Package events carries booking state changes from the booking service to
// independent subscribers. Delivery is best-effort: a slow subscriber loses
// events instead of blocking the writer, and nothing is retried.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

type Type string

const (
	BookingCreated       Type = "booking.created"
	BookingStatusChanged Type = "booking.status_changed"
)

// Event is a snapshot of a booking right after a committed change.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	Type           Type           `json:"type"`
	BookingID      uuid.UUID      `json:"booking_id"`
	BusinessID     uuid.UUID      `json:"business_id"`
	ServiceID      uuid.UUID      `json:"service_id"`
	CustomerID     uuid.UUID      `json:"customer_id"`
	Date           schedule.Date  `json:"date"`
	StartTime      schedule.Clock `json:"start_time"`
	EndTime        schedule.Clock `json:"end_time"`
	Status         string         `json:"status"`
	PreviousStatus string         `json:"previous_status,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Publisher accepts events after the change that produced them has committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
