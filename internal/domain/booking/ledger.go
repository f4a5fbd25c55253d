package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

// CheckFunc inspects the active bookings of a slot key while the key is
// locked. Returning an error aborts the insert.
type CheckFunc func(active []*Booking) error

// DecideFunc receives the locked current state of a booking and returns the
// status to move to. Returning the current status leaves the booking as is.
type DecideFunc func(current *Booking) (Status, error)

// Ledger is the authoritative booking store. Create and Transition are the
// only writes and each runs as one atomic unit: no competing writer on the
// same slot key (Create) or booking (Transition) interleaves between the
// check and the write.
type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListActive(ctx context.Context, key SlotKey) ([]*Booking, error)
	ListByDate(ctx context.Context, businessID uuid.UUID, date schedule.Date) ([]*Booking, error)
	ListConfirmedBefore(ctx context.Context, date schedule.Date) ([]*Booking, error)

	Create(ctx context.Context, b *Booking, check CheckFunc) error
	Transition(ctx context.Context, id uuid.UUID, decide DecideFunc) (*TransitionResult, error)
}

// TransitionResult reports what a Transition did.
type TransitionResult struct {
	Booking  *Booking
	Previous Status
	Changed  bool
}
