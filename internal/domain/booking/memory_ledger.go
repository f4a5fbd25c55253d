package booking

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

// MemoryLedger is an in-process Ledger. Writers of the same slot key are
// serialized by a per-key mutex, which gives the same guarantee as the
// advisory lock of the Postgres ledger within a single process.
type MemoryLedger struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]Booking

	locksMu sync.Mutex
	locks   map[SlotKey]*sync.Mutex

	now func() time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		bookings: make(map[uuid.UUID]Booking),
		locks:    make(map[SlotKey]*sync.Mutex),
		now:      time.Now,
	}
}

func (m *MemoryLedger) keyLock(key SlotKey) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

func (m *MemoryLedger) Get(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (m *MemoryLedger) ListActive(_ context.Context, key SlotKey) ([]*Booking, error) {
	return m.collect(func(b *Booking) bool {
		return b.Key() == key && b.Status.IsActive()
	}), nil
}

func (m *MemoryLedger) ListByDate(_ context.Context, businessID uuid.UUID, date schedule.Date) ([]*Booking, error) {
	return m.collect(func(b *Booking) bool {
		return b.BusinessID == businessID && b.Date == date
	}), nil
}

func (m *MemoryLedger) ListConfirmedBefore(_ context.Context, date schedule.Date) ([]*Booking, error) {
	return m.collect(func(b *Booking) bool {
		return b.Status == StatusConfirmed && b.Date.Before(date)
	}), nil
}

func (m *MemoryLedger) collect(match func(*Booking) bool) []*Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Booking
	for _, b := range m.bookings {
		if match(&b) {
			out = append(out, &b)
		}
	}
	slices.SortFunc(out, func(a, b *Booking) int {
		if a.Date != b.Date {
			if a.Date.Before(b.Date) {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (m *MemoryLedger) Create(ctx context.Context, b *Booking, check CheckFunc) error {
	lock := m.keyLock(b.Key())
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	active, _ := m.ListActive(ctx, b.Key())
	if err := check(active); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bookings[b.ID]; exists {
		return ErrPersistenceConflict
	}
	m.bookings[b.ID] = *b
	return nil
}

func (m *MemoryLedger) Transition(ctx context.Context, id uuid.UUID, decide DecideFunc) (*TransitionResult, error) {
	snapshot, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Transitions share the slot lock with Create so that a cancel and a
	// create on the same key never interleave.
	lock := m.keyLock(snapshot.Key())
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := current.Status
	to, err := decide(current)
	if err != nil {
		return nil, err
	}
	if to == previous {
		return &TransitionResult{Booking: current, Previous: previous}, nil
	}

	current.Status = to
	current.UpdatedAt = m.now()

	m.mu.Lock()
	m.bookings[id] = *current
	m.mu.Unlock()

	return &TransitionResult{Booking: current, Previous: previous, Changed: true}, nil
}
