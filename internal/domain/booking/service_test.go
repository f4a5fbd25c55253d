package booking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slotbook/slotbook-api/internal/domain/booking"
	"github.com/slotbook/slotbook-api/internal/domain/catalog"
	"github.com/slotbook/slotbook-api/internal/domain/events"
	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

// 2025-12-22 is a Monday; 2025-12-25 is the Thursday of that week.
const (
	monday    = "2025-12-22"
	christmas = "2025-12-25"
	sunday    = "2025-12-28"
)

type fixture struct {
	repo     *catalog.MemoryRepository
	manager  *catalog.Manager
	ledger   booking.Ledger
	bus      *events.Bus
	svc      *booking.Service
	owner    uuid.UUID
	customer uuid.UUID
	business *catalog.Business
	service  *catalog.Service
}

func newFixture(t *testing.T, capacity int) *fixture {
	return newFixtureWithLedger(t, capacity, booking.NewMemoryLedger())
}

func newFixtureWithLedger(t *testing.T, capacity int, ledger booking.Ledger) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		repo:     catalog.NewMemoryRepository(),
		ledger:   ledger,
		bus:      events.NewBus(),
		owner:    uuid.New(),
		customer: uuid.New(),
	}
	t.Cleanup(f.bus.Close)

	f.business = &catalog.Business{ID: uuid.New(), OwnerID: f.owner, Name: "Studio", Locale: "en", Currency: "USD"}
	if err := f.repo.SaveBusiness(ctx, f.business); err != nil {
		t.Fatalf("save business failed: %v", err)
	}
	f.service = &catalog.Service{
		ID:              uuid.New(),
		BusinessID:      f.business.ID,
		Name:            "Session",
		DurationMinutes: 60,
		Capacity:        capacity,
		Price:           decimal.RequireFromString("25.00"),
	}
	if err := f.repo.SaveService(ctx, f.service); err != nil {
		t.Fatalf("save service failed: %v", err)
	}

	for day := 0; day < 7; day++ {
		h := &schedule.RegularHours{
			BusinessID: f.business.ID,
			DayOfWeek:  day,
			OpenTime:   schedule.MustParseClock("09:00"),
			CloseTime:  schedule.MustParseClock("17:00"),
			IsClosed:   day == 0 || day == 6,
		}
		if err := f.repo.UpsertRegularHours(ctx, h); err != nil {
			t.Fatalf("upsert regular hours failed: %v", err)
		}
	}
	if err := f.repo.UpsertSpecialHours(ctx, &schedule.SpecialHours{
		BusinessID: f.business.ID,
		Date:       schedule.MustParseDate(christmas),
		IsClosed:   true,
	}); err != nil {
		t.Fatalf("upsert special hours failed: %v", err)
	}

	f.manager = catalog.NewManager(f.repo, nil)
	f.svc = booking.NewService(f.ledger, f.manager, schedule.NewResolver(f.repo), f.bus, booking.Options{})
	return f
}

func (f *fixture) request(date, start string, people int) *booking.CreateBookingRequest {
	return &booking.CreateBookingRequest{
		BusinessID:     f.business.ID.String(),
		ServiceID:      f.service.ID.String(),
		Date:           date,
		StartTime:      start,
		NumberOfPeople: people,
		ContactName:    "Jane Doe",
		ContactEmail:   "jane@example.com",
	}
}

func (f *fixture) book(t *testing.T, date, start string, people int) *booking.Booking {
	t.Helper()
	b, err := f.svc.CreateBooking(context.Background(), booking.Actor{UserID: f.customer}, f.request(date, start, people))
	if err != nil {
		t.Fatalf("create booking %s %s failed: %v", date, start, err)
	}
	return b
}

func (f *fixture) ownerActor() booking.Actor {
	return booking.Actor{UserID: f.owner}
}

func TestGetAvailabilityWithConfirmedBooking(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	b := f.book(t, monday, "10:00", 1)
	if _, err := f.svc.Confirm(ctx, f.ownerActor(), b.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	slots, err := f.svc.GetAvailability(ctx, f.business.ID, f.service.ID, schedule.MustParseDate(monday))
	if err != nil {
		t.Fatalf("get availability failed: %v", err)
	}
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots from 09:00 to 16:00, got %d", len(slots))
	}

	blocked := map[string]bool{"09:30": true, "10:00": true, "10:30": true}
	for _, s := range slots {
		if s.Available == blocked[s.Time.String()] {
			t.Fatalf("slot %s: expected available=%v", s.Time, !blocked[s.Time.String()])
		}
	}
	if slots[0].Time.String() != "09:00" || slots[len(slots)-1].Time.String() != "16:00" {
		t.Fatalf("unexpected slot range %s..%s", slots[0].Time, slots[len(slots)-1].Time)
	}
}

func TestGetAvailabilityClosedDays(t *testing.T) {
	f := newFixture(t, 1)

	for _, date := range []string{christmas, sunday} {
		slots, err := f.svc.GetAvailability(context.Background(), f.business.ID, f.service.ID, schedule.MustParseDate(date))
		if err != nil {
			t.Fatalf("%s: get availability failed: %v", date, err)
		}
		if len(slots) != 0 {
			t.Fatalf("%s: expected no slots, got %d", date, len(slots))
		}
	}

	slots, err := f.svc.GetAvailability(context.Background(), f.business.ID, f.service.ID, schedule.MustParseDate("2025-12-26"))
	if err != nil {
		t.Fatalf("get availability failed: %v", err)
	}
	if len(slots) != 15 {
		t.Fatalf("expected regular hours after the override, got %d slots", len(slots))
	}
}

func TestGetAvailabilityUnknownService(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.GetAvailability(context.Background(), f.business.ID, uuid.New(), schedule.MustParseDate(monday))
	if !errors.Is(err, catalog.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestCreateBookingConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, 1)

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := booking.Actor{UserID: uuid.New()}
			req := f.request(monday, "10:00", 1)
			req.ContactName = fmt.Sprintf("Customer %d", i)
			_, err := f.svc.CreateBooking(context.Background(), actor, req)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, booking.ErrSlotUnavailable) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly 1 successful booking, got %d", success)
	}

	active, err := f.ledger.ListActive(context.Background(), booking.SlotKey{
		BusinessID: f.business.ID, ServiceID: f.service.ID, Date: schedule.MustParseDate(monday),
	})
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active booking, got %d", len(active))
	}
}

func TestCreateBookingBackToBack(t *testing.T) {
	f := newFixture(t, 1)

	first := f.book(t, monday, "10:00", 1)
	second := f.book(t, monday, "11:00", 1)

	if first.EndTime != second.StartTime {
		t.Fatalf("expected adjacent bookings, got %s-%s and %s-%s",
			first.StartTime, first.EndTime, second.StartTime, second.EndTime)
	}

	_, err := f.svc.CreateBooking(context.Background(), booking.Actor{UserID: f.customer}, f.request(monday, "10:30", 1))
	if !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for overlapping booking, got %v", err)
	}
}

func TestCreateBookingCapacityCountsBookings(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	actor := booking.Actor{UserID: f.customer}
	date := schedule.MustParseDate(monday)

	f.book(t, monday, "10:00", 2)

	// One booking holds one unit of capacity whatever its party size.
	slots, err := f.svc.GetAvailability(ctx, f.business.ID, f.service.ID, date)
	if err != nil {
		t.Fatalf("get availability failed: %v", err)
	}
	if !availableAt(slots, "10:00") {
		t.Fatalf("expected 10:00 available with one booking against capacity 2")
	}

	if _, err := f.svc.CreateBooking(ctx, actor, f.request(monday, "10:00", 2)); err != nil {
		t.Fatalf("expected second booking at 10:00 to succeed, got %v", err)
	}
	if _, err := f.svc.CreateBooking(ctx, actor, f.request(monday, "10:30", 1)); !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable with two overlapping bookings, got %v", err)
	}
	if _, err := f.svc.CreateBooking(ctx, actor, f.request(monday, "14:00", 3)); !errors.Is(err, booking.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for party of 3, got %v", err)
	}

	slots, err = f.svc.GetAvailability(ctx, f.business.ID, f.service.ID, date)
	if err != nil {
		t.Fatalf("get availability failed: %v", err)
	}
	if availableAt(slots, "10:30") {
		t.Fatalf("expected 10:30 to be full")
	}
	if !availableAt(slots, "09:00") {
		t.Fatalf("expected 09:00 to stay available")
	}
}

func availableAt(slots []schedule.SlotAvailability, at string) bool {
	for _, s := range slots {
		if s.Time.String() == at {
			return s.Available
		}
	}
	return false
}

func TestCreateBookingTotalFrozenAfterPriceChange(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	b := f.book(t, monday, "10:00", 2)
	if !b.TotalAmount.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("expected total 50.00, got %s", b.TotalAmount)
	}

	_, err := f.manager.UpdateService(ctx, f.owner, f.business.ID, f.service.ID, &catalog.UpdateServiceRequest{
		Name:            "Session",
		DurationMinutes: 90,
		Capacity:        4,
		Price:           decimal.RequireFromString("40.00"),
	})
	if err != nil {
		t.Fatalf("update service failed: %v", err)
	}

	stored, err := f.svc.Get(ctx, booking.Actor{UserID: f.customer}, b.ID)
	if err != nil {
		t.Fatalf("get booking failed: %v", err)
	}
	if !stored.TotalAmount.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("expected stored total to stay 50.00, got %s", stored.TotalAmount)
	}
	if stored.EndTime.String() != "11:00" {
		t.Fatalf("expected stored end time to stay 11:00, got %s", stored.EndTime)
	}

	next := f.book(t, monday, "13:00", 2)
	if !next.TotalAmount.Equal(decimal.RequireFromString("80.00")) {
		t.Fatalf("expected new total 80.00, got %s", next.TotalAmount)
	}
	if next.EndTime.String() != "14:30" {
		t.Fatalf("expected new end time 14:30, got %s", next.EndTime)
	}
}

func TestCreateBookingOutsideBusinessHours(t *testing.T) {
	f := newFixture(t, 1)
	actor := booking.Actor{UserID: f.customer}

	cases := []struct {
		date  string
		start string
	}{
		{monday, "08:30"},
		{monday, "16:30"},
		{christmas, "10:00"},
		{sunday, "10:00"},
	}
	for _, tc := range cases {
		_, err := f.svc.CreateBooking(context.Background(), actor, f.request(tc.date, tc.start, 1))
		if !errors.Is(err, booking.ErrOutsideBusinessHours) {
			t.Fatalf("%s %s: expected ErrOutsideBusinessHours, got %v", tc.date, tc.start, err)
		}
	}
}

func TestCreateBookingCrossMidnight(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.CreateBooking(context.Background(), booking.Actor{UserID: f.customer}, f.request(monday, "23:30", 1))
	var vErr *booking.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.Fields["start_time"]; !ok {
		t.Fatalf("expected start_time field error, got %v", vErr.Fields)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t, 1)

	req := f.request("2025-13-01", "9am", 0)
	req.ContactEmail = "not-an-email"

	_, err := f.svc.CreateBooking(context.Background(), booking.Actor{UserID: f.customer}, req)
	if !errors.Is(err, booking.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var vErr *booking.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	for _, field := range []string{"date", "start_time", "number_of_people", "contact_email"} {
		if _, ok := vErr.Fields[field]; !ok {
			t.Fatalf("expected %s field error, got %v", field, vErr.Fields)
		}
	}
}

func TestCreateBookingRequiresIdentity(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.CreateBooking(context.Background(), booking.Actor{}, f.request(monday, "10:00", 1))
	if !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestTransitionAuthorizationAndStateMachine(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	customer := booking.Actor{UserID: f.customer}
	stranger := booking.Actor{UserID: uuid.New()}

	b := f.book(t, monday, "10:00", 1)

	if _, err := f.svc.Confirm(ctx, customer, b.ID); !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected customer confirm to be forbidden, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, stranger, b.ID, booking.TransitionOptions{}); !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected stranger cancel to be forbidden, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.ownerActor(), b.ID); !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected pending -> completed to be invalid, got %v", err)
	}

	confirmed, err := f.svc.Confirm(ctx, f.ownerActor(), b.ID)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if confirmed.Status != booking.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}
	if _, err := f.svc.Confirm(ctx, f.ownerActor(), b.ID); !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected confirmed -> confirmed to be invalid, got %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, customer, b.ID, booking.TransitionOptions{})
	if err != nil {
		t.Fatalf("customer cancel failed: %v", err)
	}
	if cancelled.Status != booking.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	if _, err := f.svc.Cancel(ctx, customer, b.ID, booking.TransitionOptions{}); !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected repeated cancel to be invalid, got %v", err)
	}
	again, err := f.svc.Cancel(ctx, customer, b.ID, booking.TransitionOptions{AllowAlreadyCancelled: true})
	if err != nil {
		t.Fatalf("expected tolerated repeated cancel, got %v", err)
	}
	if again.Status != booking.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", again.Status)
	}
	if _, err := f.svc.Complete(ctx, f.ownerActor(), b.ID); !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected cancelled -> completed to be invalid, got %v", err)
	}

	// The released slot can be booked again.
	f.book(t, monday, "10:00", 1)
}

func TestTransitionUnknownBookingAndAction(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	if _, err := f.svc.Confirm(ctx, f.ownerActor(), uuid.New()); !errors.Is(err, booking.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}

	b := f.book(t, monday, "10:00", 1)
	if _, err := f.svc.Transition(ctx, f.ownerActor(), b.ID, booking.Action("reopen"), booking.TransitionOptions{}); !errors.Is(err, booking.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown action, got %v", err)
	}
}

func TestGetAndListVisibility(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	stranger := booking.Actor{UserID: uuid.New()}

	b := f.book(t, monday, "11:00", 1)
	f.book(t, monday, "09:00", 1)

	if _, err := f.svc.Get(ctx, f.ownerActor(), b.ID); err != nil {
		t.Fatalf("owner get failed: %v", err)
	}
	if _, err := f.svc.Get(ctx, stranger, b.ID); !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}

	list, err := f.svc.ListForBusiness(ctx, f.ownerActor(), f.business.ID, schedule.MustParseDate(monday))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].StartTime.String() != "09:00" {
		t.Fatalf("expected 2 bookings ordered by start time, got %d", len(list))
	}
	if _, err := f.svc.ListForBusiness(ctx, booking.Actor{UserID: f.customer}, f.business.ID, schedule.MustParseDate(monday)); !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for customer list, got %v", err)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	ch, cancel := f.bus.Subscribe(8)
	defer cancel()

	b := f.book(t, monday, "10:00", 1)
	if _, err := f.svc.Confirm(ctx, f.ownerActor(), b.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	// A failed transition publishes nothing.
	_, _ = f.svc.Confirm(ctx, f.ownerActor(), b.ID)

	created := <-ch
	if created.Type != events.BookingCreated || created.BookingID != b.ID || created.Status != "pending" {
		t.Fatalf("unexpected created event: %+v", created)
	}
	changed := <-ch
	if changed.Type != events.BookingStatusChanged || changed.PreviousStatus != "pending" || changed.Status != "confirmed" {
		t.Fatalf("unexpected status event: %+v", changed)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestCompleteElapsed(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	done := f.book(t, monday, "10:00", 1)
	if _, err := f.svc.Confirm(ctx, f.ownerActor(), done.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	pending := f.book(t, monday, "12:00", 1)
	future := f.book(t, "2025-12-23", "10:00", 1)
	if _, err := f.svc.Confirm(ctx, f.ownerActor(), future.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	n, err := f.svc.CompleteElapsed(ctx, schedule.MustParseDate("2025-12-23"))
	if err != nil {
		t.Fatalf("complete elapsed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 completed booking, got %d", n)
	}

	for id, want := range map[uuid.UUID]booking.Status{
		done.ID:    booking.StatusCompleted,
		pending.ID: booking.StatusPending,
		future.ID:  booking.StatusConfirmed,
	} {
		b, err := f.ledger.Get(ctx, id)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if b.Status != want {
			t.Fatalf("booking %s: expected %s, got %s", id, want, b.Status)
		}
	}
}

// flakyLedger reports a write conflict for the first n creates.
type flakyLedger struct {
	*booking.MemoryLedger
	conflicts int
	calls     int
}

func (l *flakyLedger) Create(ctx context.Context, b *booking.Booking, check booking.CheckFunc) error {
	l.calls++
	if l.calls <= l.conflicts {
		return booking.ErrPersistenceConflict
	}
	return l.MemoryLedger.Create(ctx, b, check)
}

func TestCreateBookingRetriesOnceOnConflict(t *testing.T) {
	ledger := &flakyLedger{MemoryLedger: booking.NewMemoryLedger(), conflicts: 1}
	f := newFixtureWithLedger(t, 1, ledger)

	if _, err := f.svc.CreateBooking(context.Background(), booking.Actor{UserID: f.customer}, f.request(monday, "10:00", 1)); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if ledger.calls != 2 {
		t.Fatalf("expected 2 create attempts, got %d", ledger.calls)
	}
}

func TestCreateBookingSecondConflictIsSlotUnavailable(t *testing.T) {
	ledger := &flakyLedger{MemoryLedger: booking.NewMemoryLedger(), conflicts: 2}
	f := newFixtureWithLedger(t, 1, ledger)

	_, err := f.svc.CreateBooking(context.Background(), booking.Actor{UserID: f.customer}, f.request(monday, "10:00", 1))
	if !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if ledger.calls != 2 {
		t.Fatalf("expected exactly 2 create attempts, got %d", ledger.calls)
	}
}
