package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slotbook/slotbook-api/internal/domain/catalog"
	"github.com/slotbook/slotbook-api/internal/domain/events"
	"github.com/slotbook/slotbook-api/internal/domain/schedule"
	"github.com/slotbook/slotbook-api/internal/pkg/logger"
	"github.com/slotbook/slotbook-api/internal/pkg/validator"
)

// Catalog is the read side of businesses and services the booking service
// depends on.
type Catalog interface {
	Business(ctx context.Context, id uuid.UUID) (*catalog.Business, error)
	BookableService(ctx context.Context, businessID, serviceID uuid.UUID) (*catalog.Business, *catalog.Service, error)
}

// Options configures the booking service
type Options struct {
	GranularityMinutes int
	TxTimeout          time.Duration
}

// Service orchestrates availability queries and ledger writes
type Service struct {
	ledger      Ledger
	catalog     Catalog
	resolver    *schedule.Resolver
	publisher   events.Publisher
	granularity int
	txTimeout   time.Duration
	now         func() time.Time
}

// NewService creates booking service
func NewService(ledger Ledger, cat Catalog, resolver *schedule.Resolver, publisher events.Publisher, opts Options) *Service {
	if opts.GranularityMinutes <= 0 {
		opts.GranularityMinutes = schedule.DefaultGranularity
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 5 * time.Second
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{
		ledger:      ledger,
		catalog:     cat,
		resolver:    resolver,
		publisher:   publisher,
		granularity: opts.GranularityMinutes,
		txTimeout:   opts.TxTimeout,
		now:         time.Now,
	}
}

// GetAvailability lists every candidate start time of the service on date
// with whether one more occupant fits. It reads a fresh snapshot each call.
func (s *Service) GetAvailability(ctx context.Context, businessID, serviceID uuid.UUID, date schedule.Date) ([]schedule.SlotAvailability, error) {
	_, svc, err := s.catalog.BookableService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}

	interval, err := s.resolver.Resolve(ctx, businessID, date)
	if err != nil {
		return nil, err
	}
	if interval.IsClosed() {
		return []schedule.SlotAvailability{}, nil
	}

	active, err := s.ledger.ListActive(ctx, SlotKey{BusinessID: businessID, ServiceID: serviceID, Date: date})
	if err != nil {
		return nil, err
	}

	slots := schedule.Generate(interval, svc.DurationMinutes, s.granularity)
	return schedule.Filter(slots, svc.DurationMinutes, spans(active), svc.EffectiveCapacity()), nil
}

// CreateBooking places a pending booking. The availability re-check and the
// insert happen inside one ledger operation; a slot list fetched earlier is
// never trusted.
func (s *Service) CreateBooking(ctx context.Context, actor Actor, req *CreateBookingRequest) (*Booking, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrForbidden
	}
	if errs := validator.Validate(req); errs != nil {
		logger.LogWarn(ctx, "Booking request rejected", "validation_errors", errs)
		return nil, &ValidationError{Fields: errs}
	}

	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		return nil, NewValidationError("business_id", "Invalid UUID")
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		return nil, NewValidationError("service_id", "Invalid UUID")
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return nil, NewValidationError("date", err.Error())
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		return nil, NewValidationError("start_time", err.Error())
	}

	_, svc, err := s.catalog.BookableService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}

	capacity := svc.EffectiveCapacity()
	if req.NumberOfPeople > capacity {
		logger.LogInfo(ctx, "Booking rejected", "reason", "capacity", "people", req.NumberOfPeople, "capacity", capacity)
		return nil, ErrCapacityExceeded
	}

	end := start.Add(svc.DurationMinutes)
	if end > schedule.MinutesPerDay {
		return nil, NewValidationError("start_time", "booking would end after midnight")
	}

	interval, err := s.resolver.Resolve(ctx, businessID, date)
	if err != nil {
		return nil, err
	}
	if !interval.Contains(start, end) {
		logger.LogInfo(ctx, "Booking rejected", "reason", "hours", "date", date.String(), "start_time", start.String())
		return nil, ErrOutsideBusinessHours
	}

	now := s.now()
	b := &Booking{
		ID:             uuid.New(),
		BusinessID:     businessID,
		ServiceID:      serviceID,
		CustomerID:     actor.UserID,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
		Status:         StatusPending,
		NumberOfPeople: req.NumberOfPeople,
		ContactName:    strings.TrimSpace(req.ContactName),
		ContactEmail:   strings.TrimSpace(req.ContactEmail),
		ContactPhone:   strings.TrimSpace(req.ContactPhone),
		Notes:          req.Notes,
		TotalAmount:    svc.Price.Mul(decimal.NewFromInt(int64(req.NumberOfPeople))),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	check := func(active []*Booking) error {
		if !schedule.Fits(start, end, spans(active), capacity) {
			return ErrSlotUnavailable
		}
		return nil
	}

	err = s.create(ctx, b, check)
	if errors.Is(err, ErrPersistenceConflict) {
		logger.LogWarn(ctx, "Booking write conflict, retrying once", "slot", b.Key().String())
		err = s.create(ctx, b, check)
		if errors.Is(err, ErrPersistenceConflict) {
			err = ErrSlotUnavailable
		}
	}
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			logger.LogInfo(ctx, "Booking rejected", "reason", "slot", "slot", b.Key().String(), "start_time", start.String())
		}
		return nil, err
	}

	logger.LogInfo(ctx, "Booking created", "booking_id", b.ID.String(), "slot", b.Key().String(), "start_time", start.String())
	s.publish(ctx, b.event(events.BookingCreated, "", now))
	return b, nil
}

func (s *Service) create(ctx context.Context, b *Booking, check CheckFunc) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	return s.ledger.Create(ctx, b, check)
}

// Transition applies action to a booking on behalf of actor.
func (s *Service) Transition(ctx context.Context, actor Actor, id uuid.UUID, action Action, opts TransitionOptions) (*Booking, error) {
	target, ok := action.Target()
	if !ok {
		return nil, NewValidationError("action", "must be one of confirm, cancel, complete")
	}

	b, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, action, b); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	result, err := s.ledger.Transition(txCtx, id, func(current *Booking) (Status, error) {
		if current.Status == target && target == StatusCancelled && opts.AllowAlreadyCancelled {
			return current.Status, nil
		}
		if !current.Status.CanTransitionTo(target) {
			return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
		}
		return target, nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			logger.LogError(ctx, err, "Rejected booking transition",
				"booking_id", id.String(), "action", string(action), "actor", actor.UserID.String())
		}
		return nil, err
	}

	if result.Changed {
		logger.LogInfo(ctx, "Booking status changed",
			"booking_id", id.String(), "from", string(result.Previous), "to", string(result.Booking.Status))
		s.publish(ctx, result.Booking.event(events.BookingStatusChanged, result.Previous, result.Booking.UpdatedAt))
	}
	return result.Booking, nil
}

// Confirm moves a pending booking to confirmed. Owner only.
func (s *Service) Confirm(ctx context.Context, actor Actor, id uuid.UUID) (*Booking, error) {
	return s.Transition(ctx, actor, id, ActionConfirm, TransitionOptions{})
}

// Cancel releases the slot of a pending or confirmed booking.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, opts TransitionOptions) (*Booking, error) {
	return s.Transition(ctx, actor, id, ActionCancel, opts)
}

// Complete marks a confirmed booking as served.
func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Booking, error) {
	return s.Transition(ctx, actor, id, ActionComplete, TransitionOptions{})
}

// Get returns a booking visible to its customer and the business owner.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Booking, error) {
	b, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != uuid.Nil && b.CustomerID == actor.UserID {
		return b, nil
	}
	if ok, err := s.isOwner(ctx, actor, b.BusinessID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrForbidden
	}
	return b, nil
}

// ListForBusiness returns every booking of date for the business owner.
func (s *Service) ListForBusiness(ctx context.Context, actor Actor, businessID uuid.UUID, date schedule.Date) ([]*Booking, error) {
	ok, err := s.isOwner(ctx, actor, businessID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	bookings, err := s.ledger.ListByDate(ctx, businessID, date)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []*Booking{}
	}
	return bookings, nil
}

// CompleteElapsed completes confirmed bookings dated before today. Each
// booking goes through the regular transition; a failure is logged and the
// batch continues.
func (s *Service) CompleteElapsed(ctx context.Context, today schedule.Date) (int, error) {
	due, err := s.ledger.ListConfirmedBefore(ctx, today)
	if err != nil {
		return 0, err
	}

	completed := 0
	var errs []error
	for _, b := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Complete(ctx, SystemActor, b.ID); err != nil {
			logger.LogError(ctx, err, "Failed to complete booking", "booking_id", b.ID.String())
			errs = append(errs, err)
			continue
		}
		completed++
	}
	return completed, errors.Join(errs...)
}

func (s *Service) authorize(ctx context.Context, actor Actor, action Action, b *Booking) error {
	if actor.System {
		if action == ActionComplete {
			return nil
		}
		return ErrForbidden
	}
	if actor.UserID == uuid.Nil {
		return ErrForbidden
	}

	if action == ActionCancel && b.CustomerID == actor.UserID {
		return nil
	}

	owner, err := s.isOwner(ctx, actor, b.BusinessID)
	if err != nil {
		return err
	}
	if !owner {
		return ErrForbidden
	}
	return nil
}

func (s *Service) isOwner(ctx context.Context, actor Actor, businessID uuid.UUID) (bool, error) {
	if actor.UserID == uuid.Nil {
		return false, nil
	}
	business, err := s.catalog.Business(ctx, businessID)
	if err != nil {
		return false, err
	}
	return business.IsOwnedBy(actor.UserID), nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.LogWarn(ctx, "Failed to publish booking event",
			"event_type", string(event.Type), "booking_id", event.BookingID.String(), "error", err.Error())
	}
}
