package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

// Manager handles catalog and opening-hours business logic
type Manager struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewManager creates the catalog manager. loc is the business-local zone.
func NewManager(repo Repository, loc *time.Location) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{repo: repo, loc: loc, now: time.Now}
}

// Today returns the current business-local date.
func (m *Manager) Today() schedule.Date {
	return schedule.DateOf(m.now().In(m.loc))
}

// Business returns a business by ID
func (m *Manager) Business(ctx context.Context, id uuid.UUID) (*Business, error) {
	return m.repo.GetBusiness(ctx, id)
}

// BookableService returns the service together with the business it belongs
// to. A service of another business is reported as not found.
func (m *Manager) BookableService(ctx context.Context, businessID, serviceID uuid.UUID) (*Business, *Service, error) {
	b, err := m.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, nil, err
	}
	svc, err := m.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}
	if svc.BusinessID != b.ID {
		return nil, nil, ErrServiceNotFound
	}
	return b, svc, nil
}

func (m *Manager) ListServices(ctx context.Context, businessID uuid.UUID) ([]*Service, error) {
	if _, err := m.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	services, err := m.repo.ListServices(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if services == nil {
		services = []*Service{}
	}
	return services, nil
}

// UpdateService changes duration, capacity and price. Bookings already placed
// are not touched.
func (m *Manager) UpdateService(ctx context.Context, ownerID, businessID, serviceID uuid.UUID, req *UpdateServiceRequest) (*Service, error) {
	if _, err := m.authorizeOwner(ctx, ownerID, businessID); err != nil {
		return nil, err
	}
	svc, err := m.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.BusinessID != businessID {
		return nil, ErrServiceNotFound
	}
	if req.Price.IsNegative() || req.DurationMinutes <= 0 {
		return nil, ErrInvalidService
	}

	svc.Name = req.Name
	svc.DurationMinutes = req.DurationMinutes
	svc.Capacity = req.Capacity
	if svc.Capacity < 1 {
		svc.Capacity = 1
	}
	svc.Price = req.Price
	svc.UpdatedAt = m.now()

	if err := m.repo.SaveService(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// Hours returns the weekly schedule and the overrides from the given date on.
func (m *Manager) Hours(ctx context.Context, businessID uuid.UUID, from schedule.Date) (*HoursResponse, error) {
	if _, err := m.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	regular, err := m.repo.ListRegularHours(ctx, businessID)
	if err != nil {
		return nil, err
	}
	special, err := m.repo.ListSpecialHours(ctx, businessID, from)
	if err != nil {
		return nil, err
	}
	if regular == nil {
		regular = []schedule.RegularHours{}
	}
	if special == nil {
		special = []schedule.SpecialHours{}
	}
	return &HoursResponse{Regular: regular, Special: special}, nil
}

func (m *Manager) SetRegularHours(ctx context.Context, ownerID, businessID uuid.UUID, day int, req *HoursRequest) (*schedule.RegularHours, error) {
	if _, err := m.authorizeOwner(ctx, ownerID, businessID); err != nil {
		return nil, err
	}
	open, close, err := parseHours(req)
	if err != nil {
		return nil, err
	}

	h := &schedule.RegularHours{
		BusinessID: businessID,
		DayOfWeek:  day,
		OpenTime:   open,
		CloseTime:  close,
		IsClosed:   req.IsClosed,
	}
	if err := m.repo.UpsertRegularHours(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (m *Manager) SetSpecialHours(ctx context.Context, ownerID, businessID uuid.UUID, date schedule.Date, req *HoursRequest) (*schedule.SpecialHours, error) {
	if _, err := m.authorizeOwner(ctx, ownerID, businessID); err != nil {
		return nil, err
	}
	open, close, err := parseHours(req)
	if err != nil {
		return nil, err
	}

	h := &schedule.SpecialHours{
		BusinessID: businessID,
		Date:       date,
		OpenTime:   open,
		CloseTime:  close,
		IsClosed:   req.IsClosed,
	}
	if err := m.repo.UpsertSpecialHours(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (m *Manager) RemoveSpecialHours(ctx context.Context, ownerID, businessID uuid.UUID, date schedule.Date) error {
	if _, err := m.authorizeOwner(ctx, ownerID, businessID); err != nil {
		return err
	}
	return m.repo.DeleteSpecialHours(ctx, businessID, date)
}

func (m *Manager) authorizeOwner(ctx context.Context, userID, businessID uuid.UUID) (*Business, error) {
	b, err := m.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !b.IsOwnedBy(userID) {
		return nil, ErrNotOwner
	}
	return b, nil
}

// parseHours enforces close > open for open days. Closed days keep zero times.
func parseHours(req *HoursRequest) (schedule.Clock, schedule.Clock, error) {
	if req.IsClosed {
		return 0, 0, nil
	}
	open, err := schedule.ParseClock(req.OpenTime)
	if err != nil {
		return 0, 0, ErrInvalidHours
	}
	close, err := schedule.ParseClock(req.CloseTime)
	if err != nil {
		return 0, 0, ErrInvalidHours
	}
	if close <= open {
		return 0, 0, ErrInvalidHours
	}
	return open, close, nil
}
