package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

type dayKey struct {
	business uuid.UUID
	day      int
}

type dateKey struct {
	business uuid.UUID
	date     schedule.Date
}

// MemoryRepository keeps the catalog in process memory. It backs the
// STORE_DRIVER=memory mode and service tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	businesses map[uuid.UUID]Business
	services   map[uuid.UUID]Service
	regular    map[dayKey]schedule.RegularHours
	special    map[dateKey]schedule.SpecialHours
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		businesses: make(map[uuid.UUID]Business),
		services:   make(map[uuid.UUID]Service),
		regular:    make(map[dayKey]schedule.RegularHours),
		special:    make(map[dateKey]schedule.SpecialHours),
	}
}

func (m *MemoryRepository) GetBusiness(_ context.Context, id uuid.UUID) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return &b, nil
}

func (m *MemoryRepository) SaveBusiness(_ context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[b.ID] = *b
	return nil
}

func (m *MemoryRepository) GetService(_ context.Context, id uuid.UUID) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) ListServices(_ context.Context, businessID uuid.UUID) ([]*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Service
	for _, s := range m.services {
		if s.BusinessID == businessID {
			out = append(out, &s)
		}
	}
	slices.SortFunc(out, func(a, b *Service) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *MemoryRepository) SaveService(_ context.Context, s *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = *s
	return nil
}

func (m *MemoryRepository) RegularHours(_ context.Context, businessID uuid.UUID, dayOfWeek int) (*schedule.RegularHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.regular[dayKey{businessID, dayOfWeek}]
	if !ok {
		return nil, schedule.ErrHoursNotFound
	}
	return &h, nil
}

func (m *MemoryRepository) SpecialHours(_ context.Context, businessID uuid.UUID, date schedule.Date) (*schedule.SpecialHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.special[dateKey{businessID, date}]
	if !ok {
		return nil, schedule.ErrHoursNotFound
	}
	return &h, nil
}

func (m *MemoryRepository) ListRegularHours(_ context.Context, businessID uuid.UUID) ([]schedule.RegularHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.RegularHours
	for day := 0; day < 7; day++ {
		if h, ok := m.regular[dayKey{businessID, day}]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListSpecialHours(_ context.Context, businessID uuid.UUID, from schedule.Date) ([]schedule.SpecialHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.SpecialHours
	for k, h := range m.special {
		if k.business == businessID && !k.date.Before(from) {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b schedule.SpecialHours) int {
		switch {
		case a.Date.Before(b.Date):
			return -1
		case b.Date.Before(a.Date):
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *MemoryRepository) UpsertRegularHours(_ context.Context, h *schedule.RegularHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regular[dayKey{h.BusinessID, h.DayOfWeek}] = *h
	return nil
}

func (m *MemoryRepository) UpsertSpecialHours(_ context.Context, h *schedule.SpecialHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.special[dateKey{h.BusinessID, h.Date}] = *h
	return nil
}

func (m *MemoryRepository) DeleteSpecialHours(_ context.Context, businessID uuid.UUID, date schedule.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dateKey{businessID, date}
	if _, ok := m.special[key]; !ok {
		return schedule.ErrHoursNotFound
	}
	delete(m.special, key)
	return nil
}
