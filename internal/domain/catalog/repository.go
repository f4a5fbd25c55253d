package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

// Repository defines catalog data access. It also serves as the hours source
// of the schedule resolver.
type Repository interface {
	schedule.HoursSource

	GetBusiness(ctx context.Context, id uuid.UUID) (*Business, error)
	SaveBusiness(ctx context.Context, b *Business) error
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	ListServices(ctx context.Context, businessID uuid.UUID) ([]*Service, error)
	SaveService(ctx context.Context, s *Service) error

	ListRegularHours(ctx context.Context, businessID uuid.UUID) ([]schedule.RegularHours, error)
	ListSpecialHours(ctx context.Context, businessID uuid.UUID, from schedule.Date) ([]schedule.SpecialHours, error)
	UpsertRegularHours(ctx context.Context, h *schedule.RegularHours) error
	UpsertSpecialHours(ctx context.Context, h *schedule.SpecialHours) error
	DeleteSpecialHours(ctx context.Context, businessID uuid.UUID, date schedule.Date) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the Postgres catalog repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetBusiness(ctx context.Context, id uuid.UUID) (*Business, error) {
	query := `SELECT id, owner_id, name, locale, currency, created_at FROM businesses WHERE id = $1`
	var b Business
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) SaveBusiness(ctx context.Context, b *Business) error {
	query := `
		INSERT INTO businesses (id, owner_id, name, locale, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			locale = EXCLUDED.locale,
			currency = EXCLUDED.currency
	`
	_, err := r.db.ExecContext(ctx, query, b.ID, b.OwnerID, b.Name, b.Locale, b.Currency, b.CreatedAt)
	return err
}

func (r *repository) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	query := `
		SELECT id, business_id, name, duration_minutes, capacity, price, created_at, updated_at
		FROM services WHERE id = $1
	`
	var s Service
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListServices(ctx context.Context, businessID uuid.UUID) ([]*Service, error) {
	query := `
		SELECT id, business_id, name, duration_minutes, capacity, price, created_at, updated_at
		FROM services WHERE business_id = $1
		ORDER BY name
	`
	var services []*Service
	if err := r.db.SelectContext(ctx, &services, query, businessID); err != nil {
		return nil, err
	}
	return services, nil
}

func (r *repository) SaveService(ctx context.Context, s *Service) error {
	query := `
		INSERT INTO services (id, business_id, name, duration_minutes, capacity, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			capacity = EXCLUDED.capacity,
			price = EXCLUDED.price,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.BusinessID, s.Name, s.DurationMinutes, s.Capacity, s.Price, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *repository) RegularHours(ctx context.Context, businessID uuid.UUID, dayOfWeek int) (*schedule.RegularHours, error) {
	query := `
		SELECT business_id, day_of_week, open_time, close_time, is_closed
		FROM regular_hours WHERE business_id = $1 AND day_of_week = $2
	`
	var h schedule.RegularHours
	if err := r.db.GetContext(ctx, &h, query, businessID, dayOfWeek); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedule.ErrHoursNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (r *repository) SpecialHours(ctx context.Context, businessID uuid.UUID, date schedule.Date) (*schedule.SpecialHours, error) {
	query := `
		SELECT business_id, date, open_time, close_time, is_closed
		FROM special_hours WHERE business_id = $1 AND date = $2
	`
	var h schedule.SpecialHours
	if err := r.db.GetContext(ctx, &h, query, businessID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedule.ErrHoursNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (r *repository) ListRegularHours(ctx context.Context, businessID uuid.UUID) ([]schedule.RegularHours, error) {
	query := `
		SELECT business_id, day_of_week, open_time, close_time, is_closed
		FROM regular_hours WHERE business_id = $1
		ORDER BY day_of_week
	`
	var hours []schedule.RegularHours
	if err := r.db.SelectContext(ctx, &hours, query, businessID); err != nil {
		return nil, err
	}
	return hours, nil
}

func (r *repository) ListSpecialHours(ctx context.Context, businessID uuid.UUID, from schedule.Date) ([]schedule.SpecialHours, error) {
	query := `
		SELECT business_id, date, open_time, close_time, is_closed
		FROM special_hours WHERE business_id = $1 AND date >= $2
		ORDER BY date
	`
	var hours []schedule.SpecialHours
	if err := r.db.SelectContext(ctx, &hours, query, businessID, from); err != nil {
		return nil, err
	}
	return hours, nil
}

func (r *repository) UpsertRegularHours(ctx context.Context, h *schedule.RegularHours) error {
	query := `
		INSERT INTO regular_hours (business_id, day_of_week, open_time, close_time, is_closed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, day_of_week) DO UPDATE SET
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time,
			is_closed = EXCLUDED.is_closed
	`
	_, err := r.db.ExecContext(ctx, query, h.BusinessID, h.DayOfWeek, h.OpenTime, h.CloseTime, h.IsClosed)
	return err
}

func (r *repository) UpsertSpecialHours(ctx context.Context, h *schedule.SpecialHours) error {
	query := `
		INSERT INTO special_hours (business_id, date, open_time, close_time, is_closed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, date) DO UPDATE SET
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time,
			is_closed = EXCLUDED.is_closed
	`
	_, err := r.db.ExecContext(ctx, query, h.BusinessID, h.Date, h.OpenTime, h.CloseTime, h.IsClosed)
	return err
}

func (r *repository) DeleteSpecialHours(ctx context.Context, businessID uuid.UUID, date schedule.Date) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM special_hours WHERE business_id = $1 AND date = $2`, businessID, date)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return schedule.ErrHoursNotFound
	}
	return nil
}
