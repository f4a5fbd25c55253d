package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

const bookingColumns = `
	id, business_id, service_id, customer_id, date, start_time, end_time, status,
	number_of_people, contact_name, contact_email, contact_phone, notes,
	total_amount, created_at, updated_at
`

const lockTimeout = "3s"

// conflictCodes are the SQLSTATEs that signal a competing writer
var conflictCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"23505": true, // unique_violation
}

type repository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRepository creates the Postgres ledger
func NewRepository(db *sqlx.DB) Ledger {
	return &repository{db: db, now: time.Now}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) ListActive(ctx context.Context, key SlotKey) ([]*Booking, error) {
	return r.listActive(ctx, r.db, key)
}

func (r *repository) ListByDate(ctx context.Context, businessID uuid.UUID, date schedule.Date) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE business_id = $1 AND date = $2
		ORDER BY start_time, created_at`
	var out []*Booking
	if err := r.db.SelectContext(ctx, &out, query, businessID, date); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListConfirmedBefore(ctx context.Context, date schedule.Date) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = $1 AND date < $2
		ORDER BY date, start_time`
	var out []*Booking
	if err := r.db.SelectContext(ctx, &out, query, StatusConfirmed, date); err != nil {
		return nil, err
	}
	return out, nil
}

// beginTx opens a READ COMMITTED transaction whose lock waits give up after
// lockTimeout with SQLSTATE 55P03.
func (r *repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `SET LOCAL lock_timeout = '`+lockTimeout+`'`); err != nil {
		tx.Rollback()
		return nil, err
	}
	return tx, nil
}

// lockSlot serializes writers of one (business, service, date) until the
// transaction ends.
func (r *repository) lockSlot(ctx context.Context, tx *sqlx.Tx, key SlotKey) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String())
	return err
}

func (r *repository) listActive(ctx context.Context, q sqlx.QueryerContext, key SlotKey) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE business_id = $1 AND service_id = $2 AND date = $3 AND status = ANY($4)
		ORDER BY start_time`
	statuses := pq.Array([]string{string(StatusPending), string(StatusConfirmed)})

	var out []*Booking
	if err := sqlx.SelectContext(ctx, q, &out, query, key.BusinessID, key.ServiceID, key.Date, statuses); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Create(ctx context.Context, b *Booking, check CheckFunc) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	if err := r.lockSlot(ctx, tx, b.Key()); err != nil {
		return mapError(err)
	}

	active, err := r.listActive(ctx, tx, b.Key())
	if err != nil {
		return mapError(err)
	}
	if err := check(active); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		b.ID, b.BusinessID, b.ServiceID, b.CustomerID, b.Date, b.StartTime, b.EndTime, b.Status,
		b.NumberOfPeople, b.ContactName, b.ContactEmail, b.ContactPhone, b.Notes,
		b.TotalAmount, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}

	return mapError(tx.Commit())
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, decide DecideFunc) (*TransitionResult, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback()

	var current Booking
	err = tx.GetContext(ctx, &current, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, mapError(err)
	}

	previous := current.Status
	to, err := decide(&current)
	if err != nil {
		return nil, err
	}
	if to == previous {
		return &TransitionResult{Booking: &current, Previous: previous}, nil
	}

	now := r.now()
	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, now, id, previous,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return nil, ErrPersistenceConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}

	current.Status = to
	current.UpdatedAt = now
	return &TransitionResult{Booking: &current, Previous: previous, Changed: true}, nil
}

// mapError turns driver-level concurrency failures into ErrPersistenceConflict
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && conflictCodes[pqErr.Code] {
		return ErrPersistenceConflict
	}
	return err
}
