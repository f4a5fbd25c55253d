package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrHoursNotFound is returned by an HoursSource when no row exists.
var ErrHoursNotFound = errors.New("hours not found")

// RegularHours is the weekly schedule entry for one day of week (0 = Sunday).
type RegularHours struct {
	BusinessID uuid.UUID `db:"business_id" json:"business_id"`
	DayOfWeek  int       `db:"day_of_week" json:"day_of_week"`
	OpenTime   Clock     `db:"open_time" json:"open_time"`
	CloseTime  Clock     `db:"close_time" json:"close_time"`
	IsClosed   bool      `db:"is_closed" json:"is_closed"`
}

// SpecialHours overrides RegularHours for a single calendar date.
type SpecialHours struct {
	BusinessID uuid.UUID `db:"business_id" json:"business_id"`
	Date       Date      `db:"date" json:"date"`
	OpenTime   Clock     `db:"open_time" json:"open_time"`
	CloseTime  Clock     `db:"close_time" json:"close_time"`
	IsClosed   bool      `db:"is_closed" json:"is_closed"`
}

// Interval is a same-day [Open, Close) range. The zero value is Closed.
type Interval struct {
	Open  Clock
	Close Clock
}

// Closed is the interval of a day with no bookable time.
var Closed = Interval{}

func (iv Interval) IsClosed() bool {
	return iv.Close <= iv.Open
}

// Minutes returns the length of the interval, 0 when closed.
func (iv Interval) Minutes() int {
	if iv.IsClosed() {
		return 0
	}
	return int(iv.Close - iv.Open)
}

// Contains reports whether [start, end) lies fully inside the interval.
func (iv Interval) Contains(start, end Clock) bool {
	if iv.IsClosed() {
		return false
	}
	return start >= iv.Open && end <= iv.Close && start < end
}

// ResolveInterval applies the override rules: a special-hours row wins over the
// weekly schedule verbatim, a missing or closed weekly row is Closed, and an
// inverted open/close pair is treated as Closed.
func ResolveInterval(special *SpecialHours, regular *RegularHours) Interval {
	if special != nil {
		if special.IsClosed {
			return Closed
		}
		return normalize(special.OpenTime, special.CloseTime)
	}
	if regular == nil || regular.IsClosed {
		return Closed
	}
	return normalize(regular.OpenTime, regular.CloseTime)
}

func normalize(open, close Clock) Interval {
	if open >= close || !open.Valid() || !close.Valid() {
		return Closed
	}
	return Interval{Open: open, Close: close}
}

// HoursSource reads the declared hours of a business. Implementations return
// ErrHoursNotFound when the row does not exist.
type HoursSource interface {
	SpecialHours(ctx context.Context, businessID uuid.UUID, date Date) (*SpecialHours, error)
	RegularHours(ctx context.Context, businessID uuid.UUID, dayOfWeek int) (*RegularHours, error)
}

// Resolver answers "when is this business open on this date".
type Resolver struct {
	source HoursSource
}

func NewResolver(source HoursSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the effective interval for the date, or Closed.
func (r *Resolver) Resolve(ctx context.Context, businessID uuid.UUID, date Date) (Interval, error) {
	special, err := r.source.SpecialHours(ctx, businessID, date)
	switch {
	case err == nil:
		return ResolveInterval(special, nil), nil
	case !errors.Is(err, ErrHoursNotFound):
		return Closed, err
	}

	regular, err := r.source.RegularHours(ctx, businessID, int(date.Weekday()))
	if err != nil {
		if errors.Is(err, ErrHoursNotFound) {
			return Closed, nil
		}
		return Closed, err
	}
	return ResolveInterval(nil, regular), nil
}
