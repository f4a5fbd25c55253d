package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// ClockLayout is the persisted wall-clock format (24-hour, business-local).
	ClockLayout = "15:04"
	// DateLayout is the persisted calendar date format.
	DateLayout = "2006-01-02"

	// MinutesPerDay is the exclusive upper bound for a start time and the
	// inclusive upper bound for an end time.
	MinutesPerDay = 24 * 60
)

var (
	ErrInvalidClock = errors.New("invalid time of day, expected HH:MM")
	ErrInvalidDate  = errors.New("invalid date, expected YYYY-MM-DD")
)

// Clock is a business-local wall-clock time stored as minutes after midnight.
// 24:00 is representable so that a day-long interval can be closed.
type Clock int

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM". "HH:MM:SS" is accepted when seconds are zero,
// which is what Postgres TIME columns render.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, ErrInvalidClock
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, ErrInvalidClock
	}
	if len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, ErrInvalidClock
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, ErrInvalidClock
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, ErrInvalidClock
	}
	if minute < 0 || minute > 59 || hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, ErrInvalidClock
	}
	return NewClock(hour, minute), nil
}

// MustParseClock is ParseClock for literals known to be valid.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(fmt.Sprintf("schedule: %q: %v", s, err))
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// Add returns c shifted by the given number of minutes. The result may fall
// outside the day; callers check Valid where it matters.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

// Valid reports whether c lies within [00:00, 24:00].
func (c Clock) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidClock
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements the driver.Valuer interface
func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}

// Scan implements the sql.Scanner interface
func (c *Clock) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = 0
		return nil
	case string:
		return c.scanString(v)
	case []byte:
		return c.scanString(string(v))
	case time.Time:
		*c = NewClock(v.Hour(), v.Minute())
		return nil
	default:
		return fmt.Errorf("schedule: cannot scan %T into Clock", value)
	}
}

func (c *Clock) scanString(s string) error {
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Date is a calendar date without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(fmt.Sprintf("schedule: %q: %v", s, err))
	}
	return d
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) asTime() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool { return d == Date{} }

// Weekday returns the day of week, Sunday = 0.
func (d Date) Weekday() time.Weekday {
	return d.asTime().Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.asTime().AddDate(0, 0, n))
}

func (d Date) Before(other Date) bool {
	return d.asTime().Before(other.asTime())
}

func (d Date) String() string {
	return d.asTime().Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements the driver.Valuer interface
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements the sql.Scanner interface
func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("schedule: cannot scan %T into Date", value)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
