// Package calendar holds the clinic's date and wall-clock time types.
//
// Dates travel as YYYY-MM-DD and times as 24h HH:MM. Both types plug into
// pgx's DATE and TIME codecs, so repositories scan and bind them directly.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/clinicsched/clinic/internal/platform/apperr"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Date is a calendar day with no time zone.
type Date struct {
	t time.Time // midnight UTC
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses YYYY-MM-DD. field names the input in the error message.
func ParseDate(field, s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, apperr.Validation(field + " is required")
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, apperr.Validation(fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field))
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Time() time.Time    { return d.t }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate("date", string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ScanDate implements pgtype.DateScanner.
func (d *Date) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		*d = Date{}
		return nil
	}
	if v.InfinityModifier != pgtype.Finite {
		return fmt.Errorf("cannot scan infinite date")
	}
	*d = DateOf(v.Time)
	return nil
}

// DateValue implements pgtype.DateValuer.
func (d Date) DateValue() (pgtype.Date, error) {
	if d.IsZero() {
		return pgtype.Date{}, nil
	}
	return pgtype.Date{Time: d.t, Valid: true}, nil
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	minutes int
	valid   bool
}

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{minutes: hour*60 + minute, valid: true}
}

// ParseTimeOfDay parses 24h HH:MM. field names the input in the error message.
func ParseTimeOfDay(field, s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, apperr.Validation(field + " is required")
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return TimeOfDay{}, apperr.Validation(fmt.Sprintf("%s must be a time in HH:MM format", field))
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) IsZero() bool            { return !t.valid }
func (t TimeOfDay) Minutes() int            { return t.minutes }
func (t TimeOfDay) Before(o TimeOfDay) bool { return t.minutes < o.minutes }
func (t TimeOfDay) String() string {
	if !t.valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.minutes/60, t.minutes%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = TimeOfDay{}
		return nil
	}
	parsed, err := ParseTimeOfDay("time", string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

const microsPerMinute = int64(time.Minute / time.Microsecond)

// ScanTime implements pgtype.TimeScanner. Seconds are dropped.
func (t *TimeOfDay) ScanTime(v pgtype.Time) error {
	if !v.Valid {
		*t = TimeOfDay{}
		return nil
	}
	*t = TimeOfDay{minutes: int(v.Microseconds / microsPerMinute), valid: true}
	return nil
}

// TimeValue implements pgtype.TimeValuer.
func (t TimeOfDay) TimeValue() (pgtype.Time, error) {
	if !t.valid {
		return pgtype.Time{}, nil
	}
	return pgtype.Time{Microseconds: int64(t.minutes) * microsPerMinute, Valid: true}, nil
}

// Clock reports "now" and "today" in the clinic's time zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// FixedClock always reports t. Tests use it to pin "today".
func FixedClock(t time.Time) *Clock {
	return &Clock{loc: t.Location(), now: func() time.Time { return t }}
}

func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

func (c *Clock) Today() Date { return DateOf(c.Now()) }
