// Package timeutil provides calendar arithmetic in a single configured timezone.
// Every day and week boundary used by the bot goes through Calendar so that
// "same day", "start of week" and "days between" agree everywhere.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// TokyoTZ is the Japan Standard Time zone (UTC+9, no DST).
// Used as a fallback when the tz database is unavailable.
var TokyoTZ = time.FixedZone("Asia/Tokyo", 9*60*60)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// Calendar answers calendar questions in one location with a configurable
// first day of the week.
type Calendar struct {
	loc       *time.Location
	weekStart time.Weekday
}

// NewCalendar creates a calendar. A nil location means TokyoTZ.
func NewCalendar(loc *time.Location, weekStart time.Weekday) Calendar {
	if loc == nil {
		loc = TokyoTZ
	}
	return Calendar{loc: loc, weekStart: weekStart}
}

// DefaultCalendar is Asia/Tokyo with weeks starting on Sunday.
func DefaultCalendar() Calendar {
	return NewCalendar(TokyoTZ, time.Sunday)
}

// Location returns the calendar's timezone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return TokyoTZ
	}
	return c.loc
}

// WeekStart returns the first day of the week.
func (c Calendar) WeekStart() time.Weekday {
	return c.weekStart
}

// In converts t to the calendar's timezone.
func (c Calendar) In(t time.Time) time.Time {
	return t.In(c.Location())
}

// StartOfWeek returns local midnight of the most recent week-start day on or before t.
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	l := c.In(t)
	back := (int(l.Weekday()) - int(c.weekStart) + 7) % 7
	return time.Date(l.Year(), l.Month(), l.Day()-back, 0, 0, 0, 0, c.Location())
}

// At returns the instant at hour:minute on the local day containing t.
func (c Calendar) At(t time.Time, hour, minute int) time.Time {
	l := c.In(t)
	return time.Date(l.Year(), l.Month(), l.Day(), hour, minute, 0, 0, c.Location())
}

// SameDay reports whether a and b fall on the same local calendar day.
func (c Calendar) SameDay(a, b time.Time) bool {
	la, lb := c.In(a), c.In(b)
	return la.Year() == lb.Year() && la.YearDay() == lb.YearDay()
}

// DaysBetween returns the number of calendar days from a to b.
// The result is negative when b is on an earlier day than a.
// Dates are compared on a UTC grid so DST shifts never produce 23 or 25 hour days.
func (c Calendar) DaysBetween(a, b time.Time) int {
	la, lb := c.In(a), c.In(b)
	da := time.Date(la.Year(), la.Month(), la.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(lb.Year(), lb.Month(), lb.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// Hour returns the local hour of t.
func (c Calendar) Hour(t time.Time) int {
	return c.In(t).Hour()
}

// Format formats t in the calendar's timezone.
func (c Calendar) Format(t time.Time, layout string) string {
	return c.In(t).Format(layout)
}

// ParseWeekday parses an English weekday name ("sunday", "Mon", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// LoadLocation loads a named timezone, falling back to TokyoTZ for Asia/Tokyo
// when the tz database is missing.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == "Asia/Tokyo" || name == "JST" {
		return TokyoTZ, nil
	}
	return nil, fmt.Errorf("load location %q: %w", name, err)
}
