package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateKeyLayout is the canonical date-key format used by the event store
	DateKeyLayout = "2006-01-02"

	// LocalDateTimeLayout is the wire format for event timestamps. The API
	// has no notion of time zones, so the value is always a naive local time.
	LocalDateTimeLayout = "2006-01-02T15:04:05"

	localDateTimeShortLayout = "2006-01-02T15:04"

	MinutesPerDay = 24 * 60
)

// EndOfDay is midnight at the end of the day. Events running past midnight
// are cut off here.
const EndOfDay TimeOfDay = MinutesPerDay

// TimeOfDay is a wall-clock time expressed in minutes from midnight
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hour and minute components
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM" (24-hour clock)
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	return NewTimeOfDay(hour, minute), nil
}

// Hour returns the hour component
func (t TimeOfDay) Hour() int {
	return int(t) / 60
}

// Minute returns the minute component
func (t TimeOfDay) Minute() int {
	return int(t) % 60
}

// String renders the time as "HH:MM"
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// SlotLabel renders the time on a 12-hour clock, e.g. "9:00 AM"
func (t TimeOfDay) SlotLabel() string {
	hour := t.Hour()
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	hour = hour % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, t.Minute(), suffix)
}

// NewDate returns the naive calendar date y-m-d. Dates are held at midnight
// UTC so that arithmetic never crosses a DST boundary.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf strips the clock from t, keeping its local date components
func DateOf(t time.Time) time.Time {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// DateKey renders a date as the store key "YYYY-MM-DD"
func DateKey(date time.Time) string {
	return date.Format(DateKeyLayout)
}

// ParseDateKey parses "YYYY-MM-DD" into a naive date
func ParseDateKey(key string) (time.Time, error) {
	date, err := time.Parse(DateKeyLayout, strings.TrimSpace(key))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", key, err)
	}
	return date, nil
}

// WeekdayIndex returns the Monday-first index (0 = Monday, 6 = Sunday)
func WeekdayIndex(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

// FormatLocalDateTime renders a date and time of day in the wire format
// "YYYY-MM-DDTHH:mm:00"
func FormatLocalDateTime(date time.Time, tod TimeOfDay) string {
	return fmt.Sprintf("%sT%s:00", DateKey(date), tod)
}

// ParseLocalDateTime splits a wire timestamp into its date and time of day.
// Seconds are accepted but dropped.
func ParseLocalDateTime(s string) (time.Time, TimeOfDay, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(LocalDateTimeLayout, s)
	if err != nil {
		t, err = time.Parse(localDateTimeShortLayout, s)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("invalid local date-time %q", s)
		}
	}
	return DateOf(t), NewTimeOfDay(t.Hour(), t.Minute()), nil
}
