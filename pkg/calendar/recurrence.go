package calendar

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/venkytv/tuition-calendar/internal/models"
)

// Monday-first, matching models.WeekdayMask
var maskWeekdays = [7]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// NewRecurrenceID generates an identifier shared by every occurrence of a
// new series
func NewRecurrenceID() string {
	return "r-" + uuid.NewString()
}

// CandidateDates computes the dates an event occupies for the given anchor
// date, recurrence mode and weekday mask. An empty mask selects every day.
//
//   - NONE:  the anchor itself, when its weekday is selected
//   - WEEK:  the Monday-Sunday week containing the anchor
//   - MONTH: the calendar month containing the anchor
//
// Dates are returned in ascending order.
func CandidateDates(anchor time.Time, mode models.RecurrenceMode, mask models.WeekdayMask) ([]time.Time, error) {
	anchor = models.DateOf(anchor)
	mask = mask.Resolve()

	switch mode {
	case models.RecurrenceNone, "":
		if mask.Selects(anchor) {
			return []time.Time{anchor}, nil
		}
		return nil, nil
	case models.RecurrenceWeek:
		start, end := WeekSpan(anchor)
		return expandSpan(start, end, mask)
	case models.RecurrenceMonth:
		start, end := MonthSpan(anchor)
		return expandSpan(start, end, mask)
	default:
		return nil, fmt.Errorf("unsupported recurrence mode %q", mode)
	}
}

// WeekSpan returns the Monday and Sunday of the week containing date
func WeekSpan(date time.Time) (time.Time, time.Time) {
	date = models.DateOf(date)
	monday := date.AddDate(0, 0, -models.WeekdayIndex(date))
	return monday, monday.AddDate(0, 0, 6)
}

// MonthSpan returns the first and last day of the month containing date
func MonthSpan(date time.Time) (time.Time, time.Time) {
	first := models.NewDate(date.Year(), date.Month(), 1)
	return first, first.AddDate(0, 1, -1)
}

// expandSpan lists every selected weekday in [start, end] as a daily rule
// restricted by BYDAY
func expandSpan(start, end time.Time, mask models.WeekdayMask) ([]time.Time, error) {
	var byDay []rrule.Weekday
	for i, selected := range mask {
		if selected {
			byDay = append(byDay, maskWeekdays[i])
		}
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   start,
		Until:     end,
		Byweekday: byDay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build recurrence rule: %w", err)
	}

	dates := rule.All()
	for i, d := range dates {
		dates[i] = models.DateOf(d)
	}
	return dates, nil
}
