package models

import (
	"fmt"
	"strings"
	"time"
)

// EventType classifies a calendar event
type EventType string

const (
	EventTypeMeeting  EventType = "MEETING"
	EventTypeExam     EventType = "EXAM"
	EventTypeHoliday  EventType = "HOLIDAY"
	EventTypeEvent    EventType = "EVENT"
	EventTypeReminder EventType = "REMINDER"
	EventTypeOther    EventType = "OTHER"
)

// DefaultColor is used when neither the event nor its type supply a colour
const DefaultColor = "#6C5CE7"

var typeColors = map[EventType]string{
	EventTypeMeeting:  "#6C5CE7",
	EventTypeExam:     "#5A189A",
	EventTypeHoliday:  "#10B981",
	EventTypeEvent:    "#2563EB",
	EventTypeReminder: "#EF4444",
	EventTypeOther:    "#F59E0B",
}

// EventTypes lists every known event type in display order
func EventTypes() []EventType {
	return []EventType{
		EventTypeMeeting,
		EventTypeExam,
		EventTypeHoliday,
		EventTypeEvent,
		EventTypeReminder,
		EventTypeOther,
	}
}

// ParseEventType parses an event type case-insensitively
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known event types
func (t EventType) Valid() bool {
	_, ok := typeColors[t]
	return ok
}

// Color returns the display colour mapped to the event type
func (t EventType) Color() string {
	if c, ok := typeColors[t]; ok {
		return c
	}
	return DefaultColor
}

// RecurrenceMode controls how a single form submission expands into dates
type RecurrenceMode string

const (
	RecurrenceNone  RecurrenceMode = "NONE"
	RecurrenceWeek  RecurrenceMode = "WEEK"
	RecurrenceMonth RecurrenceMode = "MONTH"
)

// ParseRecurrenceMode parses a recurrence mode; the empty string means NONE
func ParseRecurrenceMode(s string) (RecurrenceMode, error) {
	switch m := RecurrenceMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return RecurrenceNone, nil
	case RecurrenceNone, RecurrenceWeek, RecurrenceMonth:
		return m, nil
	default:
		return "", fmt.Errorf("unknown recurrence mode %q", s)
	}
}

// WeekdayMask selects weekdays, Monday first
type WeekdayMask [7]bool

var weekdayNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// AllWeekdays returns a mask with every day selected
func AllWeekdays() WeekdayMask {
	return WeekdayMask{true, true, true, true, true, true, true}
}

// ParseWeekdays parses a comma separated list such as "mon,wed,fri".
// An empty string yields an empty mask.
func ParseWeekdays(s string) (WeekdayMask, error) {
	var mask WeekdayMask
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for i, name := range weekdayNames {
			if strings.HasPrefix(part, name) {
				mask[i] = true
				found = true
				break
			}
		}
		if !found {
			return WeekdayMask{}, fmt.Errorf("unknown weekday %q", part)
		}
	}
	return mask, nil
}

// Empty reports whether no weekday is selected
func (m WeekdayMask) Empty() bool {
	for _, v := range m {
		if v {
			return false
		}
	}
	return true
}

// Resolve applies the default-all policy: an empty mask selects every day
func (m WeekdayMask) Resolve() WeekdayMask {
	if m.Empty() {
		return AllWeekdays()
	}
	return m
}

// Selects reports whether the weekday of date is selected
func (m WeekdayMask) Selects(date time.Time) bool {
	return m[WeekdayIndex(date)]
}

// String renders the mask as a comma separated list of day names
func (m WeekdayMask) String() string {
	var days []string
	for i, v := range m {
		if v {
			days = append(days, weekdayNames[i])
		}
	}
	return strings.Join(days, ",")
}
