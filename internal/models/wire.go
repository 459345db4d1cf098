package models

import (
	"fmt"
	"strings"
	"time"
)

// EventPayload is the request body for creating or updating one occurrence
type EventPayload struct {
	ID               int64          `json:"id"` // 0 on create
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	StartDateTime    string         `json:"startDateTime"`
	EndDateTime      string         `json:"endDateTime"`
	EventType        EventType      `json:"eventType"`
	ColorCode        string         `json:"colorCode"`
	RecurrenceID     string         `json:"recurrenceId,omitempty"`
	Recurrence       RecurrenceMode `json:"recurrence,omitempty"`
	SelectedWeekdays *WeekdayMask   `json:"selectedWeekdays,omitempty"`
}

// EventRecord is one occurrence as returned by the calendar API
type EventRecord struct {
	ID               int64        `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	StartDateTime    string       `json:"startDateTime"`
	EndDateTime      string       `json:"endDateTime"`
	EventType        string       `json:"eventType"`
	ColorCode        string       `json:"colorCode"`
	RecurrenceID     string       `json:"recurrenceId"`
	Recurrence       string       `json:"recurrence"`
	SelectedWeekdays *WeekdayMask `json:"selectedWeekdays"`
}

// Occurrence converts the API record into a view record
func (r *EventRecord) Occurrence() (*Occurrence, error) {
	date, start, err := ParseLocalDateTime(r.StartDateTime)
	if err != nil {
		return nil, fmt.Errorf("event %d: start: %w", r.ID, err)
	}
	endDate, end, err := ParseLocalDateTime(r.EndDateTime)
	if err != nil {
		return nil, fmt.Errorf("event %d: end: %w", r.ID, err)
	}
	if endDate.After(date) {
		end = EndOfDay
	}

	eventType := EventType(strings.ToUpper(strings.TrimSpace(r.EventType)))
	color := r.ColorCode
	if color == "" {
		color = eventType.Color()
	}

	recurrence, err := ParseRecurrenceMode(r.Recurrence)
	if err != nil {
		recurrence = RecurrenceNone
	}

	occ := &Occurrence{
		Date:         date,
		Title:        r.Title,
		Description:  r.Description,
		Start:        start,
		End:          end,
		Color:        color,
		EventType:    eventType,
		RecurrenceID: r.RecurrenceID,
		Recurrence:   recurrence,
	}
	if r.ID != 0 {
		occ.ServerID = Int64Ptr(r.ID)
	}
	if r.SelectedWeekdays != nil {
		occ.SelectedWeekdays = *r.SelectedWeekdays
	}
	return occ, nil
}

// UpcomingItem is an entry in the upcoming events or exams widget
type UpcomingItem struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	StartDateTime string `json:"startDateTime,omitempty"`
	EndDateTime   string `json:"endDateTime,omitempty"`
	EventType     string `json:"eventType,omitempty"`
	ColorCode     string `json:"colorCode,omitempty"`
}

// Upcoming is the response of the upcoming endpoint
type Upcoming struct {
	Events []UpcomingItem `json:"events"`
	Exams  []UpcomingItem `json:"exams"`
}

// ChangeAction describes what happened to an occurrence
type ChangeAction string

const (
	ChangeCreated ChangeAction = "created"
	ChangeUpdated ChangeAction = "updated"
	ChangeDeleted ChangeAction = "deleted"
)

// ChangeNotification is the message published whenever the event store
// gains, loses or modifies an occurrence
type ChangeNotification struct {
	Action       ChangeAction `json:"action"`
	ID           *int64       `json:"id,omitempty"`
	DateKey      string       `json:"date_key"`
	RecurrenceID string       `json:"recurrence_id,omitempty"`
	Title        string       `json:"title"`
	Start        string       `json:"start"`
	End          string       `json:"end"`
	At           time.Time    `json:"at"`
}

// NewChangeNotification creates a ChangeNotification for an occurrence
func NewChangeNotification(action ChangeAction, occ *Occurrence, at time.Time) *ChangeNotification {
	n := &ChangeNotification{
		Action:       action,
		DateKey:      occ.Key(),
		RecurrenceID: occ.RecurrenceID,
		Title:        occ.Title,
		Start:        FormatLocalDateTime(occ.Date, occ.Start),
		End:          FormatLocalDateTime(occ.Date, occ.End),
		At:           at,
	}
	if occ.ServerID != nil {
		n.ID = Int64Ptr(*occ.ServerID)
	}
	return n
}
