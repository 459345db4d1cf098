package models

import (
	"fmt"
	"time"
)

// Occurrence is the view record for one concrete calendar-date
// materialization of an event
type Occurrence struct {
	// ServerID is nil until the create call has returned an identifier
	ServerID *int64 `json:"server_id,omitempty"`

	Date        time.Time `json:"date"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       TimeOfDay `json:"start"`
	End         TimeOfDay `json:"end"`
	Color       string    `json:"color"`
	EventType   EventType `json:"event_type,omitempty"`

	RecurrenceID     string         `json:"recurrence_id,omitempty"`
	Recurrence       RecurrenceMode `json:"recurrence,omitempty"`
	SelectedWeekdays WeekdayMask    `json:"selected_weekdays"`
}

// Key returns the date-key of the occurrence
func (o *Occurrence) Key() string {
	return DateKey(o.Date)
}

// TimeLabel renders the time range as e.g. "9:00 AM - 10:00 AM"
func (o *Occurrence) TimeLabel() string {
	return fmt.Sprintf("%s - %s", o.Start.SlotLabel(), o.End.SlotLabel())
}

// HasID reports whether the occurrence carries a server identifier
func (o *Occurrence) HasID() bool {
	return o.ServerID != nil
}

// SameID reports whether both occurrences carry the same server identifier
func (o *Occurrence) SameID(other *Occurrence) bool {
	return o.ServerID != nil && other.ServerID != nil && *o.ServerID == *other.ServerID
}

// SameContent reports whether both occurrences carry identical user-visible
// fields. Server identifiers are ignored.
func (o *Occurrence) SameContent(other *Occurrence) bool {
	return o.Date.Equal(other.Date) &&
		o.Title == other.Title &&
		o.Description == other.Description &&
		o.Start == other.Start &&
		o.End == other.End &&
		o.Color == other.Color &&
		o.EventType == other.EventType &&
		o.RecurrenceID == other.RecurrenceID &&
		o.Recurrence == other.Recurrence &&
		o.SelectedWeekdays == other.SelectedWeekdays
}

// Clone returns a deep copy of the occurrence
func (o *Occurrence) Clone() *Occurrence {
	c := *o
	if o.ServerID != nil {
		id := *o.ServerID
		c.ServerID = &id
	}
	return &c
}

// Payload builds the wire payload for this occurrence
func (o *Occurrence) Payload() *EventPayload {
	var id int64
	if o.ServerID != nil {
		id = *o.ServerID
	}
	weekdays := o.SelectedWeekdays
	endDate, end := o.Date, o.End
	if end >= EndOfDay {
		endDate, end = o.Date.AddDate(0, 0, 1), 0
	}
	return &EventPayload{
		ID:               id,
		Title:            o.Title,
		Description:      o.Description,
		StartDateTime:    FormatLocalDateTime(o.Date, o.Start),
		EndDateTime:      FormatLocalDateTime(endDate, end),
		EventType:        o.EventType,
		ColorCode:        o.Color,
		RecurrenceID:     o.RecurrenceID,
		Recurrence:       o.Recurrence,
		SelectedWeekdays: &weekdays,
	}
}

// Int64Ptr is a small helper for building optional identifiers
func Int64Ptr(v int64) *int64 {
	return &v
}
