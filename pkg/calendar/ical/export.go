package ical

import (
	"fmt"
	"io"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/venkytv/tuition-calendar/internal/models"
)

const uidPrefix = "occ-"

var (
	propertyColor  = ics.ComponentProperty("COLOR")
	propertySeries = ics.ComponentProperty("X-RECURRENCE-SERIES")
)

// ExportOptions controls calendar-level properties of an export
type ExportOptions struct {
	Name      string
	ProductID string
	Domain    string

	// Stamp is written as DTSTAMP on every event; zero means now
	Stamp time.Time
}

// Export serializes occurrences as an iCalendar document. Times are written
// as floating local times, matching the API's zone-less timestamps.
func Export(occurrences []*models.Occurrence, opts ExportOptions) string {
	if opts.ProductID == "" {
		opts.ProductID = "-//tuition-calendar//EN"
	}
	if opts.Domain == "" {
		opts.Domain = "tuition-calendar"
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(opts.ProductID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	sorted := append([]*models.Occurrence(nil), occurrences...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Start < sorted[j].Start
	})

	for _, occ := range sorted {
		event := cal.AddEvent(uid(occ, opts.Domain))
		event.SetDtStampTime(opts.Stamp)
		event.SetProperty(ics.ComponentPropertyDtStart, floating(occ.Date, occ.Start))
		event.SetProperty(ics.ComponentPropertyDtEnd, floating(occ.Date, occ.End))
		event.SetSummary(occ.Title)
		if occ.Description != "" {
			event.SetDescription(occ.Description)
		}
		if occ.EventType != "" {
			event.SetProperty(ics.ComponentPropertyCategories, string(occ.EventType))
		}
		if occ.Color != "" {
			event.SetProperty(propertyColor, occ.Color)
		}
		if occ.RecurrenceID != "" {
			event.SetProperty(propertySeries, occ.RecurrenceID)
		}
	}

	return cal.Serialize()
}

// Write exports occurrences to w
func Write(w io.Writer, occurrences []*models.Occurrence, opts ExportOptions) error {
	if _, err := io.WriteString(w, Export(occurrences, opts)); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	return nil
}

func floating(date time.Time, tod models.TimeOfDay) string {
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour(), tod.Minute(), 0, 0, time.UTC).Format(floatingLayout)
}

func uid(occ *models.Occurrence, domain string) string {
	switch {
	case occ.ServerID != nil:
		return fmt.Sprintf("%s%d@%s", uidPrefix, *occ.ServerID, domain)
	case occ.RecurrenceID != "":
		return fmt.Sprintf("%s-%s@%s", occ.RecurrenceID, occ.Key(), domain)
	default:
		return fmt.Sprintf("new-%s-%04d@%s", occ.Key(), int(occ.Start), domain)
	}
}
