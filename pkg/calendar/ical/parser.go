package ical

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/venkytv/tuition-calendar/internal/models"
)

const (
	floatingLayout = "20060102T150405"
	utcLayout      = "20060102T150405Z"
	dateLayout     = "20060102"
)

// Parse reads occurrences from an iCalendar stream. Events that cannot be
// converted are skipped with a warning.
func Parse(r io.Reader, logger *slog.Logger) ([]*models.Occurrence, error) {
	if logger == nil {
		logger = slog.Default()
	}

	calendar, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse iCal data: %w", err)
	}

	var occurrences []*models.Occurrence
	for _, event := range calendar.Events() {
		occ, err := ConvertEvent(event)
		if err != nil {
			logger.Warn("Failed to convert iCal event", "uid", event.Id(), "error", err)
			continue
		}
		occurrences = append(occurrences, occ)
	}
	return occurrences, nil
}

// ConvertEvent converts a VEVENT into an occurrence. Times are read as naive
// local times whatever their zone suffix.
func ConvertEvent(event *ics.VEvent) (*models.Occurrence, error) {
	start := event.GetProperty(ics.ComponentPropertyDtStart)
	if start == nil {
		return nil, fmt.Errorf("event missing start time")
	}
	date, startTime, err := parseLocal(start.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start time: %w", err)
	}

	endTime := startTime + 60
	if end := event.GetProperty(ics.ComponentPropertyDtEnd); end != nil {
		endDate, t, err := parseLocal(end.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end time: %w", err)
		}
		endTime = t
		// An all-day or overnight event ends on a later date
		if endDate.After(date) {
			endTime = models.EndOfDay
		}
	}

	occ := &models.Occurrence{
		Date:      date,
		Start:     startTime,
		End:       min(endTime, models.EndOfDay),
		EventType: models.EventTypeOther,
	}

	if summary := event.GetProperty(ics.ComponentPropertySummary); summary != nil {
		occ.Title = summary.Value
	}
	if description := event.GetProperty(ics.ComponentPropertyDescription); description != nil {
		occ.Description = description.Value
	}
	if categories := event.GetProperty(ics.ComponentPropertyCategories); categories != nil {
		first, _, _ := strings.Cut(categories.Value, ",")
		if t, err := models.ParseEventType(first); err == nil {
			occ.EventType = t
		}
	}
	if color := event.GetProperty(propertyColor); color != nil {
		occ.Color = color.Value
	}
	if occ.Color == "" {
		occ.Color = occ.EventType.Color()
	}
	if series := event.GetProperty(propertySeries); series != nil {
		occ.RecurrenceID = series.Value
	}
	if id, ok := serverID(event.Id()); ok {
		occ.ServerID = models.Int64Ptr(id)
	}

	return occ, nil
}

// parseLocal accepts floating, UTC and date-only values
func parseLocal(value string) (time.Time, models.TimeOfDay, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{floatingLayout, utcLayout, dateLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return models.DateOf(t), models.NewTimeOfDay(t.Hour(), t.Minute()), nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("unsupported date-time %q", value)
}

func serverID(uid string) (int64, bool) {
	rest, ok := strings.CutPrefix(uid, uidPrefix)
	if !ok {
		return 0, false
	}
	rest, _, _ = strings.Cut(rest, "@")
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
