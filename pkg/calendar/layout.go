package calendar

import (
	"math"
	"time"

	"github.com/venkytv/tuition-calendar/internal/models"
)

// LayoutConfig describes the fixed-height hour grid of the day view
type LayoutConfig struct {
	PixelsPerHour  int `yaml:"pixels_per_hour"`
	MinEventHeight int `yaml:"min_event_height"`
	DayStartHour   int `yaml:"day_start_hour"`
	DayEndHour     int `yaml:"day_end_hour"`
}

// DefaultLayoutConfig returns a 24 row grid of 60px rows
func DefaultLayoutConfig() *LayoutConfig {
	return &LayoutConfig{
		PixelsPerHour:  60,
		MinEventHeight: 8,
		DayStartHour:   0,
		DayEndHour:     24,
	}
}

// Box is the absolute position of one occurrence on the day grid
type Box struct {
	Occurrence *models.Occurrence
	Top        int
	Height     int
}

// Rows returns the number of hour rows in the grid
func (c *LayoutConfig) Rows() int {
	return c.DayEndHour - c.DayStartHour
}

// GridHeight returns the total pixel height of the grid
func (c *LayoutConfig) GridHeight() int {
	return c.Rows() * c.PixelsPerHour
}

// Place computes the vertical offset and height of a time range. The range
// is clamped into the day window; overlapping events are not packed into
// columns and simply stack.
func (c *LayoutConfig) Place(start, end models.TimeOfDay) (top, height int) {
	dayStart := c.DayStartHour * 60
	dayEnd := c.DayEndHour * 60
	pxPerMinute := float64(c.PixelsPerHour) / 60

	clampedStart := max(int(start), dayStart)
	clampedEnd := min(int(end), dayEnd)
	duration := max(0, clampedEnd-clampedStart)

	top = int(math.Round(float64(clampedStart-dayStart) * pxPerMinute))
	height = max(c.MinEventHeight, int(math.Round(float64(duration)*pxPerMinute)))
	return top, height
}

// LayoutDay positions every occurrence of one day, preserving input order
func LayoutDay(occurrences []*models.Occurrence, config *LayoutConfig) []Box {
	if config == nil {
		config = DefaultLayoutConfig()
	}

	boxes := make([]Box, 0, len(occurrences))
	for _, occ := range occurrences {
		top, height := config.Place(occ.Start, occ.End)
		boxes = append(boxes, Box{
			Occurrence: occ,
			Top:        top,
			Height:     height,
		})
	}
	return boxes
}

// WeekDates returns the seven dates, Monday first, of the week containing date
func WeekDates(date time.Time) []time.Time {
	monday, _ := WeekSpan(date)
	dates := make([]time.Time, 7)
	for i := range dates {
		dates[i] = monday.AddDate(0, 0, i)
	}
	return dates
}

// MonthGridCells is the number of cells in the six-row month view
const MonthGridCells = 42

// MonthCell is one cell of the month view
type MonthCell struct {
	Date    time.Time
	InMonth bool
}

// Key returns the date-key of the cell
func (c MonthCell) Key() string {
	return models.DateKey(c.Date)
}

// MonthGrid lays out a month as six Monday-first weeks. Cells before the
// first and after the last day belong to the neighbouring months.
func MonthGrid(year int, month time.Month) []MonthCell {
	first := models.NewDate(year, month, 1)
	gridStart := first.AddDate(0, 0, -models.WeekdayIndex(first))

	cells := make([]MonthCell, MonthGridCells)
	for i := range cells {
		date := gridStart.AddDate(0, 0, i)
		cells[i] = MonthCell{
			Date:    date,
			InMonth: date.Month() == month,
		}
	}
	return cells
}
