package calendar

import (
	"testing"
	"time"

	"github.com/venkytv/tuition-calendar/internal/models"
)

func seriesOccurrence(id int64, day int, recurrenceID string) *models.Occurrence {
	return &models.Occurrence{
		ServerID:     models.Int64Ptr(id),
		Date:         models.NewDate(2026, time.October, day),
		Title:        "Tutorial",
		Start:        models.NewTimeOfDay(16, 0),
		End:          models.NewTimeOfDay(17, 0),
		RecurrenceID: recurrenceID,
		Recurrence:   models.RecurrenceWeek,
	}
}

func TestStoreReplaceDropsEmptyDays(t *testing.T) {
	store := NewStore()
	store.Replace(map[string][]*models.Occurrence{
		"2026-10-19": {seriesOccurrence(1, 19, "r-1")},
		"2026-10-20": {},
	})

	keys := store.Keys()
	if len(keys) != 1 || keys[0] != "2026-10-19" {
		t.Errorf("Expected only 2026-10-19, got %v", keys)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore()
	store.Replace(map[string][]*models.Occurrence{
		"2026-10-19": {seriesOccurrence(1, 19, "r-1")},
	})

	day := store.Day("2026-10-19")
	day[0].Title = "Changed"
	*day[0].ServerID = 99

	again := store.Day("2026-10-19")
	if again[0].Title != "Tutorial" || *again[0].ServerID != 1 {
		t.Error("Expected store contents to be unaffected by caller mutation")
	}
}

func TestStoreApplySingle(t *testing.T) {
	store := NewStore()
	store.Replace(map[string][]*models.Occurrence{
		"2026-10-19": {seriesOccurrence(1, 19, "r-1"), seriesOccurrence(2, 19, "")},
		"2026-10-20": {seriesOccurrence(3, 20, "r-1")},
	})

	// In place replacement keeps position
	edited := seriesOccurrence(1, 19, "r-1")
	edited.Title = "Edited"
	store.ApplySingle("2026-10-19", edited)

	day := store.Day("2026-10-19")
	if len(day) != 2 || day[0].Title != "Edited" || *day[1].ServerID != 2 {
		t.Fatalf("Expected in-place replacement, got %+v", day)
	}

	// Moving the only occurrence of a day removes the key
	moved := seriesOccurrence(3, 22, "r-1")
	store.ApplySingle("2026-10-20", moved)

	if store.Day("2026-10-20") != nil {
		t.Error("Expected empty date-key to be removed")
	}
	if day := store.Day("2026-10-22"); len(day) != 1 || *day[0].ServerID != 3 {
		t.Errorf("Expected occurrence at new date-key, got %+v", day)
	}

	// New occurrences are appended
	store.ApplySingle("", seriesOccurrence(4, 19, ""))
	if day := store.Day("2026-10-19"); len(day) != 3 || *day[2].ServerID != 4 {
		t.Errorf("Expected appended occurrence, got %+v", day)
	}

	if store.Len() != 4 {
		t.Errorf("Expected 4 occurrences, got %d", store.Len())
	}
}

func TestStoreApplySeries(t *testing.T) {
	store := NewStore()
	other := seriesOccurrence(10, 21, "r-other")
	store.Replace(map[string][]*models.Occurrence{
		"2026-10-19": {seriesOccurrence(1, 19, "r-1")},
		"2026-10-21": {seriesOccurrence(2, 21, "r-1"), other},
		"2026-10-23": {seriesOccurrence(3, 23, "r-1")},
		"2026-10-24": {seriesOccurrence(4, 24, "r-1")},
	})

	store.ApplySeries(SeriesChange{
		RecurrenceID: "r-1",
		Patch: func(occ *models.Occurrence) {
			occ.Title = "Patched"
		},
		Held:    map[string]bool{"id:4": true},
		Deleted: map[string]bool{"id:3": true},
		Created: []*models.Occurrence{seriesOccurrence(5, 25, "r-1")},
	})

	if store.Day("2026-10-23") != nil {
		t.Error("Expected deleted occurrence's date-key to be removed")
	}
	if got := store.Day("2026-10-19")[0].Title; got != "Patched" {
		t.Errorf("Expected patched title, got %q", got)
	}
	if got := store.Day("2026-10-24")[0].Title; got != "Tutorial" {
		t.Errorf("Expected held occurrence untouched, got %q", got)
	}

	day := store.Day("2026-10-21")
	if len(day) != 2 || day[0].Title != "Patched" || day[1].Title != "Tutorial" {
		t.Errorf("Expected other series untouched, got %+v", day)
	}
	if day := store.Day("2026-10-25"); len(day) != 1 || *day[0].ServerID != 5 {
		t.Errorf("Expected created occurrence spliced in, got %+v", day)
	}

	series := store.Series("r-1")
	if len(series) != 4 {
		t.Fatalf("Expected 4 series members, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].Date.Before(series[i-1].Date) {
			t.Error("Expected series ordered by date")
		}
	}
}

func TestStoreFind(t *testing.T) {
	store := NewStore()
	store.Replace(map[string][]*models.Occurrence{
		"2026-10-19": {seriesOccurrence(1, 19, "r-1")},
	})

	if occ, ok := store.Find(1); !ok || occ.Key() != "2026-10-19" {
		t.Errorf("Expected to find id 1, got %v %v", occ, ok)
	}
	if _, ok := store.Find(2); ok {
		t.Error("Expected id 2 to be missing")
	}
	if store.Series("") != nil {
		t.Error("Expected no series for an empty recurrence id")
	}
}
