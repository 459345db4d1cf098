package calendar

import (
	"log/slog"
	"sort"

	"github.com/venkytv/tuition-calendar/internal/models"
)

// GroupByDate converts a month fetch into store contents. Records that cannot
// be parsed are skipped with a warning, a server id seen twice is kept once,
// and each day is ordered by start time.
func GroupByDate(records []*models.EventRecord, logger *slog.Logger) map[string][]*models.Occurrence {
	if logger == nil {
		logger = slog.Default()
	}

	days := make(map[string][]*models.Occurrence)
	seen := make(map[int64]bool, len(records))
	skipped := 0

	for _, record := range records {
		if record == nil {
			continue
		}
		if record.ID != 0 {
			if seen[record.ID] {
				logger.Debug("Skipping duplicate event", "id", record.ID)
				skipped++
				continue
			}
			seen[record.ID] = true
		}

		occ, err := record.Occurrence()
		if err != nil {
			logger.Warn("Skipping malformed event", "id", record.ID, "error", err)
			skipped++
			continue
		}

		key := occ.Key()
		days[key] = append(days[key], occ)
	}

	for _, occs := range days {
		sort.SliceStable(occs, func(i, j int) bool {
			return occs[i].Start < occs[j].Start
		})
	}

	if skipped > 0 {
		logger.Info("Grouped month events",
			"records", len(records),
			"skipped", skipped,
			"days", len(days))
	}
	return days
}
