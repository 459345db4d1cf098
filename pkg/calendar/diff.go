package calendar

import (
	"sort"
	"time"

	"github.com/venkytv/tuition-calendar/internal/models"
)

// Diff compares two store snapshots and returns one notification per
// occurrence that appeared, disappeared or changed. Occurrences are matched
// by server identifier; those without one are ignored. Deletions come first,
// then updates, then creations, each ordered by date and start time.
func Diff(before, after map[string][]*models.Occurrence, at time.Time) []*models.ChangeNotification {
	prev := indexByID(before)
	next := indexByID(after)

	var deleted, updated, created []*models.Occurrence
	for id, occ := range prev {
		if _, ok := next[id]; !ok {
			deleted = append(deleted, occ)
		}
	}
	for id, occ := range next {
		old, ok := prev[id]
		switch {
		case !ok:
			created = append(created, occ)
		case !old.SameContent(occ):
			updated = append(updated, occ)
		}
	}

	var changes []*models.ChangeNotification
	for _, group := range []struct {
		action models.ChangeAction
		occs   []*models.Occurrence
	}{
		{models.ChangeDeleted, deleted},
		{models.ChangeUpdated, updated},
		{models.ChangeCreated, created},
	} {
		sortOccurrences(group.occs)
		for _, occ := range group.occs {
			changes = append(changes, models.NewChangeNotification(group.action, occ, at))
		}
	}
	return changes
}

func indexByID(days map[string][]*models.Occurrence) map[int64]*models.Occurrence {
	index := make(map[int64]*models.Occurrence)
	for _, occs := range days {
		for _, occ := range occs {
			if occ.ServerID != nil {
				index[*occ.ServerID] = occ
			}
		}
	}
	return index
}

func sortOccurrences(occs []*models.Occurrence) {
	sort.Slice(occs, func(i, j int) bool {
		a, b := occs[i], occs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return *a.ServerID < *b.ServerID
	})
}
