package calendar

import (
	"sort"
	"strconv"
	"sync"

	"github.com/venkytv/tuition-calendar/internal/models"
)

// Store is the date-keyed view model of calendar occurrences. It is never the
// source of truth: a month fetch replaces it wholesale, and saves reconcile it
// through ApplySingle and ApplySeries only. A date-key never maps to an empty
// list.
type Store struct {
	mu   sync.RWMutex
	days map[string][]*models.Occurrence
}

// SeriesChange describes the outcome of a series-wide save
type SeriesChange struct {
	RecurrenceID string

	// Patch is applied to every remaining member of the series
	Patch func(*models.Occurrence)

	// Held lists members, by MemberKey, that must be left untouched because
	// their remote update or delete failed
	Held map[string]bool

	// Deleted lists members, by MemberKey, that were removed
	Deleted map[string]bool

	// Created occurrences are spliced in at their own date-keys
	Created []*models.Occurrence
}

// MemberKey identifies a series member within a SeriesChange. Two members
// of one series may share a date, so saved members are keyed by server
// identifier; unsaved ones fall back to their date-key.
func MemberKey(occ *models.Occurrence) string {
	if occ.ServerID != nil {
		return "id:" + strconv.FormatInt(*occ.ServerID, 10)
	}
	return "date:" + occ.Key()
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		days: make(map[string][]*models.Occurrence),
	}
}

// Replace overwrites the store contents
func (s *Store) Replace(days map[string][]*models.Occurrence) {
	next := make(map[string][]*models.Occurrence, len(days))
	for key, occs := range days {
		if len(occs) == 0 {
			continue
		}
		next[key] = cloneAll(occs)
	}

	s.mu.Lock()
	s.days = next
	s.mu.Unlock()
}

// Day returns a copy of the occurrences stored under key
func (s *Store) Day(key string) []*models.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.days[key])
}

// Keys returns every date-key in ascending order
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.days))
	for key := range s.days {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the total number of occurrences
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, occs := range s.days {
		n += len(occs)
	}
	return n
}

// Snapshot returns a deep copy of the store contents
func (s *Store) Snapshot() map[string][]*models.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string][]*models.Occurrence, len(s.days))
	for key, occs := range s.days {
		snap[key] = cloneAll(occs)
	}
	return snap
}

// Find looks up an occurrence by server identifier
func (s *Store) Find(id int64) (*models.Occurrence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, occs := range s.days {
		for _, occ := range occs {
			if occ.ServerID != nil && *occ.ServerID == id {
				return occ.Clone(), true
			}
		}
	}
	return nil, false
}

// Series returns copies of every occurrence sharing recurrenceID, ordered by
// date
func (s *Store) Series(recurrenceID string) []*models.Occurrence {
	if recurrenceID == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var members []*models.Occurrence
	for _, occs := range s.days {
		for _, occ := range occs {
			if occ.RecurrenceID == recurrenceID {
				members = append(members, occ.Clone())
			}
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Date.Before(members[j].Date)
	})
	return members
}

// ApplySingle reconciles a single saved occurrence. When priorKey is set the
// occurrence is first removed from it; it is then replaced in place at its
// own date-key (matched by server identifier) or appended.
func (s *Store) ApplySingle(priorKey string, occ *models.Occurrence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	occ = occ.Clone()
	key := occ.Key()

	if priorKey != "" && priorKey != key {
		s.setDay(priorKey, removeMatching(s.days[priorKey], occ))
	}

	day := s.days[key]
	for i, existing := range day {
		if existing.SameID(occ) {
			updated := append([]*models.Occurrence(nil), day...)
			updated[i] = occ
			s.days[key] = updated
			return
		}
	}
	s.setDay(key, append(append([]*models.Occurrence(nil), day...), occ))
}

// ApplySeries reconciles a series-wide save
func (s *Store) ApplySeries(change SeriesChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, occs := range s.days {
		next := make([]*models.Occurrence, 0, len(occs))
		for _, occ := range occs {
			if occ.RecurrenceID != change.RecurrenceID {
				next = append(next, occ)
				continue
			}
			member := MemberKey(occ)
			if change.Deleted[member] {
				continue
			}
			if change.Patch != nil && !change.Held[member] {
				occ = occ.Clone()
				change.Patch(occ)
			}
			next = append(next, occ)
		}
		s.setDay(key, next)
	}

	for _, occ := range change.Created {
		key := occ.Key()
		s.days[key] = append(s.days[key], occ.Clone())
	}
}

// setDay stores occs under key, dropping the key when occs is empty.
// Callers must hold the write lock.
func (s *Store) setDay(key string, occs []*models.Occurrence) {
	if len(occs) == 0 {
		delete(s.days, key)
		return
	}
	s.days[key] = occs
}

func removeMatching(occs []*models.Occurrence, target *models.Occurrence) []*models.Occurrence {
	out := make([]*models.Occurrence, 0, len(occs))
	for _, occ := range occs {
		if occ.SameID(target) {
			continue
		}
		out = append(out, occ)
	}
	return out
}

func cloneAll(occs []*models.Occurrence) []*models.Occurrence {
	if occs == nil {
		return nil
	}
	out := make([]*models.Occurrence, len(occs))
	for i, occ := range occs {
		out[i] = occ.Clone()
	}
	return out
}
