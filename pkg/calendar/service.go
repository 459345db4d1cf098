package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/venkytv/tuition-calendar/internal/models"
)

// Scope selects how a save request is reconciled
type Scope int

const (
	// ScopeCreate materializes a new event on every candidate date
	ScopeCreate Scope = iota
	// ScopeSingle edits only the occurrence being edited
	ScopeSingle
	// ScopeAllInSeries edits every occurrence sharing the recurrence id
	ScopeAllInSeries
)

func (s Scope) String() string {
	switch s {
	case ScopeCreate:
		return "create"
	case ScopeSingle:
		return "single"
	case ScopeAllInSeries:
		return "all"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope parses a scope name as used on the command line
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "create", "new":
		return ScopeCreate, nil
	case "single", "this", "one":
		return ScopeSingle, nil
	case "all", "series":
		return ScopeAllInSeries, nil
	default:
		return 0, fmt.Errorf("unknown scope %q", s)
	}
}

// EventForm is what the user submits from the event dialog
type EventForm struct {
	Title       string                `json:"title" validate:"notblank"`
	Description string                `json:"description"`
	Date        time.Time             `json:"date"`
	Start       models.TimeOfDay      `json:"startTime"`
	End         models.TimeOfDay      `json:"endTime" validate:"gtfield=Start"`
	EventType   models.EventType      `json:"eventType" validate:"required,eventtype"`
	ColorCode   string                `json:"colorCode" validate:"omitempty,hexcolor"`
	Recurrence  models.RecurrenceMode `json:"recurrence" validate:"omitempty,oneof=NONE WEEK MONTH"`
	Weekdays    models.WeekdayMask    `json:"selectedWeekdays"`
}

func (f *EventForm) color() string {
	if f.ColorCode != "" {
		return f.ColorCode
	}
	return f.EventType.Color()
}

func (f *EventForm) recurrence() models.RecurrenceMode {
	if f.Recurrence == "" {
		return models.RecurrenceNone
	}
	return f.Recurrence
}

// occurrence builds a new, unsaved occurrence on date
func (f *EventForm) occurrence(date time.Time, recurrenceID string) *models.Occurrence {
	occ := &models.Occurrence{
		Date:         models.DateOf(date),
		RecurrenceID: recurrenceID,
	}
	f.patch(occ)
	return occ
}

// patch copies the editable fields of the form onto occ, leaving its date,
// identifier and series untouched
func (f *EventForm) patch(occ *models.Occurrence) {
	occ.Title = strings.TrimSpace(f.Title)
	occ.Description = f.Description
	occ.Start = f.Start
	occ.End = f.End
	occ.Color = f.color()
	occ.EventType = f.EventType
	occ.Recurrence = f.recurrence()
	occ.SelectedWeekdays = f.Weekdays.Resolve()
}

// SaveRequest is one submission of the event dialog
type SaveRequest struct {
	Scope Scope
	Form  EventForm

	// Editing is the occurrence the dialog was opened on; required for
	// ScopeSingle and ScopeAllInSeries
	Editing *models.Occurrence
}

// Op names the remote call that failed for a date
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// DateFailure is a non-fatal failure for one date of a multi-date save
type DateFailure struct {
	Date time.Time
	Op   Op
	Err  error
}

func (f *DateFailure) Error() string {
	return fmt.Sprintf("failed to %s event on %s: %v", f.Op, models.DateKey(f.Date), f.Err)
}

func (f *DateFailure) Unwrap() error {
	return f.Err
}

// SaveResult reports what a save did. Some dates may have succeeded while
// others failed.
type SaveResult struct {
	Scope        Scope
	RecurrenceID string

	Created []*models.Occurrence
	Updated []*models.Occurrence
	Deleted []*models.Occurrence

	Failures []*DateFailure
}

// Err joins every per-date failure, or returns nil when all dates succeeded
func (r *SaveResult) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Summary renders a one-line description of the result
func (r *SaveResult) Summary() string {
	return fmt.Sprintf("%d created, %d updated, %d deleted, %d failed",
		len(r.Created), len(r.Updated), len(r.Deleted), len(r.Failures))
}

func (r *SaveResult) fail(date time.Time, op Op, err error) {
	r.Failures = append(r.Failures, &DateFailure{Date: date, Op: op, Err: err})
}

// Service is the single writer of the local event store. Every save and
// month fetch goes through it.
type Service struct {
	api      API
	store    *Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	upcoming *models.Upcoming
}

// NewService creates a calendar service. notifier may be nil.
func NewService(api API, store *Store, notifier Notifier, logger *slog.Logger) *Service {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		api:      api,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Store returns the local event store
func (s *Service) Store() *Store {
	return s.store
}

// LoadMonth replaces the store with the occurrences of one month. On failure
// the store is left as it was.
func (s *Service) LoadMonth(ctx context.Context, year int, month time.Month) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMonth(ctx, year, month)
}

// ReloadMonth loads a month like LoadMonth and returns the store contents
// before and after. No save can land between the two snapshots.
func (s *Service) ReloadMonth(ctx context.Context, year int, month time.Month) (before, after map[string][]*models.Occurrence, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before = s.store.Snapshot()
	if err := s.loadMonth(ctx, year, month); err != nil {
		return nil, nil, err
	}
	return before, s.store.Snapshot(), nil
}

// loadMonth fetches and replaces the store. Callers must hold s.mu.
func (s *Service) loadMonth(ctx context.Context, year int, month time.Month) error {
	records, err := s.api.MonthEvents(ctx, year, month)
	if err != nil {
		s.logger.Error("Failed to fetch month events",
			"year", year,
			"month", month,
			"error", err)
		return fmt.Errorf("failed to load %s %d: %w", month, year, err)
	}

	days := GroupByDate(records, s.logger)
	s.store.Replace(days)

	s.logger.Debug("Loaded month events",
		"year", year,
		"month", month,
		"records", len(records),
		"days", len(days))
	return nil
}

// LoadUpcoming refreshes the cached upcoming events and exams. On failure the
// previous value is kept.
func (s *Service) LoadUpcoming(ctx context.Context) (*models.Upcoming, error) {
	upcoming, err := s.api.UpcomingEvents(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch upcoming events", "error", err)
		return nil, fmt.Errorf("failed to load upcoming events: %w", err)
	}
	if upcoming == nil {
		upcoming = &models.Upcoming{}
	}

	s.mu.Lock()
	s.upcoming = upcoming
	s.mu.Unlock()
	return upcoming, nil
}

// Upcoming returns the last successfully fetched upcoming events, or nil
func (s *Service) Upcoming() *models.Upcoming {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upcoming
}

// Save validates the form and reconciles it against the API and the store.
// Validation failures and malformed requests abort before any remote call.
// Per-date failures do not stop the save; they are reported in the result.
func (s *Service) Save(ctx context.Context, req *SaveRequest) (*SaveResult, error) {
	if err := req.Form.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		result *SaveResult
		err    error
	)
	switch req.Scope {
	case ScopeCreate:
		result, err = s.create(ctx, &req.Form)
	case ScopeSingle:
		result, err = s.saveSingle(ctx, &req.Form, req.Editing)
	case ScopeAllInSeries:
		if req.Editing != nil && req.Editing.RecurrenceID == "" {
			s.logger.Warn("Occurrence has no series, editing it alone")
			result, err = s.saveSingle(ctx, &req.Form, req.Editing)
			break
		}
		result, err = s.saveSeries(ctx, &req.Form, req.Editing)
	default:
		return nil, fmt.Errorf("unsupported scope %s", req.Scope)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Saved event",
		"title", req.Form.Title,
		"scope", result.Scope,
		"recurrence_id", result.RecurrenceID,
		"created", len(result.Created),
		"updated", len(result.Updated),
		"deleted", len(result.Deleted),
		"failed", len(result.Failures))

	return result, nil
}

// create materializes a new series on every candidate date
func (s *Service) create(ctx context.Context, form *EventForm) (*SaveResult, error) {
	dates, err := CandidateDates(form.Date, form.recurrence(), form.Weekdays)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{
		Scope:        ScopeCreate,
		RecurrenceID: NewRecurrenceID(),
	}
	if len(dates) == 0 {
		s.logger.Warn("No dates selected for event",
			"date", models.DateKey(form.Date),
			"weekdays", form.Weekdays.String())
		return result, nil
	}

	for _, date := range dates {
		occ, ok := s.createOne(ctx, form.occurrence(date, result.RecurrenceID), result)
		if !ok {
			continue
		}
		s.store.ApplySingle("", occ)
		result.Created = append(result.Created, occ)
	}

	s.notify(ctx, models.ChangeCreated, result.Created)
	return result, nil
}

// saveSingle updates exactly one occurrence, moving it to the form date
func (s *Service) saveSingle(ctx context.Context, form *EventForm, editing *models.Occurrence) (*SaveResult, error) {
	if editing == nil || !editing.HasID() {
		return nil, errors.New("editing a single occurrence requires a saved occurrence")
	}

	occ := editing.Clone()
	form.patch(occ)
	occ.Date = models.DateOf(form.Date)
	// A single edit keeps the occurrence in its series as it was
	occ.Recurrence = editing.Recurrence
	occ.SelectedWeekdays = editing.SelectedWeekdays

	result := &SaveResult{
		Scope:        ScopeSingle,
		RecurrenceID: editing.RecurrenceID,
	}

	if _, err := s.api.UpdateEvent(ctx, *editing.ServerID, occ.Payload()); err != nil {
		s.logger.Warn("Failed to update event",
			"id", *editing.ServerID,
			"date", occ.Key(),
			"error", err)
		result.fail(occ.Date, OpUpdate, err)
		return result, nil
	}

	s.store.ApplySingle(editing.Key(), occ)
	result.Updated = append(result.Updated, occ)

	s.notify(ctx, models.ChangeUpdated, result.Updated)
	return result, nil
}

// saveSeries reconciles every stored occurrence of the edited series against
// the new weekday selection, then creates the candidate dates still missing
func (s *Service) saveSeries(ctx context.Context, form *EventForm, editing *models.Occurrence) (*SaveResult, error) {
	if editing == nil {
		return nil, errors.New("editing a series requires an occurrence of it")
	}

	mask := form.Weekdays.Resolve()
	dates, err := CandidateDates(form.Date, form.recurrence(), mask)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{
		Scope:        ScopeAllInSeries,
		RecurrenceID: editing.RecurrenceID,
	}
	change := SeriesChange{
		RecurrenceID: editing.RecurrenceID,
		Patch:        form.patch,
		Held:         make(map[string]bool),
		Deleted:      make(map[string]bool),
	}

	members := s.store.Series(editing.RecurrenceID)
	existing := make(map[string]bool, len(members))

	for _, member := range members {
		key := member.Key()
		id := MemberKey(member)
		existing[key] = true

		if !mask.Selects(member.Date) {
			if member.HasID() {
				if err := s.api.DeleteEvent(ctx, *member.ServerID); err != nil {
					s.logger.Warn("Failed to delete event",
						"id", *member.ServerID,
						"date", key,
						"error", err)
					result.fail(member.Date, OpDelete, err)
					change.Held[id] = true
					continue
				}
			}
			change.Deleted[id] = true
			result.Deleted = append(result.Deleted, member)
			continue
		}

		next := member.Clone()
		form.patch(next)
		if next.SameContent(member) {
			continue
		}
		if !member.HasID() {
			result.fail(member.Date, OpUpdate, errors.New("occurrence was never saved"))
			change.Held[id] = true
			continue
		}
		if _, err := s.api.UpdateEvent(ctx, *member.ServerID, next.Payload()); err != nil {
			s.logger.Warn("Failed to update event",
				"id", *member.ServerID,
				"date", key,
				"error", err)
			result.fail(member.Date, OpUpdate, err)
			change.Held[id] = true
			continue
		}
		result.Updated = append(result.Updated, next)
	}

	for _, date := range dates {
		if existing[models.DateKey(date)] {
			continue
		}
		occ, ok := s.createOne(ctx, form.occurrence(date, editing.RecurrenceID), result)
		if !ok {
			continue
		}
		change.Created = append(change.Created, occ)
		result.Created = append(result.Created, occ)
	}

	s.store.ApplySeries(change)

	s.notify(ctx, models.ChangeDeleted, result.Deleted)
	s.notify(ctx, models.ChangeUpdated, result.Updated)
	s.notify(ctx, models.ChangeCreated, result.Created)
	return result, nil
}

// createOne sends one create call and returns the occurrence carrying its
// assigned identifier. Failures are recorded on result.
func (s *Service) createOne(ctx context.Context, occ *models.Occurrence, result *SaveResult) (*models.Occurrence, bool) {
	record, err := s.api.CreateEvent(ctx, occ.Payload())
	if err != nil {
		s.logger.Warn("Failed to create event",
			"date", occ.Key(),
			"title", occ.Title,
			"error", err)
		result.fail(occ.Date, OpCreate, err)
		return nil, false
	}

	if record != nil && record.ID != 0 {
		occ.ServerID = models.Int64Ptr(record.ID)
	} else {
		s.logger.Warn("Create response carried no identifier", "date", occ.Key())
	}
	return occ, true
}

func (s *Service) notify(ctx context.Context, action models.ChangeAction, occs []*models.Occurrence) {
	if s.notifier == nil {
		return
	}

	at := s.now()
	for _, occ := range occs {
		change := models.NewChangeNotification(action, occ, at)
		if err := s.notifier.PublishChange(ctx, change); err != nil {
			s.logger.Warn("Failed to publish change",
				"action", action,
				"date", occ.Key(),
				"error", err)
		}
	}
}
