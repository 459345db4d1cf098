package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/venkytv/tuition-calendar/internal/models"
	"github.com/venkytv/tuition-calendar/pkg/calendar"
	"github.com/venkytv/tuition-calendar/pkg/calendar/ical"
	"github.com/venkytv/tuition-calendar/pkg/scheduler"
)

type command struct {
	name    string
	summary string
	run     func(a *App, ctx context.Context, args []string) error
}

var commands = []command{
	{"month", "Show the month grid with event counts", (*App).runMonth},
	{"day", "Show one day laid out on the hour grid", (*App).runDay},
	{"week", "Show the Monday-Sunday week", (*App).runWeek},
	{"upcoming", "Show upcoming events and exams", (*App).runUpcoming},
	{"create", "Create an event, expanding its recurrence", (*App).runCreate},
	{"edit", "Edit one occurrence or its whole series", (*App).runEdit},
	{"export", "Export a month as iCalendar", (*App).runExport},
	{"import", "Create one-off events from an iCalendar file", (*App).runImport},
	{"watch", "Refresh on a schedule and publish changes", (*App).runWatch},
}

// Run dispatches a subcommand
func (a *App) Run(ctx context.Context, name string, args []string) error {
	for _, c := range commands {
		if c.name == name {
			return c.run(a, ctx, args)
		}
	}
	return fmt.Errorf("unknown command %q", name)
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// parseDate parses "YYYY-MM-DD", defaulting to today
func (a *App) parseDate(s string) (time.Time, error) {
	if s == "" {
		return models.DateOf(a.now()), nil
	}
	return models.ParseDateKey(s)
}

func (a *App) loadMonthOf(ctx context.Context, date time.Time) error {
	return a.service.LoadMonth(ctx, date.Year(), date.Month())
}

func (a *App) runMonth(ctx context.Context, args []string) error {
	fs := newFlagSet("month")
	dateFlag := fs.String("date", "", "Any date in the month (YYYY-MM-DD), default today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := a.parseDate(*dateFlag)
	if err != nil {
		return err
	}
	if err := a.loadMonthOf(ctx, date); err != nil {
		return err
	}

	printMonth(a.out, date.Year(), date.Month(), a.service.Store())
	return nil
}

func printMonth(out io.Writer, year int, month time.Month, store *calendar.Store) {
	fmt.Fprintf(out, "%s %d\n", month, year)
	fmt.Fprintln(out, " Mon  Tue  Wed  Thu  Fri  Sat  Sun")

	for i, cell := range calendar.MonthGrid(year, month) {
		switch {
		case !cell.InMonth:
			fmt.Fprint(out, "    .")
		default:
			marker := " "
			if n := len(store.Day(cell.Key())); n > 0 {
				marker = "*"
				if n > 1 {
					marker = fmt.Sprint(min(n, 9))
				}
			}
			fmt.Fprintf(out, "  %2d%s", cell.Date.Day(), marker)
		}
		if i%7 == 6 {
			fmt.Fprintln(out)
		}
	}
}

func (a *App) runDay(ctx context.Context, args []string) error {
	fs := newFlagSet("day")
	dateFlag := fs.String("date", "", "Date (YYYY-MM-DD), default today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := a.parseDate(*dateFlag)
	if err != nil {
		return err
	}
	if err := a.loadMonthOf(ctx, date); err != nil {
		return err
	}

	layout := &a.config.Layout
	boxes := calendar.LayoutDay(a.service.Store().Day(models.DateKey(date)), layout)

	fmt.Fprintf(a.out, "%s (%s), grid %dpx\n", models.DateKey(date), date.Weekday(), layout.GridHeight())
	if len(boxes) == 0 {
		fmt.Fprintln(a.out, "No events")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTITLE\tTYPE\tTOP\tHEIGHT")
	for _, box := range boxes {
		occ := box.Occurrence
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			formatID(occ), occ.TimeLabel(), occ.Title, occ.EventType, box.Top, box.Height)
	}
	return w.Flush()
}

func (a *App) runWeek(ctx context.Context, args []string) error {
	fs := newFlagSet("week")
	dateFlag := fs.String("date", "", "Any date in the week (YYYY-MM-DD), default today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := a.parseDate(*dateFlag)
	if err != nil {
		return err
	}

	dates := calendar.WeekDates(date)
	// A week may straddle two months
	if err := a.loadMonthOf(ctx, dates[0]); err != nil {
		return err
	}
	days := a.service.Store().Snapshot()
	if last := dates[len(dates)-1]; last.Month() != dates[0].Month() {
		if err := a.loadMonthOf(ctx, last); err != nil {
			return err
		}
		for key, occs := range a.service.Store().Snapshot() {
			days[key] = occs
		}
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, d := range dates {
		key := models.DateKey(d)
		fmt.Fprintf(w, "%s %s\t\t\t\n", d.Weekday().String()[:3], key)
		for _, occ := range days[key] {
			fmt.Fprintf(w, "\t%s\t%s\t%s\n", formatID(occ), occ.TimeLabel(), occ.Title)
		}
	}
	return w.Flush()
}

func (a *App) runUpcoming(ctx context.Context, args []string) error {
	fs := newFlagSet("upcoming")
	if err := fs.Parse(args); err != nil {
		return err
	}

	upcoming, err := a.service.LoadUpcoming(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, section := range []struct {
		name  string
		items []models.UpcomingItem
	}{
		{"Upcoming events", upcoming.Events},
		{"Upcoming exams", upcoming.Exams},
	} {
		fmt.Fprintf(w, "%s\t\t\n", section.name)
		if len(section.items) == 0 {
			fmt.Fprintln(w, "\t(none)\t")
		}
		for _, item := range section.items {
			fmt.Fprintf(w, "\t%s\t%s\n", item.StartDateTime, item.Title)
		}
	}
	return w.Flush()
}

// formFlags are the event dialog fields shared by create and edit
type formFlags struct {
	title       string
	description string
	date        string
	start       string
	end         string
	eventType   string
	color       string
	recurrence  string
	weekdays    string
}

func (f *formFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.title, "title", "", "Event title")
	fs.StringVar(&f.description, "description", "", "Event description")
	fs.StringVar(&f.date, "date", "", "Date (YYYY-MM-DD)")
	fs.StringVar(&f.start, "start", "", "Start time (HH:MM)")
	fs.StringVar(&f.end, "end", "", "End time (HH:MM)")
	fs.StringVar(&f.eventType, "type", "", "Event type: "+joinTypes())
	fs.StringVar(&f.color, "color", "", "Colour code, default from the event type")
	fs.StringVar(&f.recurrence, "recurrence", "", "Recurrence: NONE, WEEK or MONTH")
	fs.StringVar(&f.weekdays, "weekdays", "", "Weekdays, e.g. mon,wed,fri; empty selects every day")
}

// form builds an EventForm. Empty flags fall back to base, which may be nil.
func (f *formFlags) form(base *models.Occurrence, today time.Time) (calendar.EventForm, error) {
	form := calendar.EventForm{
		Date:       today,
		Recurrence: models.RecurrenceNone,
	}
	if base != nil {
		form = calendar.EventForm{
			Title:       base.Title,
			Description: base.Description,
			Date:        base.Date,
			Start:       base.Start,
			End:         base.End,
			EventType:   base.EventType,
			ColorCode:   base.Color,
			Recurrence:  base.Recurrence,
			Weekdays:    base.SelectedWeekdays,
		}
	}

	var err error
	if f.title != "" {
		form.Title = f.title
	}
	if f.description != "" {
		form.Description = f.description
	}
	if f.date != "" {
		if form.Date, err = models.ParseDateKey(f.date); err != nil {
			return form, err
		}
	}
	if f.start != "" {
		if form.Start, err = models.ParseTimeOfDay(f.start); err != nil {
			return form, err
		}
	} else if base == nil {
		return form, fmt.Errorf("-start is required")
	}
	if f.end != "" {
		if form.End, err = models.ParseTimeOfDay(f.end); err != nil {
			return form, err
		}
	} else if base == nil {
		return form, fmt.Errorf("-end is required")
	}
	if f.eventType != "" {
		form.EventType = models.EventType(strings.ToUpper(strings.TrimSpace(f.eventType)))
	}
	if f.color != "" {
		form.ColorCode = f.color
	} else if f.eventType != "" && base != nil && base.Color == base.EventType.Color() {
		// Follow the new type's colour unless a custom colour was set
		form.ColorCode = ""
	}
	if f.recurrence != "" {
		if form.Recurrence, err = models.ParseRecurrenceMode(f.recurrence); err != nil {
			return form, err
		}
	}
	if f.weekdays != "" {
		if form.Weekdays, err = models.ParseWeekdays(f.weekdays); err != nil {
			return form, err
		}
	}
	return form, nil
}

func joinTypes() string {
	names := make([]string, 0, len(models.EventTypes()))
	for _, t := range models.EventTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func (a *App) runCreate(ctx context.Context, args []string) error {
	fs := newFlagSet("create")
	var ff formFlags
	ff.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	form, err := ff.form(nil, models.DateOf(a.now()))
	if err != nil {
		return err
	}

	result, err := a.service.Save(ctx, &calendar.SaveRequest{Scope: calendar.ScopeCreate, Form: form})
	if err != nil {
		return err
	}
	return a.report(result)
}

func (a *App) runEdit(ctx context.Context, args []string) error {
	fs := newFlagSet("edit")
	id := fs.Int64("id", 0, "Server id of the occurrence to edit")
	on := fs.String("on", "", "Date the occurrence is currently on (YYYY-MM-DD), default today")
	scopeFlag := fs.String("scope", "single", "single edits this occurrence, all edits its series")
	var ff formFlags
	ff.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id <= 0 {
		return fmt.Errorf("-id is required")
	}
	scope, err := calendar.ParseScope(*scopeFlag)
	if err != nil {
		return err
	}
	if scope == calendar.ScopeCreate {
		return fmt.Errorf("edit scope must be single or all")
	}

	current, err := a.parseDate(*on)
	if err != nil {
		return err
	}
	if err := a.loadMonthOf(ctx, current); err != nil {
		return err
	}
	editing, ok := a.service.Store().Find(*id)
	if !ok {
		return fmt.Errorf("event %d not found in %s %d", *id, current.Month(), current.Year())
	}

	form, err := ff.form(editing, current)
	if err != nil {
		return err
	}

	result, err := a.service.Save(ctx, &calendar.SaveRequest{Scope: scope, Form: form, Editing: editing})
	if err != nil {
		return err
	}
	return a.report(result)
}

// report prints a save result; per-date failures are listed but only fail
// the command when nothing succeeded
func (a *App) report(result *calendar.SaveResult) error {
	fmt.Fprintln(a.out, result.Summary())
	for _, occ := range result.Created {
		fmt.Fprintf(a.out, "  created %s %s %s\n", formatID(occ), occ.Key(), occ.TimeLabel())
	}
	for _, occ := range result.Updated {
		fmt.Fprintf(a.out, "  updated %s %s %s\n", formatID(occ), occ.Key(), occ.TimeLabel())
	}
	for _, occ := range result.Deleted {
		fmt.Fprintf(a.out, "  deleted %s %s\n", formatID(occ), occ.Key())
	}
	for _, f := range result.Failures {
		fmt.Fprintf(a.out, "  failed  %s\n", f.Error())
	}

	succeeded := len(result.Created) + len(result.Updated) + len(result.Deleted)
	if len(result.Failures) > 0 && succeeded == 0 {
		return result.Err()
	}
	return nil
}

func (a *App) runExport(ctx context.Context, args []string) error {
	fs := newFlagSet("export")
	dateFlag := fs.String("date", "", "Any date in the month (YYYY-MM-DD), default today")
	output := fs.String("o", "", "Output file, default stdout")
	name := fs.String("name", "School Calendar", "Calendar name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := a.parseDate(*dateFlag)
	if err != nil {
		return err
	}
	if err := a.loadMonthOf(ctx, date); err != nil {
		return err
	}

	var occurrences []*models.Occurrence
	for _, occs := range a.service.Store().Snapshot() {
		occurrences = append(occurrences, occs...)
	}

	out := a.out
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *output, err)
		}
		defer f.Close()
		out = f
	}

	if err := ical.Write(out, occurrences, ical.ExportOptions{Name: *name, Stamp: a.now()}); err != nil {
		return err
	}
	a.logger.Info("Exported calendar", "events", len(occurrences), "output", *output)
	return nil
}

func (a *App) runImport(ctx context.Context, args []string) error {
	fs := newFlagSet("import")
	input := fs.String("i", "", "iCalendar file to import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("-i is required")
	}

	f, err := os.Open(*input)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", *input, err)
	}
	defer f.Close()

	occurrences, err := ical.Parse(f, a.logger)
	if err != nil {
		return err
	}

	imported := 0
	for _, occ := range occurrences {
		form := calendar.EventForm{
			Title:       occ.Title,
			Description: occ.Description,
			Date:        occ.Date,
			Start:       occ.Start,
			End:         occ.End,
			EventType:   occ.EventType,
			ColorCode:   occ.Color,
			Recurrence:  models.RecurrenceNone,
		}
		result, err := a.service.Save(ctx, &calendar.SaveRequest{Scope: calendar.ScopeCreate, Form: form})
		if err != nil {
			a.logger.Warn("Skipping event", "title", occ.Title, "date", occ.Key(), "error", err)
			continue
		}
		if err := result.Err(); err != nil {
			a.logger.Warn("Failed to import event", "title", occ.Title, "date", occ.Key(), "error", err)
			continue
		}
		imported++
	}

	fmt.Fprintf(a.out, "Imported %d of %d events\n", imported, len(occurrences))
	return nil
}

func (a *App) runWatch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	refresher, err := scheduler.NewRefresher(&scheduler.Config{
		Schedule: a.config.Sync.Schedule,
		Upcoming: a.config.Sync.Upcoming,
		Timeout:  a.config.Sync.Timeout,
	}, a.service, a.notifier, a.logger)
	if err != nil {
		return err
	}

	// Establish the baseline before the first scheduled run
	initCtx, cancel := context.WithTimeout(ctx, a.config.Sync.Timeout)
	_, err = refresher.Refresh(initCtx)
	cancel()
	if err != nil {
		a.logger.Warn("Initial refresh failed", "error", err)
	}

	if err := refresher.Start(); err != nil {
		return err
	}
	a.logger.Info("Watching calendar", "schedule", a.config.Sync.Schedule)

	<-ctx.Done()
	a.logger.Info("Received shutdown signal")
	return refresher.Stop()
}

func formatID(occ *models.Occurrence) string {
	if occ.ServerID == nil {
		return "-"
	}
	return fmt.Sprintf("#%d", *occ.ServerID)
}
