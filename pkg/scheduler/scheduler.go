package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/venkytv/tuition-calendar/internal/models"
	"github.com/venkytv/tuition-calendar/pkg/calendar"
)

// Source reloads the local event store from the API. ReloadMonth returns the
// store contents before and after the load.
type Source interface {
	ReloadMonth(ctx context.Context, year int, month time.Month) (before, after map[string][]*models.Occurrence, err error)
	LoadUpcoming(ctx context.Context) (*models.Upcoming, error)
}

// Publisher receives the changes found by a refresh
type Publisher interface {
	PublishChange(ctx context.Context, change *models.ChangeNotification) error
}

// Config holds the refresh configuration
type Config struct {
	Schedule string        `yaml:"schedule"`
	Upcoming bool          `yaml:"upcoming"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig refreshes every fifteen minutes
func DefaultConfig() *Config {
	return &Config{
		Schedule: "*/15 * * * *",
		Upcoming: true,
		Timeout:  time.Minute,
	}
}

// Result summarizes one refresh
type Result struct {
	Year     int
	Month    time.Month
	Baseline bool
	Changes  []*models.ChangeNotification
}

// Refresher periodically reloads the current month and publishes whatever
// changed since the previous load. The first load of a month only records a
// baseline.
type Refresher struct {
	config    *Config
	source    Source
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	loaded  time.Time
	running bool
}

// NewRefresher creates a refresher. publisher may be nil.
func NewRefresher(config *Config, source Source, publisher Publisher, logger *slog.Logger) (*Refresher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", config.Schedule, err)
	}

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Refresher{
		config:    config,
		source:    source,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start schedules periodic refreshes
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("refresher is already running")
	}

	if _, err := r.cron.AddFunc(r.config.Schedule, r.runScheduled); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	r.cron.Start()
	r.running = true

	r.logger.Info("Starting calendar refresher", "schedule", r.config.Schedule)
	return nil
}

// Stop cancels in-flight work and waits for a running refresh to finish
func (r *Refresher) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher is not running")
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()

	r.logger.Info("Calendar refresher stopped")
	return nil
}

func (r *Refresher) runScheduled() {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.Timeout)
	defer cancel()

	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Error("Scheduled refresh failed", "error", err)
	}
}

// Refresh reloads the current month and publishes the differences against
// the previous load of the same month. On failure the store is unchanged
// and nothing is published.
func (r *Refresher) Refresh(ctx context.Context) (*Result, error) {
	now := r.now()
	month := models.NewDate(now.Year(), now.Month(), 1)
	result := &Result{Year: month.Year(), Month: month.Month()}

	before, after, err := r.source.ReloadMonth(ctx, month.Year(), month.Month())
	if err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	r.mu.Lock()
	result.Baseline = !r.loaded.Equal(month)
	r.loaded = month
	r.mu.Unlock()

	var errs []error
	if !result.Baseline {
		result.Changes = calendar.Diff(before, after, now)
		errs = append(errs, r.publish(ctx, result.Changes))
	}

	if r.config.Upcoming {
		if _, err := r.source.LoadUpcoming(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Info("Refreshed calendar",
		"year", result.Year,
		"month", result.Month,
		"baseline", result.Baseline,
		"changes", len(result.Changes))

	return result, errors.Join(errs...)
}

func (r *Refresher) publish(ctx context.Context, changes []*models.ChangeNotification) error {
	if r.publisher == nil {
		return nil
	}

	failed := 0
	for _, change := range changes {
		if err := r.publisher.PublishChange(ctx, change); err != nil {
			r.logger.Warn("Failed to publish change",
				"action", change.Action,
				"date", change.DateKey,
				"error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to publish %d of %d changes", failed, len(changes))
	}
	return nil
}

// cronLogger routes cron's logging through slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
