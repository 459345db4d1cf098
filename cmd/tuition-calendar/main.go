package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venkytv/tuition-calendar/internal/models"
	"github.com/venkytv/tuition-calendar/pkg/calendar"
	"github.com/venkytv/tuition-calendar/pkg/calendar/rest"
	"github.com/venkytv/tuition-calendar/pkg/config"
	"github.com/venkytv/tuition-calendar/pkg/nats"
)

const (
	defaultConfigPath = "config.yaml"
	gracefulTimeout   = 30 * time.Second
)

var (
	configPath = flag.String("config", defaultConfigPath, "Path to configuration file")
	version    = flag.Bool("version", false, "Print version information")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	dryRun     = flag.Bool("dry-run", false, "Log change notifications instead of publishing them")
)

// Version information - can be set at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	app, err := NewApp(*configPath, *debug, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = app.Run(ctx, args[0], args[1:])
	stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	if cerr := app.Close(closeCtx); cerr != nil {
		app.logger.Error("Error during shutdown", "error", cerr)
	}

	if err != nil {
		var verr *calendar.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				fmt.Fprintf(os.Stderr, "%s: %s\n", f.Field, f.Message)
			}
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// App holds the main application components
type App struct {
	config    *config.Config
	logger    *slog.Logger
	service   *calendar.Service
	publisher *nats.Publisher
	notifier  calendar.Notifier
	out       io.Writer
	now       func() time.Time
}

// NewApp creates a new application instance
func NewApp(configPath string, debugMode, dryRun bool) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging, debugMode)
	logger.Debug("Starting tuition calendar",
		"version", Version,
		"commit", GitCommit,
		"build_time", BuildTime,
		"config_path", configPath,
		"dry_run", dryRun)

	client, err := rest.NewClient(&cfg.API, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	app := &App{
		config: cfg,
		logger: logger,
		out:    os.Stdout,
		now:    time.Now,
	}

	switch {
	case cfg.NATS.Enabled && !dryRun:
		app.publisher, err = nats.NewPublisher(&nats.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		app.notifier = app.publisher
	case dryRun:
		app.notifier = &DryRunNotifier{logger: logger}
		logger.Info("Running in dry-run mode - changes will not be published")
	}

	app.service = calendar.NewService(client, calendar.NewStore(), app.notifier, logger)
	return app, nil
}

// Close releases the NATS connection, if any
func (a *App) Close(ctx context.Context) error {
	if a.publisher == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- a.publisher.Close() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setupLogger configures the application logger. Logs go to stderr so that
// command output on stdout stays clean.
func setupLogger(cfg config.LoggingConfig, debugMode bool) *slog.Logger {
	var level slog.Level

	if debugMode {
		level = slog.LevelDebug
	} else {
		switch cfg.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [command flags]\n\n", os.Args[0])
	fmt.Fprintln(out, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Tuition Calendar %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Time: %s\n", BuildTime)
}

// DryRunNotifier logs change notifications instead of publishing them
type DryRunNotifier struct {
	logger *slog.Logger
}

// PublishChange logs the change
func (n *DryRunNotifier) PublishChange(ctx context.Context, change *models.ChangeNotification) error {
	n.logger.Info("[DRY RUN] Would publish change",
		"action", change.Action,
		"date", change.DateKey,
		"title", change.Title,
		"start", change.Start,
		"end", change.End)
	return nil
}
