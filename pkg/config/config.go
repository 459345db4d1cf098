package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/venkytv/tuition-calendar/pkg/calendar"
	"github.com/venkytv/tuition-calendar/pkg/calendar/rest"
	"github.com/venkytv/tuition-calendar/pkg/retry"
)

// TokenEnv supplies the API token when the config file leaves it empty
const TokenEnv = "TUITION_CALENDAR_TOKEN"

const (
	defaultSchedule = "*/15 * * * *"
	defaultSubject  = "calendar.changes"
)

type Config struct {
	API     rest.Config           `yaml:"api"`
	NATS    NATSConfig            `yaml:"nats"`
	Sync    SyncConfig            `yaml:"sync"`
	Layout  calendar.LayoutConfig `yaml:"layout"`
	Logging LoggingConfig         `yaml:"logging"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// SyncConfig controls the background refresh run by the watch command
type SyncConfig struct {
	Schedule string        `yaml:"schedule"` // standard 5-field cron spec
	Upcoming bool          `yaml:"upcoming"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.API.Token == "" {
		config.API.Token = os.Getenv(TokenEnv)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Host == "" {
		return fmt.Errorf("API base URL %q is not a valid URL", c.API.BaseURL)
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	defaultRetry := retry.DefaultConfig()
	if c.API.Retry == nil {
		c.API.Retry = defaultRetry
	}
	if c.API.Retry.BackoffFactor == 0 {
		c.API.Retry.BackoffFactor = defaultRetry.BackoffFactor
	}
	if len(c.API.Retry.RetriableStatuses) == 0 {
		c.API.Retry.RetriableStatuses = defaultRetry.RetriableStatuses
	}
	if len(c.API.Retry.RetriableErrors) == 0 {
		c.API.Retry.RetriableErrors = defaultRetry.RetriableErrors
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("NATS URL is required when NATS is enabled")
		}
		if c.NATS.Subject == "" {
			c.NATS.Subject = defaultSubject
		}
	}

	if c.Sync.Schedule == "" {
		c.Sync.Schedule = defaultSchedule
	}
	if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", c.Sync.Schedule, err)
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = time.Minute
	}

	defaults := calendar.DefaultLayoutConfig()
	if c.Layout.PixelsPerHour == 0 {
		c.Layout.PixelsPerHour = defaults.PixelsPerHour
	}
	if c.Layout.MinEventHeight == 0 {
		c.Layout.MinEventHeight = defaults.MinEventHeight
	}
	if c.Layout.DayEndHour == 0 {
		c.Layout.DayEndHour = defaults.DayEndHour
	}
	if c.Layout.PixelsPerHour < 0 || c.Layout.MinEventHeight < 0 {
		return fmt.Errorf("layout sizes must not be negative")
	}
	if c.Layout.DayStartHour < 0 || c.Layout.DayEndHour > 24 || c.Layout.DayStartHour >= c.Layout.DayEndHour {
		return fmt.Errorf("layout day window %d-%d is invalid", c.Layout.DayStartHour, c.Layout.DayEndHour)
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}
