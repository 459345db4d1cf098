package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/venkytv/tuition-calendar/internal/models"
)

// ActionHeader carries the change action so subscribers can filter without
// decoding the body
const ActionHeader = "Calendar-Action"

// Publisher publishes calendar change notifications to NATS
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Config holds NATS publisher configuration
type Config struct {
	URL             string        `yaml:"url"`
	Subject         string        `yaml:"subject"`
	Name            string        `yaml:"name"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxPingsOut     int           `yaml:"max_pings_out"`
	ReconnectBuffer int           `yaml:"reconnect_buffer"`
}

// DefaultConfig returns a default NATS configuration
func DefaultConfig() *Config {
	return &Config{
		URL:             nats.DefaultURL,
		Subject:         "calendar.changes",
		Name:            "tuition-calendar",
		ConnectTimeout:  5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   10,
		PingInterval:    2 * time.Minute,
		MaxPingsOut:     2,
		ReconnectBuffer: 1024 * 1024,
	}
}

// NewPublisher connects to NATS. Zero fields of config take their defaults.
func NewPublisher(config *Config, logger *slog.Logger) (*Publisher, error) {
	config = withDefaults(config)
	if logger == nil {
		logger = slog.Default()
	}

	options := []nats.Option{
		nats.Name(config.Name),
		nats.Timeout(config.ConnectTimeout),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.PingInterval(config.PingInterval),
		nats.MaxPingsOutstanding(config.MaxPingsOut),
		nats.ReconnectBufSize(config.ReconnectBuffer),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS error", "error", err)
		}),
	}

	conn, err := nats.Connect(config.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", config.URL, err)
	}

	logger.Info("NATS publisher initialized",
		"url", config.URL,
		"subject", config.Subject,
		"connected_url", conn.ConnectedUrl())

	return &Publisher{
		conn:    conn,
		subject: config.Subject,
		logger:  logger,
	}, nil
}

func withDefaults(config *Config) *Config {
	defaults := DefaultConfig()
	if config == nil {
		return defaults
	}

	c := *config
	if c.URL == "" {
		c.URL = defaults.URL
	}
	if c.Subject == "" {
		c.Subject = defaults.Subject
	}
	if c.Name == "" {
		c.Name = defaults.Name
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = defaults.ReconnectWait
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = defaults.MaxReconnects
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaults.PingInterval
	}
	if c.MaxPingsOut == 0 {
		c.MaxPingsOut = defaults.MaxPingsOut
	}
	if c.ReconnectBuffer == 0 {
		c.ReconnectBuffer = defaults.ReconnectBuffer
	}
	return &c
}

// newMessage encodes a change as a JSON message on subject
func newMessage(subject string, change *models.ChangeNotification) (*nats.Msg, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(ActionHeader, string(change.Action))
	return msg, nil
}

// PublishChange publishes a single change notification
func (p *Publisher) PublishChange(ctx context.Context, change *models.ChangeNotification) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("NATS connection is not available")
	}

	msg, err := newMessage(p.subject, change)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if err := p.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("failed to publish change: %w", err)
		}
	}

	p.logger.Debug("Published change",
		"subject", p.subject,
		"action", change.Action,
		"date", change.DateKey,
		"title", change.Title)

	return nil
}

// PublishChanges publishes every change, continuing past individual failures
func (p *Publisher) PublishChanges(ctx context.Context, changes []*models.ChangeNotification) error {
	if len(changes) == 0 {
		return nil
	}

	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("NATS connection is not available")
	}

	publishedCount := 0
	errorCount := 0

	for _, change := range changes {
		if ctx.Err() != nil {
			p.logger.Warn("Context cancelled while publishing changes",
				"published", publishedCount,
				"errors", errorCount,
				"remaining", len(changes)-publishedCount-errorCount)
			return ctx.Err()
		}

		if err := p.PublishChange(ctx, change); err != nil {
			p.logger.Error("Failed to publish change",
				"error", err,
				"action", change.Action,
				"title", change.Title)
			errorCount++
			continue
		}
		publishedCount++
	}

	p.logger.Info("Finished publishing changes",
		"published", publishedCount,
		"errors", errorCount,
		"total", len(changes))

	if errorCount > 0 {
		return fmt.Errorf("failed to publish %d out of %d changes", errorCount, len(changes))
	}

	return nil
}

// Flush ensures all published messages have been sent
func (p *Publisher) Flush(timeout time.Duration) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("NATS connection is not available")
	}

	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("failed to flush NATS messages: %w", err)
	}

	return nil
}

// IsHealthy checks if the NATS connection is healthy
func (p *Publisher) IsHealthy() error {
	if p.conn == nil {
		return fmt.Errorf("NATS connection is nil")
	}

	if p.conn.IsClosed() {
		return fmt.Errorf("NATS connection is closed")
	}

	if !p.conn.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}

	return nil
}

// Close flushes pending messages and closes the connection
func (p *Publisher) Close() error {
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.Flush(5 * time.Second); err != nil {
			p.logger.Warn("Failed to flush messages on close", "error", err)
		}

		p.conn.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
