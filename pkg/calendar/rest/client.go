package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/venkytv/tuition-calendar/internal/models"
	"github.com/venkytv/tuition-calendar/pkg/calendar"
	"github.com/venkytv/tuition-calendar/pkg/retry"
)

const (
	eventsPath   = "/calendar-events"
	monthPath    = eventsPath + "/month"
	upcomingPath = eventsPath + "/calendar/upcoming"

	maxResponseBytes = 4 << 20
)

// Config holds calendar API client configuration
type Config struct {
	// BaseURL is the API root, e.g. https://school.example/api/v1
	BaseURL   string            `yaml:"base_url"`
	Token     string            `yaml:"token"`
	Headers   map[string]string `yaml:"headers"`
	UserAgent string            `yaml:"user_agent"`
	Timeout   time.Duration     `yaml:"timeout"`
	Retry     *retry.Config     `yaml:"retry"`
}

// Client talks JSON to the calendar REST API. Reads are retried with
// backoff; writes are attempted once so a create is never sent twice.
type Client struct {
	baseURL   string
	token     string
	headers   map[string]string
	userAgent string
	client    *http.Client
	retryer   *retry.Retryer
	logger    *slog.Logger
}

var _ calendar.API = (*Client)(nil)

// NewClient creates a calendar API client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if config == nil || strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("calendar API base URL is required")
	}
	base, err := url.Parse(strings.TrimSpace(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid calendar API base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("calendar API base URL must be http or https, got %q", base.Scheme)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "tuition-calendar/1.0"
	}

	return &Client{
		baseURL:   strings.TrimRight(base.String(), "/"),
		token:     config.Token,
		headers:   config.Headers,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
		},
		retryer: retry.NewRetryer(config.Retry, logger),
		logger:  logger,
	}, nil
}

// CreateEvent creates one occurrence. The payload id is always sent as 0.
func (c *Client) CreateEvent(ctx context.Context, payload *models.EventPayload) (*models.EventRecord, error) {
	body := *payload
	body.ID = 0

	var record models.EventRecord
	if err := c.do(ctx, http.MethodPost, eventsPath, nil, &body, &record); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return &record, nil
}

// UpdateEvent replaces one occurrence by id
func (c *Client) UpdateEvent(ctx context.Context, id int64, payload *models.EventPayload) (*models.EventRecord, error) {
	body := *payload
	body.ID = id

	var record models.EventRecord
	if err := c.do(ctx, http.MethodPut, eventPath(id), nil, &body, &record); err != nil {
		return nil, fmt.Errorf("failed to update event %d: %w", id, err)
	}
	if record.ID == 0 {
		record.ID = id
	}
	return &record, nil
}

// DeleteEvent removes one occurrence by id
func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, eventPath(id), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete event %d: %w", id, err)
	}
	return nil
}

// MonthEvents fetches every occurrence starting in the given month
func (c *Client) MonthEvents(ctx context.Context, year int, month time.Month) ([]*models.EventRecord, error) {
	query := url.Values{}
	query.Set("year", strconv.Itoa(year))
	query.Set("month", strconv.Itoa(int(month)))

	records, err := retry.Do(ctx, c.retryer, func(ctx context.Context) ([]*models.EventRecord, error) {
		var records []*models.EventRecord
		if err := c.do(ctx, http.MethodGet, monthPath, query, nil, &records); err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events for %d-%02d: %w", year, int(month), err)
	}

	c.logger.Debug("Fetched month events", "year", year, "month", int(month), "count", len(records))
	return records, nil
}

// UpcomingEvents fetches the upcoming events and exams
func (c *Client) UpcomingEvents(ctx context.Context) (*models.Upcoming, error) {
	upcoming, err := retry.Do(ctx, c.retryer, func(ctx context.Context) (*models.Upcoming, error) {
		var upcoming models.Upcoming
		if err := c.do(ctx, http.MethodGet, upcomingPath, nil, nil, &upcoming); err != nil {
			return nil, err
		}
		return &upcoming, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upcoming events: %w", err)
	}
	return upcoming, nil
}

func eventPath(id int64) string {
	return eventsPath + "/" + strconv.FormatInt(id, 10)
}

// do sends one request. Non-2xx responses become *retry.HTTPError carrying
// the server's message.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("Calling calendar API", "method", method, "url", endpoint)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := retry.NewHTTPError(resp.StatusCode, errorMessage(data), endpoint)
		c.logger.Warn("Calendar API returned error",
			"method", method,
			"url", endpoint,
			"status_code", resp.StatusCode,
			"message", httpErr.Message)
		return httpErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// errorMessage extracts {"message": ...} from an error body, falling back to
// the raw text
// maxErrorText bounds a raw error body quoted in an error message, in bytes
const maxErrorText = 200

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorText {
		// Cut on a rune boundary
		n := maxErrorText
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		text = text[:n]
	}
	return text
}
