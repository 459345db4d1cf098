package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts:       attempts,
		InitialDelay:      5 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		BackoffFactor:     2.0,
		Jitter:            false,
		RetriableErrors:   []string{"connection refused"},
		RetriableStatuses: []int{http.StatusServiceUnavailable},
	}
}

func TestNewRetryer(t *testing.T) {
	retryer := NewRetryer(nil, nil)
	if retryer == nil {
		t.Fatal("Expected non-nil retryer")
	}
	if retryer.config == nil {
		t.Error("Expected default config when nil provided")
	}
	if retryer.logger == nil {
		t.Error("Expected default logger when nil provided")
	}

	retryer = NewRetryer(&Config{MaxAttempts: 0}, slog.Default())
	if retryer.config.MaxAttempts != 1 {
		t.Errorf("Expected MaxAttempts to be raised to 1, got %d", retryer.config.MaxAttempts)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	retryer := NewRetryer(fastConfig(3), slog.Default())

	calls := 0
	got, err := Do(context.Background(), retryer, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewHTTPError(http.StatusServiceUnavailable, "", "http://api.test/calendar-events/month")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got != "ok" {
		t.Errorf("Expected result 'ok', got %q", got)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_MaxAttemptsReached(t *testing.T) {
	retryer := NewRetryer(fastConfig(2), slog.Default())

	calls := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("dial tcp: connection refused")
	})
	if err == nil {
		t.Fatal("Expected error after max attempts")
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestDo_NonRetriable(t *testing.T) {
	retryer := NewRetryer(fastConfig(5), slog.Default())

	calls := 0
	badRequest := NewHTTPError(http.StatusBadRequest, "Title is required", "http://api.test/calendar-events")
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return badRequest
	})
	if calls != 1 {
		t.Errorf("Expected a single call for non-retriable error, got %d", calls)
	}
	if !errors.Is(err, badRequest) {
		t.Errorf("Expected the original error to be returned, got %v", err)
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", StatusCode(err))
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	config := fastConfig(3)
	config.InitialDelay = time.Second
	retryer := NewRetryer(config, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryer.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return NewHTTPError(http.StatusServiceUnavailable, "", "http://api.test")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetriable(t *testing.T) {
	retryer := NewRetryer(DefaultConfig(), slog.Default())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{"503", NewHTTPError(503, "", "u"), true},
		{"429", NewHTTPError(429, "", "u"), true},
		{"404", NewHTTPError(404, "", "u"), false},
		{"wrapped 502", fmt.Errorf("fetch month: %w", NewHTTPError(502, "", "u")), true},
		{"reset", errors.New("read: Connection Reset by peer"), true},
		{"other", errors.New("invalid character '<'"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryer.Retriable(tt.err); got != tt.want {
				t.Errorf("Retriable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDelay(t *testing.T) {
	retryer := NewRetryer(&Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      300 * time.Millisecond,
		BackoffFactor: 2.0,
	}, slog.Default())

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := retryer.delay(i + 1); got != w {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestHTTPError(t *testing.T) {
	err := NewHTTPError(http.StatusNotFound, "", "http://api.test/calendar-events/9")
	if err.Message != "Not Found" {
		t.Errorf("Expected status text fallback, got %q", err.Message)
	}
	if err.Error() != "HTTP 404: Not Found (URL: http://api.test/calendar-events/9)" {
		t.Errorf("Unexpected error string %q", err.Error())
	}
	if StatusCode(errors.New("plain")) != 0 {
		t.Error("Expected status 0 for non-HTTP error")
	}
}
