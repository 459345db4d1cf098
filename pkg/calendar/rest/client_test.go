package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/venkytv/tuition-calendar/internal/models"
	"github.com/venkytv/tuition-calendar/pkg/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{
		BaseURL: server.URL + "/api/v1/",
		Token:   "secret",
		Headers: map[string]string{"ngrok-skip-browser-warning": "true"},
		Timeout: 5 * time.Second,
		Retry: &retry.Config{
			MaxAttempts:       3,
			InitialDelay:      time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffFactor:     2,
			RetriableStatuses: []int{http.StatusServiceUnavailable},
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"nil config", nil, true},
		{"empty base URL", &Config{}, true},
		{"unsupported scheme", &Config{BaseURL: "ftp://example.com"}, true},
		{"valid", &Config{BaseURL: "https://school.example/api/v1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateEvent(t *testing.T) {
	var received models.EventPayload

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/calendar-events" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if got := r.Header.Get("ngrok-skip-browser-warning"); got != "true" {
			t.Errorf("Expected extra header, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Expected JSON content type, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 42, "title": "Staff Meeting", "startDateTime": "2026-10-21T09:00:00", "endDateTime": "2026-10-21T10:00:00"}`))
	})

	mask := models.AllWeekdays()
	record, err := client.CreateEvent(context.Background(), &models.EventPayload{
		ID:               9,
		Title:            "Staff Meeting",
		StartDateTime:    "2026-10-21T09:00:00",
		EndDateTime:      "2026-10-21T10:00:00",
		EventType:        models.EventTypeMeeting,
		ColorCode:        "#6C5CE7",
		RecurrenceID:     "r-1",
		Recurrence:       models.RecurrenceWeek,
		SelectedWeekdays: &mask,
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	if record.ID != 42 {
		t.Errorf("Expected id 42, got %d", record.ID)
	}
	if received.ID != 0 {
		t.Errorf("Expected id 0 on create, got %d", received.ID)
	}
	if received.RecurrenceID != "r-1" || received.SelectedWeekdays == nil || *received.SelectedWeekdays != mask {
		t.Errorf("Expected series fields to be sent, got %+v", received)
	}
}

func TestUpdateEvent(t *testing.T) {
	var received models.EventPayload

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/calendar-events/7" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	})

	record, err := client.UpdateEvent(context.Background(), 7, &models.EventPayload{Title: "Edited"})
	if err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}
	if record.ID != 7 {
		t.Errorf("Expected id 7 on empty response, got %d", record.ID)
	}
	if received.ID != 7 || received.Title != "Edited" {
		t.Errorf("Unexpected payload %+v", received)
	}
}

func TestDeleteEvent(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/calendar-events/7" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteEvent(context.Background(), 7); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestMonthEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/calendar-events/month" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("year") != "2026" || r.URL.Query().Get("month") != "10" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[
			{"id": 1, "title": "Staff Meeting", "startDateTime": "2026-10-21T09:00:00", "endDateTime": "2026-10-21T10:00:00",
			 "eventType": "MEETING", "colorCode": "#6C5CE7", "recurrenceId": "r-1", "recurrence": "WEEK",
			 "selectedWeekdays": [true, false, true, false, true, false, false]}
		]`))
	})

	records, err := client.MonthEvents(context.Background(), 2026, time.October)
	if err != nil {
		t.Fatalf("MonthEvents failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	occ, err := records[0].Occurrence()
	if err != nil {
		t.Fatalf("Occurrence failed: %v", err)
	}
	if occ.Recurrence != models.RecurrenceWeek || occ.SelectedWeekdays.String() != "mon,wed,fri" {
		t.Errorf("Unexpected series fields %s %s", occ.Recurrence, occ.SelectedWeekdays)
	}
}

func TestMonthEventsRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	records, err := client.MonthEvents(context.Background(), 2026, time.October)
	if err != nil {
		t.Fatalf("MonthEvents failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.CreateEvent(context.Background(), &models.EventPayload{Title: "Once"})
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", calls.Load())
	}
}

func TestErrorMessageFromBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "End time must be after start time"}`))
	})

	_, err := client.UpdateEvent(context.Background(), 3, &models.EventPayload{Title: "Bad"})
	if err == nil {
		t.Fatal("Expected error")
	}

	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", httpErr.StatusCode)
	}
	if httpErr.Message != "End time must be after start time" {
		t.Errorf("Expected server message, got %q", httpErr.Message)
	}
	if !strings.Contains(err.Error(), "failed to update event 3") {
		t.Errorf("Expected wrapped context, got %v", err)
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	tests := []struct {
		body     string
		expected string
	}{
		{`{"message": "nope"}`, "nope"},
		{`{"error": "Unauthorized"}`, "Unauthorized"},
		{`plain text failure`, "plain text failure"},
		{``, ""},
	}

	for _, tt := range tests {
		if got := errorMessage([]byte(tt.body)); got != tt.expected {
			t.Errorf("errorMessage(%q) = %q, want %q", tt.body, got, tt.expected)
		}
	}
}

func TestErrorMessageTruncation(t *testing.T) {
	long := strings.Repeat("x", 250)
	if got := errorMessage([]byte(long)); got != long[:200] {
		t.Errorf("Expected 200 bytes, got %d", len(got))
	}

	// "é" occupies bytes 199 and 200, straddling the limit
	accented := strings.Repeat("a", 199) + "été"
	got := errorMessage([]byte(accented))
	if !utf8.ValidString(got) {
		t.Fatalf("Expected valid UTF-8, got %q", got)
	}
	if got != strings.Repeat("a", 199) {
		t.Errorf("Expected cut before the split rune, got %d bytes", len(got))
	}
}

func TestUpcomingEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/calendar-events/calendar/upcoming" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"events": [{"id": 1, "title": "Sports Day"}], "exams": [{"id": 2, "title": "Maths Final"}]}`))
	})

	upcoming, err := client.UpcomingEvents(context.Background())
	if err != nil {
		t.Fatalf("UpcomingEvents failed: %v", err)
	}
	if len(upcoming.Events) != 1 || len(upcoming.Exams) != 1 || upcoming.Exams[0].Title != "Maths Final" {
		t.Errorf("Unexpected upcoming %+v", upcoming)
	}
}

func TestContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.MonthEvents(ctx, 2026, time.October); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
