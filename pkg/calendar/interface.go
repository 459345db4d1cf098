package calendar

import (
	"context"
	"time"

	"github.com/venkytv/tuition-calendar/internal/models"
)

// API is the remote calendar service. It owns persistence; every mutation of
// the local store follows a successful call here.
type API interface {
	// CreateEvent creates one occurrence and returns it with its assigned id
	CreateEvent(ctx context.Context, payload *models.EventPayload) (*models.EventRecord, error)

	// UpdateEvent replaces one occurrence by its persisted identifier
	UpdateEvent(ctx context.Context, id int64, payload *models.EventPayload) (*models.EventRecord, error)

	// DeleteEvent removes one occurrence by its persisted identifier
	DeleteEvent(ctx context.Context, id int64) error

	// MonthEvents returns every occurrence starting in the given month
	MonthEvents(ctx context.Context, year int, month time.Month) ([]*models.EventRecord, error)

	// UpcomingEvents returns upcoming events and exams for the side widget
	UpcomingEvents(ctx context.Context) (*models.Upcoming, error)
}

// Notifier receives a notification for every change applied to the store
type Notifier interface {
	PublishChange(ctx context.Context, change *models.ChangeNotification) error
}
