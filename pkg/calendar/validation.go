package calendar

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/venkytv/tuition-calendar/internal/models"
)

var validate = newValidator()

var fieldMessages = map[string]string{
	"title.notblank":      "Title is required",
	"eventType.required":  "Please select an event type",
	"eventType.eventtype": "Please select an event type",
	"endTime.gtfield":     "End time must be after start time",
	"colorCode.hexcolor":  "Colour must be a hex colour code",
	"recurrence.oneof":    "Recurrence must be NONE, WEEK or MONTH",
}

func newValidator() *validator.Validate {
	v := validator.New()

	// Report JSON field names instead of Go struct names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("eventtype", func(fl validator.FieldLevel) bool {
		return models.EventType(fl.Field().String()).Valid()
	})

	return v
}

// FieldError is a validation failure on a single form field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned before any network call when a form is
// rejected; nothing has been sent or stored
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError creates a ValidationError from field errors
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// IsValidationError reports whether err is, or wraps, a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the form the way the edit dialog does: a non-blank title,
// a known event type, and an end time strictly after the start time
func (f *EventForm) Validate() error {
	var fields []FieldError

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate form: %w", err)
		}
		for _, fe := range verrs {
			msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
			if !ok {
				msg = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
			}
			fields = append(fields, FieldError{Field: fe.Field(), Message: msg})
		}
	}

	if f.Date.IsZero() {
		fields = append(fields, FieldError{Field: "date", Message: "Date is required"})
	}

	if len(fields) > 0 {
		return NewValidationError(fields...)
	}
	return nil
}
