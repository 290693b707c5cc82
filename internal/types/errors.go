package types

import (
	"errors"
	"fmt"
)

var (
	ErrNoExtractor = errors.New("no matching extractor")
	ErrNoEventData = errors.New("no event data found")
	ErrDuplicate   = errors.New("duplicate event")
	ErrNotFound    = errors.New("not found")
	ErrQueueClosed = errors.New("queue closed")

	ErrInvalidTransition = errors.New("invalid task transition")
)

// ValidationError marks a payload that cannot become a canonical event.
type ValidationError struct {
	Field   string
	Reason  string
	Details map[string]interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Reason:  reason,
		Details: make(map[string]interface{}),
	}
}

func (e *ValidationError) WithDetail(key string, value interface{}) *ValidationError {
	e.Details[key] = value
	return e
}

func NoExtractorError(kind SourceKind) error {
	return fmt.Errorf("%w for source kind %s", ErrNoExtractor, kind)
}
