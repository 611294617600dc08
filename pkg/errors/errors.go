package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoResponse           = errors.New("no successful response after maximum request attempts")
	ErrInvalidAttempts      = errors.New("max request attempts must be greater than zero")
	ErrUnsuccessfulResponse = errors.New("unsuccessful response from external API")
	ErrEmptyBatch           = errors.New("empty submissions batch")
	ErrMissingCredentials   = errors.New("API directory credentials are not configured")
	ErrAuthentication       = errors.New("API directory authentication failed")
	ErrRunInProgress        = errors.New("another sync run is in progress")
	ErrExamNotFound         = errors.New("exam not found")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

// RetryableError marks a transport failure that another attempt may get past.
type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}
