// internal/apierror/errors.go
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport marks failures where no usable response came back: the
// network was unreachable or the body had an unexpected shape.
var ErrTransport = errors.New("transport error")

// GenericReason is reported for transport failures in batch summaries.
const GenericReason = "could not reach the booking service"

// ErrorInfo is the normalized, display-ready form of an API error.
type ErrorInfo struct {
	Message string `json:"message"`
}

// ValidationError rejects input before any request is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// RequestFailure is a request the server answered with a non-2xx status.
type RequestFailure struct {
	StatusCode int
	Info       ErrorInfo
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Info.Message)
}

// NotFound reports whether the server answered 404.
func (e *RequestFailure) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// Unauthorized reports whether the server rejected the caller's credentials.
func (e *RequestFailure) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Transport wraps err so that errors.Is(err, ErrTransport) holds.
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// BatchError summarizes a batch in which at least one request failed.
type BatchError struct {
	Failed int
	Total  int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("failed to reserve %d of %d books", e.Failed, e.Total)
}

// Reason returns the display string for err: the server's message for a
// RequestFailure, the validation reason for a ValidationError and a generic
// text for anything else.
func Reason(err error) string {
	var rf *RequestFailure
	if errors.As(err, &rf) {
		return rf.Info.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return GenericReason
}
