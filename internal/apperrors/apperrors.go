package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure taxonomy. Handlers translate these to HTTP
// statuses; everything unmatched is a server failure.
var (
	// ErrInvalid covers missing or malformed input rejected at the boundary.
	ErrInvalid = errors.New("invalid input")
	// ErrNoFace is returned when the face service finds no usable face.
	ErrNoFace = errors.New("no face detected")
	// ErrNotRecognized means no enrolled embedding cleared the match threshold.
	ErrNotRecognized = errors.New("face not recognized")
	// ErrNotFound covers missing employees and other absent records.
	ErrNotFound = errors.New("not found")
	// ErrConflict covers duplicate identifier registration.
	ErrConflict = errors.New("already exists")
)

// Invalid wraps ErrInvalid with a caller-facing message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// NotFound wraps ErrNotFound with a caller-facing message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflict wraps ErrConflict with a caller-facing message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrNoFace):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotRecognized), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
