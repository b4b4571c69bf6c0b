package client

import (
	"errors"
	"fmt"

	"github.com/gaugeread/gaugeread/pkg/reading"
)

var (
	// ErrServerNotRunning is returned when nothing listens on the server address
	ErrServerNotRunning = errors.New("reading server not running")

	// ErrPermissionDenied is returned when the user does not have permission to use the unix socket
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the server
	ErrNotFound = errors.New("404 not found")
)

// APIError is a non-2xx answer from a reading server. Code carries the
// validation kind when the server rejected the calibration range, so
// errors.Is(err, reading.ErrNotANumber) holds across the wire.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if k, ok := reading.ParseKind(e.Code); ok {
		return &reading.ValidationError{Kind: k}
	}
	return nil
}
