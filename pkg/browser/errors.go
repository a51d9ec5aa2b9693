package browser

import (
	"errors"
	"fmt"
)

var (
	ErrNoSuchElement      = errors.New("no such element")
	ErrStaleElement       = errors.New("stale element reference")
	ErrInvalidLocator     = errors.New("invalid locator")
	ErrUnsupportedLocator = errors.New("unsupported locator")
	ErrSessionClosed      = errors.New("browser session closed")
	ErrConnectionLost     = errors.New("driver connection lost")
)

// DriverError wraps errors from a browser driver with additional context.
type DriverError struct {
	Code    string
	Message string
	Err     error
}

func (e *DriverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("driver error [%s]: %s", e.Code, e.Message)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// NewDriverError creates a new DriverError.
func NewDriverError(code, message string) *DriverError {
	return &DriverError{Code: code, Message: message}
}

// WrapDriverError wraps an existing error with driver context.
func WrapDriverError(code, message string, err error) *DriverError {
	return &DriverError{Code: code, Message: message, Err: err}
}

// IsConnectionError returns true if the error indicates a lost connection.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrSessionClosed) {
		return true
	}
	var driverErr *DriverError
	if errors.As(err, &driverErr) {
		return driverErr.Code == "connection_lost" || driverErr.Code == "unavailable"
	}
	return false
}

// IsRetryable returns true if the lookup should simply be tried again on the
// next poll: the element is not currently locatable or its handle went stale.
// Connection loss is not retryable; a poll loop cannot repair it.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoSuchElement) || errors.Is(err, ErrStaleElement) {
		return true
	}
	var driverErr *DriverError
	if errors.As(err, &driverErr) {
		switch driverErr.Code {
		case "no_such_element", "stale_element":
			return true
		}
	}
	return false
}

// IsNoSuchElement reports whether err means the element is not there.
func IsNoSuchElement(err error) bool {
	if errors.Is(err, ErrNoSuchElement) {
		return true
	}
	var driverErr *DriverError
	return errors.As(err, &driverErr) && driverErr.Code == "no_such_element"
}
