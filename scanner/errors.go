package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Scanner is constructed without a Dialer.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Scanner
	// without a transport.
	ErrNotInitialized = errors.New("scanner not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Scanner that has
	// already been closed.
	ErrAlreadyClosed = errors.New("scanner already closed")

	// ErrTransientOpen is returned when the serial port kept refusing to open
	// for the whole open window. The scanner is usually asleep or unplugged.
	ErrTransientOpen = errors.New("scanner not ready")

	// ErrNoResponse is returned by DeviceID when the scanner does not answer
	// within the read timeout.
	ErrNoResponse = errors.New("no response from scanner")

	// ErrNoImage is returned by CapturePicture when the scanner reports a
	// picture of zero bytes.
	ErrNoImage = errors.New("no image available")

	// ErrReadyTimeout is returned when no ready notification arrived within
	// the configured number of read rounds.
	ErrReadyTimeout = errors.New("picture ready notification not received")

	// ErrFetchTimeout is wrapped by FetchError.
	ErrFetchTimeout = errors.New("picture transfer timed out")

	// ErrValidation is wrapped by ValidationError.
	ErrValidation = errors.New("invalid capture parameters")

	// ErrInvalidConfig is wrapped by ConfigError.
	ErrInvalidConfig = errors.New("invalid scanner configuration")
)

// ConfigError reports a Config field holding a negative value. Zero selects
// the default.
type ConfigError struct {
	Field string
	Value any
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s must not be negative, got %v", e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// ValidationError reports a capture parameter outside its allowed range.
// It is returned before anything is written to the transport.
type ValidationError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s out of range: %d not in [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FetchError reports a binary picture transfer that did not complete.
type FetchError struct {
	Received int
	Expected int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch picture: received %d of %d bytes: %v", e.Received, e.Expected, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
