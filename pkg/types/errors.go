package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderNotAvailable is returned when a provider is not available.
	ErrProviderNotAvailable = errors.New("provider not available")

	// ErrConnectionClosed is returned when the client connection is gone.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("operation timed out")

	// ErrMalformedResponse is returned when a scoring response does not
	// match the requested shape.
	ErrMalformedResponse = errors.New("malformed scoring response")
)

// ScoringError reports a failed scoring call for a single candidate.
// It is recovered per item and never aborts the batch outside strict mode.
type ScoringError struct {
	Item  string // candidate URL
	Cause error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring %s: %v", e.Item, e.Cause)
}

func (e *ScoringError) Unwrap() error {
	return e.Cause
}

// TransportError reports a failed delivery to the client. It is terminal for
// the remainder of the request.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
