package convrelay

import (
	"errors"
	"fmt"
)

var (
	// ErrInsecureContext is returned by Start when audio capture is requested
	// against an endpoint that is neither wss:// nor a loopback host.
	ErrInsecureContext = errors.New("convrelay: audio capture requires a secure context (wss:// or loopback endpoint)")

	// ErrNoDevice classifies capture failures caused by a missing input device.
	ErrNoDevice = errors.New("convrelay: no audio input device")

	// ErrPermissionDenied classifies capture failures caused by the host
	// refusing access to the input device.
	ErrPermissionDenied = errors.New("convrelay: audio input permission denied")

	// ErrStopped is returned to EnsureConnected waiters whose attempt was
	// abandoned by Stop.
	ErrStopped = errors.New("convrelay: connection stopped")

	// ErrNotOpen is returned when a frame needs an open connection.
	ErrNotOpen = errors.New("convrelay: connection not open")

	// ErrEmptyMessage is returned when a text or custom message is blank.
	ErrEmptyMessage = errors.New("convrelay: message text is empty")
)

// Error is a transport error from the relay connection.
type Error struct {
	// Op is the failed operation (e.g. "dial", "write", "read").
	Op string

	// URL is the endpoint.
	URL string

	// StatusCode is the HTTP status of a failed handshake, if any.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("convrelay: %s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("convrelay: %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// DeviceErrorMessage returns the diagnostic line shown for a capture device
// failure, distinguishing the known causes.
func DeviceErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoDevice):
		return "No microphone found; continuing without audio."
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone permission denied; continuing without audio."
	default:
		return fmt.Sprintf("Microphone unavailable (%v); continuing without audio.", err)
	}
}
