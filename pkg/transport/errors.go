package transport

import (
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for the transport package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("transport: API key is required")

	// ErrMissingModel indicates the model was not provided.
	ErrMissingModel = errors.New("transport: model is required")

	// ErrNotConnected indicates the connection has not been established.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrClosed indicates the session was closed.
	ErrClosed = errors.New("transport: session closed")

	// ErrQueueFull indicates the outbound queue dropped a chunk.
	ErrQueueFull = errors.New("transport: outbound queue full")

	// ErrSetupTimeout indicates the server never acknowledged setup.
	ErrSetupTimeout = errors.New("transport: setup not acknowledged")

	// ErrInvalidMessage indicates a malformed inbound message.
	ErrInvalidMessage = errors.New("transport: invalid message")
)

// ConnectionError describes a failure of the underlying connection.
type ConnectionError struct {
	// Op is the operation that failed ("dial", "setup", "read", "write").
	Op string

	// Code is the close code when the server closed the connection.
	Code int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transport: %s failed (close %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("transport: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsClosed reports whether err means the session is gone.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed)
}
