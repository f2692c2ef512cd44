package session

import (
	"errors"
	"fmt"

	"github.com/inercia/carechat/internal/transport"
)

var (
	// ErrNotConnected is returned by Send while the connection is not open.
	ErrNotConnected = transport.ErrNotConnected

	// ErrEmptyMessage is returned by Send for blank text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrClosed is returned once the manager has been closed (logout).
	ErrClosed = errors.New("session closed")

	// ErrAlreadyStarted is returned by Start when a connection is active.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrModeNotSupported is returned when an expert tries to switch mode.
	ErrModeNotSupported = errors.New("mode switching is only available to patients")
)

// TransportError reports a connection that failed to open or dropped.
type TransportError struct {
	// Op is "connect", "read" or "send".
	Op  string
	URL string
	Err error
	// Retrying is true when a reconnect attempt has been scheduled.
	Retrying bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
