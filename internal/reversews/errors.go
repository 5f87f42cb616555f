// ABOUTME: Error taxonomy for the reverse WebSocket transport
// ABOUTME: Typed errors carry context and match sentinels via errors.Is

package reversews

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoConnection is returned by SendAction when no bridge is connected.
	ErrNoConnection = errors.New("no open bridge connection")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("server already started")
	// ErrCallTimeout is matched by *CallTimeoutError.
	ErrCallTimeout = errors.New("action timed out")
	// ErrTransportIO is matched by *TransportIOError.
	ErrTransportIO = errors.New("transport i/o failure")
	// ErrConnectionClosed is wrapped when a connection goes away under a call.
	ErrConnectionClosed = errors.New("connection closed")
)

// CallTimeoutError reports an action that got no response in time.
type CallTimeoutError struct {
	Action  string
	Echo    string
	Timeout time.Duration
}

func (e *CallTimeoutError) Error() string {
	return fmt.Sprintf("action %s (echo %s) got no response within %s", e.Action, e.Echo, e.Timeout)
}

// Is makes errors.Is(err, ErrCallTimeout) true.
func (e *CallTimeoutError) Is(target error) bool { return target == ErrCallTimeout }

// TransportIOError reports a socket failure on one connection.
type TransportIOError struct {
	ConnectionID string
	Op           string // "read" or "write"
	Err          error
}

func (e *TransportIOError) Error() string {
	return fmt.Sprintf("connection %s: %s: %v", e.ConnectionID, e.Op, e.Err)
}

func (e *TransportIOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransportIO) true.
func (e *TransportIOError) Is(target error) bool { return target == ErrTransportIO }
