// ABOUTME: One accepted bridge socket: state machine, serialized writes, metadata
// ABOUTME: State moves Connecting -> Open -> Closing -> Closed and never back

package reversews

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

// State is a connection's lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateConnecting, StateOpen, StateClosing, StateClosed} {
		if string(text) == st.String() {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", text)
}

// ConnectionInfo is a point-in-time view of a connection.
type ConnectionInfo struct {
	ID            string    `json:"id"`
	SelfID        int64     `json:"self_id,omitempty"`
	Role          string    `json:"role,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	RemoteAddr    string    `json:"remote_addr"`
	State         State     `json:"state"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitzero"`
	QueuedEvents  int       `json:"queued_events"`
}

// Connection is an accepted bridge socket.
type Connection struct {
	id          string
	seq         uint64
	ws          *websocket.Conn
	remoteAddr  string
	role        string
	subject     string
	connectedAt time.Time

	selfID        atomic.Int64
	state         atomic.Int32
	lastHeartbeat atomic.Int64 // unix nanos, 0 before the first heartbeat

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	dispatch *dispatcher
	logger   *slog.Logger
}

func newConnection(id string, seq uint64, ws *websocket.Conn, logger *slog.Logger) *Connection {
	c := &Connection{
		id:          id,
		seq:         seq,
		ws:          ws,
		remoteAddr:  ws.RemoteAddr().String(),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
		dispatch:    newDispatcher(),
		logger:      logger,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the generated connection id.
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// SelfID returns the bot account id reported by the bridge, 0 if unknown.
func (c *Connection) SelfID() int64 { return c.selfID.Load() }

// Info returns a snapshot of the connection.
func (c *Connection) Info() ConnectionInfo {
	info := ConnectionInfo{
		ID:           c.id,
		SelfID:       c.SelfID(),
		Role:         c.role,
		Subject:      c.subject,
		RemoteAddr:   c.remoteAddr,
		State:        c.State(),
		ConnectedAt:  c.connectedAt,
		QueuedEvents: c.dispatch.pending(),
	}
	if ns := c.lastHeartbeat.Load(); ns != 0 {
		info.LastHeartbeat = time.Unix(0, ns)
	}
	return info
}

func (c *Connection) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// learnSelfID records the bot account id from the first event that carries one.
func (c *Connection) learnSelfID(id int64) {
	if id != 0 {
		c.selfID.CompareAndSwap(0, id)
	}
}

func (c *Connection) heartbeat(at time.Time) {
	c.lastHeartbeat.Store(at.UnixNano())
}

// writeText sends one text frame. Writes are serialized per connection.
func (c *Connection) writeText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() != StateOpen {
		return ErrConnectionClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// beginClose moves an open connection to Closing and sends a close frame.
// The receive loop finishes the handshake.
func (c *Connection) beginClose(code int, reason string) {
	if !c.transition(StateOpen, StateClosing) {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("sending close frame failed", "error", err)
		c.terminate()
	}
}

// terminate disposes the socket. Safe to call more than once.
func (c *Connection) terminate() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.ws.Close()
	})
}
