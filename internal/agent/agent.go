// ABOUTME: Agent contract: one request in, a stream of text and tool events out
// ABOUTME: Adapters consume the stream; backends implement Run

package agent

import (
	"context"
	"fmt"
)

// Agent runs a single turn.
type Agent interface {
	Run(ctx context.Context, req *Request) (<-chan Event, error)
}

// Request is one user turn.
type Request struct {
	SessionKey string
	Channel    string // e.g. "qq"
	SenderID   string
	SenderName string
	Content    string
}

// EventKind indicates the type of a streamed event.
type EventKind int

const (
	EventText EventKind = iota
	EventToolCall
	EventError
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventToolCall:
		return "tool_call"
	case EventError:
		return "error"
	case EventDone:
		return "done"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of an agent's output stream.
type Event struct {
	Kind     EventKind
	Text     string
	ToolCall *ToolCall
	Err      error
}

// ToolCall describes a tool the agent invoked.
type ToolCall struct {
	ID        string
	Name      string
	InputJSON string
}
