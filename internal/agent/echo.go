// ABOUTME: Trivial agent that streams the prompt back as the reply
// ABOUTME: Default backend for serve and the agent used in adapter tests

package agent

import (
	"context"
	"strings"
)

// EchoAgent replies with the request content, optionally prefixed.
type EchoAgent struct {
	Prefix string
}

// Run emits the reply as one text event per whitespace-separated word
// followed by EventDone.
func (e *EchoAgent) Run(ctx context.Context, req *Request) (<-chan Event, error) {
	words := strings.Fields(req.Content)
	ch := make(chan Event, len(words)+2)

	go func() {
		defer close(ch)

		if e.Prefix != "" {
			if !emit(ctx, ch, Event{Kind: EventText, Text: e.Prefix}) {
				return
			}
		}
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			if !emit(ctx, ch, Event{Kind: EventText, Text: w}) {
				return
			}
		}
		emit(ctx, ch, Event{Kind: EventDone})
	}()
	return ch, nil
}

// emit sends ev unless ctx is done. On cancellation it tries to deliver a
// final EventError and reports false.
func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		select {
		case ch <- Event{Kind: EventError, Err: ctx.Err()}:
		default:
		}
		return false
	}
}
