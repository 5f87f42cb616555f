// ABOUTME: Test doubles for the qq package: fake transport, scripted agents, recording store
// ABOUTME: Also builders for message events

package qq

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/onebot-gateway/internal/agent"
	"github.com/2389/onebot-gateway/internal/onebot"
	"github.com/2389/onebot-gateway/internal/store"
)

const selfID int64 = 10001

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okResponse(data string) *onebot.ActionResponse {
	return &onebot.ActionResponse{Status: "ok", RetCode: 0, Data: json.RawMessage(data)}
}

// fakeSender records actions and answers them with respond, or with a
// message id when respond is nil.
type fakeSender struct {
	mu      sync.Mutex
	actions []*onebot.Action
	respond func(a *onebot.Action) (*onebot.ActionResponse, error)
}

func (f *fakeSender) SendAction(_ context.Context, a *onebot.Action, _ time.Duration) (*onebot.ActionResponse, error) {
	f.mu.Lock()
	f.actions = append(f.actions, a)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(a)
	}
	return okResponse(`{"message_id":1}`), nil
}

func (f *fakeSender) sent() []*onebot.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*onebot.Action(nil), f.actions...)
}

// texts returns the plain text of every message action sent so far.
func (f *fakeSender) texts() []string {
	var out []string
	for _, a := range f.sent() {
		if msg, ok := a.Params["message"].(onebot.Message); ok {
			out = append(out, msg.PlainText())
		}
	}
	return out
}

// scriptedAgent replays a fixed event stream.
type scriptedAgent struct {
	events []agent.Event
	err    error
}

func (s *scriptedAgent) Run(context.Context, *agent.Request) (<-chan agent.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan agent.Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// gatedAgent answers one turn per token sent on release.
type gatedAgent struct {
	release chan struct{}

	mu      sync.Mutex
	started []string
}

func newGatedAgent() *gatedAgent {
	return &gatedAgent{release: make(chan struct{}, 16)}
}

func (g *gatedAgent) Run(ctx context.Context, req *agent.Request) (<-chan agent.Event, error) {
	g.mu.Lock()
	g.started = append(g.started, req.Content)
	g.mu.Unlock()

	ch := make(chan agent.Event, 1)
	go func() {
		defer close(ch)
		select {
		case <-g.release:
			ch <- agent.Event{Kind: agent.EventText, Text: "done " + req.Content}
		case <-ctx.Done():
			ch <- agent.Event{Kind: agent.EventError, Err: ctx.Err()}
		}
	}()
	return ch, nil
}

func (g *gatedAgent) startedTurns() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.started...)
}

// recordingStore keeps audit events in memory.
type recordingStore struct {
	store.Nop
	mu     sync.Mutex
	events []*store.AuditEvent
}

func (r *recordingStore) RecordEvent(ctx context.Context, e *store.AuditEvent) error {
	if err := r.Nop.RecordEvent(ctx, e); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingStore) kinds() []store.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.EventKind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func privateMessage(messageID int64, text string) *onebot.MessageEvent {
	return &onebot.MessageEvent{
		Header:      onebot.Header{Time: 1700000000, SelfID: selfID, PostType: onebot.PostTypeMessage},
		MessageType: onebot.MessageTypePrivate,
		SubType:     "friend",
		MessageID:   messageID,
		UserID:      42,
		Message:     onebot.Message{onebot.Text(text)},
		Sender:      onebot.Sender{UserID: 42, Nickname: "alice"},
	}
}

func groupMessage(messageID, groupID, userID int64, message onebot.Message) *onebot.MessageEvent {
	return &onebot.MessageEvent{
		Header:      onebot.Header{Time: 1700000000, SelfID: selfID, PostType: onebot.PostTypeMessage},
		MessageType: onebot.MessageTypeGroup,
		SubType:     "normal",
		MessageID:   messageID,
		UserID:      userID,
		GroupID:     groupID,
		Message:     message,
		Sender:      onebot.Sender{UserID: userID, Nickname: "bob", Card: "Bob"},
	}
}
