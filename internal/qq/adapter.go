// ABOUTME: Message adapter: filters events, admits them per chat session, runs the agent
// ABOUTME: Busy sessions queue in arrival order; overflow gets a notice instead of a turn

package qq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/onebot-gateway/internal/agent"
	"github.com/2389/onebot-gateway/internal/dedupe"
	"github.com/2389/onebot-gateway/internal/onebot"
	"github.com/2389/onebot-gateway/internal/sessiongate"
	"github.com/2389/onebot-gateway/internal/store"
)

// DefaultOverflowNotice is sent when a session's queue is full.
const DefaultOverflowNotice = "message skipped due to load, try later"

// ChannelName identifies this adapter in agent requests.
const ChannelName = "qq"

// Options configures an Adapter.
type Options struct {
	// RequireMention ignores group messages that do not @-mention the bot.
	RequireMention bool

	// AllowedUsers and AllowedGroups restrict who is answered. A message is
	// accepted when its sender is listed or it was posted in a listed group.
	// Both empty accepts everyone.
	AllowedUsers  []int64
	AllowedGroups []int64

	OverflowNotice string

	// Dedupe drops re-delivered events. Nil disables duplicate detection.
	Dedupe *dedupe.Window

	Store  store.Store
	Logger *slog.Logger
}

// Adapter turns OneBot message events into agent turns.
type Adapter struct {
	client *Client
	agent  agent.Agent
	gate   *sessiongate.Gate
	opts   Options
	users  map[int64]struct{}
	groups map[int64]struct{}
	store  store.Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

// NewAdapter creates an Adapter.
func NewAdapter(client *Client, ag agent.Agent, gate *sessiongate.Gate, opts Options) *Adapter {
	if opts.OverflowNotice == "" {
		opts.OverflowNotice = DefaultOverflowNotice
	}
	st := opts.Store
	if st == nil {
		st = store.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		client: client,
		agent:  ag,
		gate:   gate,
		opts:   opts,
		users:  toSet(opts.AllowedUsers),
		groups: toSet(opts.AllowedGroups),
		store:  st,
		logger: logger.With("component", "qq"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// SessionKey is the admission key for ev's chat.
func SessionKey(ev *onebot.MessageEvent) string {
	return "qq_" + ev.SessionID()
}

// HandleMessage admits ev and schedules its turn. It returns without
// waiting for the agent, so it is safe to call from the transport's
// dispatch goroutine; queue position is fixed before it returns.
func (a *Adapter) HandleMessage(ctx context.Context, ev *onebot.MessageEvent) error {
	text := strings.TrimSpace(ev.PlainText())
	if text == "" {
		return nil
	}
	if a.opts.Dedupe != nil && a.opts.Dedupe.Observe(dedupe.KeyOf(ev)) {
		a.logger.Debug("duplicate message ignored", "self_id", ev.SelfID, "message_id", ev.MessageID)
		return nil
	}
	if ev.IsGroup() && a.opts.RequireMention && !ev.MentionsSelf() {
		return nil
	}
	if !a.allowed(ev) {
		a.logger.Info("ignoring message from unlisted sender",
			"message_type", ev.MessageType,
			"user_id", ev.UserID,
			"group_id", ev.GroupID,
		)
		return nil
	}

	key := SessionKey(ev)
	logger := a.logger.With("session_key", key, "message_id", ev.MessageID)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		logger.Debug("adapter closed, dropping message")
		return nil
	}

	res, err := a.gate.Reserve(key)
	if err != nil {
		if !errors.Is(err, sessiongate.ErrOverflow) {
			a.mu.Unlock()
			return fmt.Errorf("admitting message: %w", err)
		}
		a.wg.Add(1)
		a.mu.Unlock()

		logger.Warn("session queue full, skipping message", "max_queue", a.gate.MaxQueue())
		a.audit(ctx, &store.AuditEvent{
			Kind:       store.KindAdmissionOverflow,
			SelfID:     ev.SelfID,
			SessionKey: key,
			Detail: map[string]any{
				"message_id": ev.MessageID,
				"user_id":    ev.UserID,
				"max_queue":  a.gate.MaxQueue(),
			},
		})
		go func() {
			defer a.wg.Done()
			a.deliver(a.ctx, ev, key, a.opts.OverflowNotice)
		}()
		return nil
	}

	a.wg.Add(1)
	a.mu.Unlock()

	logger.Info("message admitted",
		"sender", ev.Sender.DisplayName(),
		"queued", res.Queued(),
	)
	go a.runTurn(res, ev, text, key, logger)
	return nil
}

func (a *Adapter) allowed(ev *onebot.MessageEvent) bool {
	if len(a.users) == 0 && len(a.groups) == 0 {
		return true
	}
	if _, ok := a.users[ev.UserID]; ok {
		return true
	}
	if ev.IsGroup() {
		if _, ok := a.groups[ev.GroupID]; ok {
			return true
		}
	}
	return false
}

// runTurn waits for the session slot, runs the agent and streams its output.
func (a *Adapter) runTurn(res *sessiongate.Reservation, ev *onebot.MessageEvent, text, key string, logger *slog.Logger) {
	defer a.wg.Done()

	ticket, err := res.Wait(a.ctx)
	if err != nil {
		logger.Debug("turn abandoned before admission", "error", err)
		return
	}
	defer ticket.Release()

	stream, err := a.agent.Run(a.ctx, &agent.Request{
		SessionKey: key,
		Channel:    ChannelName,
		SenderID:   fmt.Sprint(ev.UserID),
		SenderName: ev.Sender.DisplayName(),
		Content:    text,
	})
	if err != nil {
		logger.Error("agent run failed", "error", err)
		a.deliver(a.ctx, ev, key, "[Error] "+err.Error())
		return
	}

	var buf strings.Builder
	flush := func() {
		out := strings.TrimSpace(buf.String())
		buf.Reset()
		if out != "" {
			a.deliver(a.ctx, ev, key, out)
		}
	}

	for item := range stream {
		switch item.Kind {
		case agent.EventText:
			buf.WriteString(item.Text)
		case agent.EventToolCall:
			flush()
			if item.ToolCall != nil {
				logger.Info("agent tool call", "tool", item.ToolCall.Name, "tool_call_id", item.ToolCall.ID)
				a.deliver(a.ctx, ev, key, toolNotice(item.ToolCall))
			}
		case agent.EventError:
			flush()
			logger.Error("agent stream error", "error", item.Err)
			if item.Err != nil && a.ctx.Err() == nil {
				a.deliver(a.ctx, ev, key, "[Error] "+item.Err.Error())
			}
		case agent.EventDone:
		}
	}
	flush()
	logger.Debug("turn complete")
}

func toolNotice(tc *agent.ToolCall) string {
	return fmt.Sprintf("calling tool %s...", tc.Name)
}

// deliver replies to ev's chat. Failures are logged and audited, never retried.
func (a *Adapter) deliver(ctx context.Context, ev *onebot.MessageEvent, key, text string) bool {
	if _, err := a.client.ReplyText(ctx, ev, text); err != nil {
		a.logger.Warn("reply delivery failed",
			"session_key", key,
			"message_id", ev.MessageID,
			"error", err,
		)
		a.audit(context.Background(), &store.AuditEvent{
			Kind:       store.KindDeliveryFailed,
			SelfID:     ev.SelfID,
			SessionKey: key,
			Detail: map[string]any{
				"message_id": ev.MessageID,
				"error":      err.Error(),
			},
		})
		return false
	}
	return true
}

func (a *Adapter) audit(ctx context.Context, e *store.AuditEvent) {
	if err := a.store.RecordEvent(ctx, e); err != nil {
		a.logger.Error("recording audit event", "kind", e.Kind, "error", err)
	}
}

// Close stops accepting messages and waits for in-flight turns. If ctx ends
// first, running turns are cancelled and Close returns ctx.Err() once they
// have unwound.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-done
		return ctx.Err()
	}
}
