// ABOUTME: Event and lifecycle handler registration for the transport
// ABOUTME: Handlers run on the connection's dispatcher with panic isolation

package reversews

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/2389/onebot-gateway/internal/onebot"
)

// Handler signatures. A returned error is logged; it never stops the connection.
type (
	MessageHandler    func(ctx context.Context, ev *onebot.MessageEvent) error
	NoticeHandler     func(ctx context.Context, ev *onebot.NoticeEvent) error
	RequestHandler    func(ctx context.Context, ev *onebot.RequestEvent) error
	MetaEventHandler  func(ctx context.Context, ev *onebot.MetaEvent) error
	EventHandler      func(ctx context.Context, ev onebot.Event) error
	ConnectHandler    func(ctx context.Context, info ConnectionInfo)
	DisconnectHandler func(ctx context.Context, info ConnectionInfo, cause error)
	RejectHandler     func(r *http.Request, cause error)
)

type handlers struct {
	mu         sync.RWMutex
	message    []MessageHandler
	notice     []NoticeHandler
	request    []RequestHandler
	meta       []MetaEventHandler
	any        []EventHandler
	connect    []ConnectHandler
	disconnect []DisconnectHandler
	reject     []RejectHandler
}

// OnMessage registers a handler for message events.
func (s *Server) OnMessage(h MessageHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.message = append(s.handlers.message, h)
}

// OnNotice registers a handler for notice events.
func (s *Server) OnNotice(h NoticeHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.notice = append(s.handlers.notice, h)
}

// OnRequest registers a handler for friend and group requests.
func (s *Server) OnRequest(h RequestHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.request = append(s.handlers.request, h)
}

// OnMetaEvent registers a handler for lifecycle and heartbeat events.
func (s *Server) OnMetaEvent(h MetaEventHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.meta = append(s.handlers.meta, h)
}

// OnEvent registers a handler that sees every event, after the typed handlers.
func (s *Server) OnEvent(h EventHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.any = append(s.handlers.any, h)
}

// OnConnect registers a handler called when a bridge connection opens.
func (s *Server) OnConnect(h ConnectHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.connect = append(s.handlers.connect, h)
}

// OnDisconnect registers a handler called after a connection closes. cause is
// nil for a clean close.
func (s *Server) OnDisconnect(h DisconnectHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.disconnect = append(s.handlers.disconnect, h)
}

// OnReject registers a handler called when an upgrade fails authentication.
// It runs synchronously on the HTTP goroutine.
func (s *Server) OnReject(h RejectHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.reject = append(s.handlers.reject, h)
}

// dispatchEvent runs the matching handlers for ev. It is called on the
// connection's dispatcher goroutine.
func (s *Server) dispatchEvent(ctx context.Context, ev onebot.Event) {
	s.handlers.mu.RLock()
	message := s.handlers.message
	notice := s.handlers.notice
	request := s.handlers.request
	meta := s.handlers.meta
	anyEvent := s.handlers.any
	s.handlers.mu.RUnlock()

	switch e := ev.(type) {
	case *onebot.MessageEvent:
		for _, fn := range message {
			s.safeCall(ctx, "message", func() error { return fn(ctx, e) })
		}
	case *onebot.NoticeEvent:
		for _, fn := range notice {
			s.safeCall(ctx, "notice", func() error { return fn(ctx, e) })
		}
	case *onebot.RequestEvent:
		for _, fn := range request {
			s.safeCall(ctx, "request", func() error { return fn(ctx, e) })
		}
	case *onebot.MetaEvent:
		for _, fn := range meta {
			s.safeCall(ctx, "meta_event", func() error { return fn(ctx, e) })
		}
	}
	for _, fn := range anyEvent {
		s.safeCall(ctx, "event", func() error { return fn(ctx, ev) })
	}
}

func (s *Server) notifyConnect(ctx context.Context, info ConnectionInfo) {
	s.handlers.mu.RLock()
	fns := s.handlers.connect
	s.handlers.mu.RUnlock()

	for _, fn := range fns {
		s.safeCall(ctx, "connect", func() error { fn(ctx, info); return nil })
	}
}

func (s *Server) notifyDisconnect(ctx context.Context, info ConnectionInfo, cause error) {
	s.handlers.mu.RLock()
	fns := s.handlers.disconnect
	s.handlers.mu.RUnlock()

	for _, fn := range fns {
		s.safeCall(ctx, "disconnect", func() error { fn(ctx, info, cause); return nil })
	}
}

func (s *Server) notifyReject(r *http.Request, cause error) {
	s.handlers.mu.RLock()
	fns := s.handlers.reject
	s.handlers.mu.RUnlock()

	for _, fn := range fns {
		s.safeCall(r.Context(), "reject", func() error { fn(r, cause); return nil })
	}
}

// safeCall runs fn, logging a returned error or a recovered panic.
func (s *Server) safeCall(ctx context.Context, kind string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked",
				"handler", kind,
				"connection_id", ConnectionIDFromContext(ctx),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Error("handler failed",
			"handler", kind,
			"connection_id", ConnectionIDFromContext(ctx),
			"error", err,
		)
	}
}

type connectionIDKey struct{}

func withConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connectionIDKey{}, id)
}

// ConnectionIDFromContext returns the id of the connection whose event is
// being handled, or "".
func ConnectionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(connectionIDKey{}).(string)
	return id
}
