// ABOUTME: Reverse WebSocket listener accepting inbound OneBot bridge connections
// ABOUTME: Handles auth, upgrade, receive loops, keepalive and graceful shutdown

package reversews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/2389/onebot-gateway/internal/auth"
	"github.com/2389/onebot-gateway/internal/onebot"
)

// Upgrade request headers sent by OneBot v11 bridges.
const (
	HeaderSelfID     = "X-Self-ID"
	HeaderClientRole = "X-Client-Role"
)

const (
	defaultActionTimeout = 30 * time.Second
	defaultStopTimeout   = 5 * time.Second
	defaultReadLimit     = 10 << 20
)

// Authenticator checks an upgrade request before the handshake.
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.Identity, error)
}

// Config configures a Server.
type Config struct {
	Host string
	Port int // 0 picks a free port

	// Authenticator is consulted before every upgrade. Nil accepts all bridges.
	Authenticator Authenticator

	ActionTimeout time.Duration // default for SendAction, 30s when zero
	StopTimeout   time.Duration // bound on Stop's graceful phase, 5s when zero
	PingInterval  time.Duration // zero disables pings and read deadlines
	ReadLimit     int64         // max frame size, 10 MiB when zero

	// FailPendingOnDisconnect fails in-flight SendAction calls with a
	// *TransportIOError as soon as their connection drops. When false they
	// resolve only by timeout.
	FailPendingOnDisconnect bool

	Logger *slog.Logger
}

// Server is the reverse WebSocket protocol server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	handlers handlers

	conns   *xsync.MapOf[string, *Connection]
	pending *xsync.MapOf[string, *pendingCall]
	echoSeq atomic.Uint64
	connSeq atomic.Uint64

	mu         sync.Mutex // guards lifecycle fields below
	started    bool
	stopped    bool
	listener   net.Listener
	httpServer *http.Server
	baseCtx    context.Context
	cancel     context.CancelFunc
	serveDone  chan struct{}
	loops      sync.WaitGroup
	drains     sync.WaitGroup // dispatchers still running handlers
}

// New creates a Server. Call Start to begin listening.
func New(cfg Config) *Server {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:    cfg,
		logger: logger.With("component", "reversews"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Bridges are not browsers; the access token is the gate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:   xsync.NewMapOf[string, *Connection](),
		pending: xsync.NewMapOf[string, *pendingCall](),
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly. A second call returns ErrAlreadyStarted.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	r := chi.NewRouter()
	r.HandleFunc("/*", s.handleUpgrade)

	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serveDone = make(chan struct{})
	s.started = true

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("reverse websocket server stopped", "error", err)
		}
	}(s.httpServer, s.serveDone)

	s.logger.Info("reverse websocket server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Running reports whether the server is started and not stopped.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// Stop closes every connection and the listener. Connections get a close
// frame and up to StopTimeout (or until ctx is done) to finish the handshake
// before their sockets are disposed. Stop is a no-op if the server was never
// started or is already stopped.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	srv, serveDone, cancel := s.httpServer, s.serveDone, s.cancel
	s.mu.Unlock()

	ctx, stop := context.WithTimeout(ctx, s.cfg.StopTimeout)
	defer stop()

	// Hijacked WebSocket connections are not tracked by the HTTP server, so
	// this only stops new upgrades.
	shutdownErr := srv.Shutdown(ctx)

	var g errgroup.Group
	s.conns.Range(func(_ string, c *Connection) bool {
		g.Go(func() error {
			c.beginClose(websocket.CloseGoingAway, "server shutting down")
			return nil
		})
		return true
	})
	_ = g.Wait()

	loopsDone := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(loopsDone)
	}()

	select {
	case <-loopsDone:
	case <-ctx.Done():
		s.logger.Warn("graceful close timed out, dropping connections", "remaining", s.conns.Size())
		s.conns.Range(func(_ string, c *Connection) bool {
			c.terminate()
			return true
		})
		<-loopsDone
	}

	// Disconnect notifications are queued behind in-flight handlers.
	drained := make(chan struct{})
	go func() {
		s.drains.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("event handlers still running at shutdown")
	}

	<-serveDone
	cancel()

	s.logger.Info("reverse websocket server stopped")
	if shutdownErr != nil && !errors.Is(shutdownErr, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down listener: %w", shutdownErr)
	}
	return nil
}

// Connections returns the registered connections, oldest first.
func (s *Server) Connections() []ConnectionInfo {
	var out []*Connection
	s.conns.Range(func(_ string, c *Connection) bool {
		out = append(out, c)
		return true
	})
	slices.SortFunc(out, func(a, b *Connection) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	infos := make([]ConnectionInfo, len(out))
	for i, c := range out {
		infos[i] = c.Info()
	}
	return infos
}

// ConnectionCount returns the number of registered connections.
func (s *Server) ConnectionCount() int {
	return s.conns.Size()
}

// primary returns the earliest-accepted open connection, or nil.
func (s *Server) primary() *Connection {
	var best *Connection
	s.conns.Range(func(_ string, c *Connection) bool {
		if c.State() == StateOpen && (best == nil || c.seq < best.seq) {
			best = c
		}
		return true
	})
	return best
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	var identity *auth.Identity
	if s.cfg.Authenticator != nil {
		id, err := s.cfg.Authenticator.Authenticate(r)
		if err != nil {
			s.logger.Warn("rejected bridge connection",
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			s.notifyReject(r, err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		identity = id
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.New().String()
	c := newConnection(id, s.connSeq.Add(1), ws, s.logger.With("connection_id", id))
	c.role = r.Header.Get(HeaderClientRole)
	if identity != nil {
		c.subject = identity.Subject
	}
	if selfID, err := strconv.ParseInt(r.Header.Get(HeaderSelfID), 10, 64); err == nil {
		c.learnSelfID(selfID)
	}

	if !s.register(c) {
		c.terminate()
		c.dispatch.close()
		return
	}

	s.logger.Info("bridge connected",
		"connection_id", c.id,
		"self_id", c.SelfID(),
		"role", c.role,
		"remote_addr", c.remoteAddr,
	)

	ctx := withConnectionID(s.baseCtx, c.id)
	info := c.Info()
	c.dispatch.enqueue(func() { s.notifyConnect(ctx, info) })

	defer s.loops.Done()
	s.serve(ctx, c)
}

// register opens c and adds it to the registry unless Stop has begun.
func (s *Server) register(c *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	c.transition(StateConnecting, StateOpen)
	s.conns.Store(c.id, c)
	s.loops.Add(1)
	s.drains.Add(1)
	go func() {
		<-c.dispatch.done
		s.drains.Done()
	}()
	return true
}

// serve runs the receive loop until the socket fails or closes, then
// unregisters the connection.
func (s *Server) serve(ctx context.Context, c *Connection) {
	ws := c.ws
	ws.SetReadLimit(s.cfg.ReadLimit)

	extend := func() {}
	if s.cfg.PingInterval > 0 {
		readWait := 3 * s.cfg.PingInterval
		extend = func() { _ = ws.SetReadDeadline(time.Now().Add(readWait)) }
		extend()
		ws.SetPongHandler(func(string) error {
			extend()
			return nil
		})
		go s.keepalive(c)
	}
	ws.SetPingHandler(func(appData string) error {
		extend()
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || errors.As(err, &netErr) {
			return nil
		}
		return err
	})

	var cause error
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			cause = s.readFailure(c, err)
			break
		}
		extend()
		s.handleFrame(ctx, c, data)
	}

	s.unregister(ctx, c, cause)
}

// readFailure classifies the error that ended a receive loop. Clean closes
// yield nil.
func (s *Server) readFailure(c *Connection, err error) error {
	c.transition(StateOpen, StateClosing)

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	if c.State() == StateClosed {
		// Socket disposed locally by Stop or a failed write.
		return &TransportIOError{ConnectionID: c.id, Op: "read", Err: ErrConnectionClosed}
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Warn("bridge connection failed", "connection_id", c.id, "error", err)
	}
	return &TransportIOError{ConnectionID: c.id, Op: "read", Err: err}
}

func (s *Server) keepalive(c *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.Debug("ping failed", "error", err)
				c.terminate()
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleFrame routes one inbound frame. Responses resolve pending calls on
// the reader goroutine; events go to the dispatcher.
func (s *Server) handleFrame(ctx context.Context, c *Connection, data []byte) {
	switch onebot.Classify(data) {
	case onebot.FrameResponse:
		resp, ok := onebot.ParseActionResponse(data)
		if !ok {
			s.logger.Warn("dropping malformed action response",
				"connection_id", c.id,
				"preview", onebot.Preview(data),
			)
			return
		}
		s.resolve(c, resp)

	case onebot.FrameEvent:
		ev, err := onebot.Parse(data)
		if err != nil {
			s.logger.Warn("dropping unparseable event",
				"connection_id", c.id,
				"error", err,
				"preview", onebot.Preview(data),
			)
			return
		}
		c.learnSelfID(ev.EventHeader().SelfID)
		if meta, ok := ev.(*onebot.MetaEvent); ok && meta.IsHeartbeat() {
			c.heartbeat(time.Now())
		}
		c.dispatch.enqueue(func() { s.dispatchEvent(ctx, ev) })

	default:
		s.logger.Warn("dropping unrecognized frame",
			"connection_id", c.id,
			"preview", onebot.Preview(data),
		)
	}
}

// unregister removes c from the registry and tears it down.
func (s *Server) unregister(ctx context.Context, c *Connection, cause error) {
	s.conns.Delete(c.id)
	c.terminate()

	failed := 0
	if s.cfg.FailPendingOnDisconnect {
		failed = s.failPending(c.id)
	}

	s.logger.Info("bridge disconnected",
		"connection_id", c.id,
		"self_id", c.SelfID(),
		"failed_calls", failed,
		"cause", cause,
	)

	info := c.Info()
	c.dispatch.enqueue(func() { s.notifyDisconnect(ctx, info, cause) })
	c.dispatch.close()
}
