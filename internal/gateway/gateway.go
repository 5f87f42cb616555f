// ABOUTME: Gateway orchestrator that coordinates the reverse WebSocket transport and admin HTTP server
// ABOUTME: Builds the gate, adapter and store from config and manages their lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/2389/onebot-gateway/internal/agent"
	"github.com/2389/onebot-gateway/internal/auth"
	"github.com/2389/onebot-gateway/internal/config"
	"github.com/2389/onebot-gateway/internal/dedupe"
	"github.com/2389/onebot-gateway/internal/qq"
	"github.com/2389/onebot-gateway/internal/reversews"
	"github.com/2389/onebot-gateway/internal/sessiongate"
	"github.com/2389/onebot-gateway/internal/store"
)

// httpShutdownTimeout bounds the admin server's graceful shutdown.
const httpShutdownTimeout = 5 * time.Second

// Gateway orchestrates the onebot-gateway server components.
type Gateway struct {
	config     *config.Config
	transport  *reversews.Server
	gate       *sessiongate.Gate
	client     *qq.Client
	adapter    *qq.Adapter
	store      store.Store
	auth       *auth.Authenticator
	httpServer *http.Server // nil when the admin API is disabled
	logger     *slog.Logger

	mu        sync.Mutex
	adminAddr net.Addr
	ready     chan struct{}
}

// initStore opens the audit ledger, or a no-op store when no path is set.
func initStore(cfg *config.Config) (store.Store, error) {
	path := cfg.Database.Path
	if path == "" {
		return store.Nop{}, nil
	}
	if path != store.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	return s, nil
}

// newAuthenticator builds the credential check shared by the transport and
// the admin API.
func newAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	if cfg.Auth.JWTSecret == "" {
		return auth.NewAuthenticator(cfg.Server.AccessToken, nil), nil
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	return auth.NewAuthenticator(cfg.Server.AccessToken, verifier), nil
}

// New creates a new Gateway from cfg. The config must have had defaults
// applied (config.Load does this).
func New(cfg *config.Config, logger *slog.Logger, ag agent.Agent) (*Gateway, error) {
	if ag == nil {
		return nil, errors.New("agent is required")
	}

	authn, err := newAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	transport := reversews.New(reversews.Config{
		Host:                    cfg.Server.Host,
		Port:                    cfg.Server.Port,
		Authenticator:           authn,
		ActionTimeout:           cfg.Transport.ActionTimeout,
		StopTimeout:             cfg.Transport.StopTimeout,
		PingInterval:            cfg.Transport.PingInterval,
		ReadLimit:               cfg.Transport.ReadLimit,
		FailPendingOnDisconnect: cfg.Transport.FailPending(),
		Logger:                  logger,
	})

	gate := sessiongate.New(sessiongate.Options{
		MaxQueue: cfg.Gate.Limit(),
		Logger:   logger,
	})

	client := qq.NewClient(transport, cfg.Transport.ActionTimeout)
	adapter := qq.NewAdapter(client, ag, gate, qq.Options{
		RequireMention: cfg.QQ.MentionRequired(),
		AllowedUsers:   cfg.QQ.AllowedUsers,
		AllowedGroups:  cfg.QQ.AllowedGroups,
		OverflowNotice: cfg.QQ.OverflowNotice,
		Dedupe:         dedupe.New(cfg.QQ.DedupeTTL, cfg.QQ.DedupeSize),
		Store:          s,
		Logger:         logger,
	})

	gw := &Gateway{
		config:    cfg,
		transport: transport,
		gate:      gate,
		client:    client,
		adapter:   adapter,
		store:     s,
		auth:      authn,
		logger:    logger.With("component", "gateway"),
		ready:     make(chan struct{}),
	}

	gw.registerBridgeHandlers()
	gw.registerAuditHooks()

	if cfg.Server.AdminEnabled() {
		gw.httpServer = &http.Server{
			Addr:              cfg.Server.AdminAddr,
			Handler:           gw.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return gw, nil
}

// routes builds the admin HTTP router.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()

	// Health endpoints - no auth required
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(g.auth))
		r.Get("/connections", g.handleConnections)
		r.Get("/sessions", g.handleSessions)
		r.Get("/events", g.handleEvents)
		r.Post("/actions", g.handleAction)
	})

	return r
}

// Ready is closed once Run has bound its listeners.
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

// TransportAddr returns the reverse WebSocket listener address, nil before Run.
func (g *Gateway) TransportAddr() net.Addr {
	return g.transport.Addr()
}

// AdminAddr returns the admin API address, nil before Run or when disabled.
func (g *Gateway) AdminAddr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.adminAddr
}

// Run starts the transport and the admin HTTP server and blocks until ctx is
// canceled or a server fails. It shuts everything down before returning.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.transport.Start(ctx); err != nil {
		_ = g.store.Close()
		return err
	}

	var httpLn net.Listener
	if g.httpServer != nil {
		ln, err := net.Listen("tcp", g.httpServer.Addr)
		if err != nil {
			_ = g.Shutdown(context.Background())
			return fmt.Errorf("listening on admin address: %w", err)
		}
		httpLn = ln
		g.mu.Lock()
		g.adminAddr = ln.Addr()
		g.mu.Unlock()
	}

	g.logger.Info("gateway started",
		"listen_addr", g.transport.Addr().String(),
		"admin_addr", g.AdminAddr(),
		"max_queue", g.gate.MaxQueue(),
	)
	close(g.ready)

	grp, gctx := errgroup.WithContext(ctx)

	if httpLn != nil {
		grp.Go(func() error {
			g.logger.Info("admin HTTP server listening", "addr", httpLn.Addr().String())
			if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin HTTP server: %w", err)
			}
			return nil
		})
	}

	grp.Go(func() error {
		<-gctx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return grp.Wait()
}

// gracefulShutdown performs shutdown with a fresh context since the run
// context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Transport.StopTimeout+httpShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown drains in-flight turns, closes bridge connections, stops the
// admin server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error

	turnsCtx, cancel := context.WithTimeout(ctx, g.config.Transport.StopTimeout)
	errs = appendCloseError(errs, "adapter close", g.adapter.Close(turnsCtx))
	cancel()

	errs = appendCloseError(errs, "transport stop", g.transport.Stop(ctx))

	if g.httpServer != nil {
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if at least one bridge is connected.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	n := g.transport.ConnectionCount()
	if n == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no bridges connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d bridges)", n)
}
