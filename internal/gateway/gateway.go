// ABOUTME: Gateway orchestrator that owns the store, support engine and HTTP server
// ABOUTME: Manages startup wiring, the listener, and graceful shutdown of sockets and storage

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/support-gateway/internal/auth"
	"github.com/2389/support-gateway/internal/config"
	"github.com/2389/support-gateway/internal/dedupe"
	"github.com/2389/support-gateway/internal/events"
	"github.com/2389/support-gateway/internal/realtime"
	"github.com/2389/support-gateway/internal/routing"
	"github.com/2389/support-gateway/internal/store"
	"github.com/2389/support-gateway/internal/support"
	"github.com/2389/support-gateway/internal/transcript"
)

// Gateway orchestrates the support-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	engine     *support.Engine
	accounts   *auth.Accounts
	sockets    *realtime.Handler
	renderer   *transcript.Renderer
	httpServer *http.Server
	logger     *slog.Logger

	// verifier is nil when auth.jwt_secret is unset (development mode)
	verifier *auth.JWTVerifier

	// dedupe remembers client_msg_id values for retransmit detection
	dedupe *dedupe.Cache

	// publisher sends domain events to the bus, or discards them
	publisher events.Publisher
}

// initStore creates the SQLite store. SUPPORT_DB_PATH overrides the
// configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SUPPORT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initPublisher connects to the event bus when one is configured.
func initPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.Events.AMQPURL == "" {
		return events.Noop{}, nil
	}
	p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting event bus: %w", err)
	}
	logger.Info("event bus connected", "exchange", cfg.Events.Exchange)
	return p, nil
}

// New creates a gateway from config. The store is opened and the event bus
// dialed here; nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := routing.ParsePolicy(cfg.Routing.Policy)
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := initPublisher(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	cache := dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)

	engine := support.New(support.Config{
		Store:     s,
		Policy:    policy,
		Dedupe:    cache,
		Publisher: publisher,
		Logger:    logger,
	})

	gw := &Gateway{
		config:    cfg,
		store:     s,
		engine:    engine,
		accounts:  auth.NewAccounts(s, logger),
		renderer:  transcript.NewRenderer(),
		logger:    logger.With("component", "gateway"),
		dedupe:    cache,
		publisher: publisher,
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		verifier = gw.verifier
	} else {
		gw.logger.Warn("auth.jwt_secret not set: admin sockets and transcript export are unauthenticated")
	}

	gw.sockets = realtime.NewHandler(realtime.Config{
		Engine:         engine,
		Accounts:       s,
		Verifier:       verifier,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
		ReadTimeout:    cfg.Realtime.ReadTimeout,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		Connection: realtime.Options{
			WriteTimeout: cfg.Realtime.WriteTimeout,
			PingInterval: cfg.Realtime.PingInterval,
			SendBuffer:   cfg.Realtime.SendBuffer,
		},
		Logger: logger,
	})

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway initialized",
		"routing_policy", policy,
		"event_bus", cfg.Events.AMQPURL != "")
	return gw, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Engine returns the support engine.
func (g *Gateway) Engine() *support.Engine {
	return g.engine
}

// Accounts returns the staff account service.
func (g *Gateway) Accounts() *auth.Accounts {
	return g.accounts
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = g.Shutdown(context.Background())
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := g.startServer(ln)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// The original context is already canceled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, closes every socket and releases the
// store and event bus.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.sockets.CloseAll()
	g.dedupe.Close()
	errs = appendCloseError(errs, "event bus close", g.publisher.Close())
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
