// Package app wires the server's components together and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rendezvous/internal/api"
	"rendezvous/internal/config"
	"rendezvous/internal/hub"
	"rendezvous/internal/logging"
	"rendezvous/internal/router"
	"rendezvous/internal/session"
	"rendezvous/internal/static"
	"rendezvous/internal/websocket"
)

// Application owns every long-lived component of the server.
type Application struct {
	config     *config.Config
	logger     zerolog.Logger
	registry   *session.Registry
	router     *router.Router
	hub        *hub.Hub
	httpServer *http.Server
}

// NewApplication builds the component graph:
// Registry → NameAllocator → Router → Hub → WebSocket/API/static → HTTP.
func NewApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: session state and routing
	registry := session.NewRegistry()
	var limiter *router.RateLimiter
	if cfg.RateLimit.Messages > 0 {
		limiter = router.NewRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Window)
	}
	messageRouter := router.NewRouter(registry, session.NewNameAllocator(), limiter, logger)

	// STEP 2: the single event loop
	messageHub := hub.NewHub(registry, messageRouter, cfg.WebSocket.HubBufferSize, logger)

	// STEP 3: HTTP surfaces
	wsHandler := websocket.NewHandler(messageHub, websocket.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBufferSize: cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger)
	apiServer := api.NewServer(registry, messageHub, logger)
	staticHandler := static.NewHandler(cfg.Static.Root, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/health", apiServer)
	mux.Handle("/api/", apiServer)
	mux.Handle("/", staticHandler)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      logging.Middleware(logger)(mux),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		registry:   registry,
		router:     messageRouter,
		hub:        messageHub,
		httpServer: httpServer,
	}, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

func (app *Application) Addr() string {
	return app.httpServer.Addr
}

// Run listens on the configured address and serves until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve runs the hub and HTTP server on ln until ctx is cancelled or either
// fails, then shuts both down. Open WebSockets are closed with 1001.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := app.hub.Start(gctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start hub: %w", err)
	}

	app.logger.Info().Str("addr", ln.Addr().String()).Msg("rendezvous listening")

	g.Go(func() error {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return app.shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.logger.Info().Msg("shutdown complete")
	return nil
}

// shutdown stops accepting HTTP requests, then stops the hub, which closes
// every remaining session.
func (app *Application) shutdown() error {
	app.logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), app.config.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	// The hub may have exited on its own when ctx was cancelled.
	<-app.hub.Done()

	return errors.Join(errs...)
}
