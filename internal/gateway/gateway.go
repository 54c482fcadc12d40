// ABOUTME: Gateway orchestrator that wires the store, crew client, and triage pipeline
// ABOUTME: Manages the HTTP server lifecycle with graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/crew"
	"github.com/deskhand/deskhand/internal/store"
	"github.com/deskhand/deskhand/internal/triage"
)

// triageScheduler defines what the gateway needs from the triage layer.
// Gateway handlers only ever fire-and-forget; they never wait on a run.
type triageScheduler interface {
	Schedule(conversationID string)
}

// Gateway serves the chat-support HTTP API and schedules background
// triage for inbound customer messages.
type Gateway struct {
	config     *config.Config
	store      store.Store
	triage     triageScheduler
	httpServer *http.Server
	logger     *slog.Logger

	// orchestrator is retained for shutdown draining; nil when a test
	// injects a bare scheduler.
	orchestrator *triage.Orchestrator
}

// New creates a Gateway with an in-memory store and an HTTP crew client.
func New(cfg *config.Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	s := store.NewMemoryStore()
	crewClient := crew.NewClient(cfg.Triage.CrewURL, logger)
	orchestrator := triage.New(s, crewClient, crewClient, logger, triage.Options{
		MaxConcurrent: cfg.Triage.MaxConcurrent,
		CallTimeout:   cfg.Triage.CallTimeout,
	})

	g := &Gateway{
		config:       cfg,
		store:        s,
		triage:       orchestrator,
		orchestrator: orchestrator,
		logger:       logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g
}

// routes builds the chi router for the API surface. The browser frontend
// is served from another origin, so CORS stays wide open.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", g.handleHealth)

	r.Route("/chats", func(r chi.Router) {
		r.Get("/", g.handleListChats)
		r.Post("/", g.handleCreateChat)
		r.Get("/{id}/messages", g.handleListMessages)
		r.Post("/{id}/messages", g.handlePostMessage)
		r.Get("/{id}/ai", g.handleGetAutomation)
		r.Post("/{id}/ai", g.handleSetAutomation)
	})

	return r
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and drains in-flight triage runs for as
// long as the context allows. Runs still in flight when the deadline hits
// are abandoned; their collaborator calls are bounded by the call timeout.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	err := g.httpServer.Shutdown(ctx)

	if g.orchestrator != nil {
		done := make(chan struct{})
		go func() {
			g.orchestrator.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			g.logger.Warn("shutdown deadline reached with triage runs still in flight")
		}
	}

	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
