// Package api serves the keeper's HTTP surface: health and Prometheus
// metrics, a state snapshot, the admin operations (registry bootstrap,
// pocket lifecycle), and a read-only WebSocket stream of domain events.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pocket-keeper/internal/config"
)

// Server runs the HTTP/WebSocket API.
type Server struct {
	cfg      config.APIConfig
	keeper   Keeper
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg config.APIConfig, keeper Keeper, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(keeper, cfg, hub, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("GET /ws", handlers.HandleWebSocket)

	mux.HandleFunc("POST /api/registry/init", handlers.HandleInitRegistry)
	mux.HandleFunc("PUT /api/registry/operators", handlers.HandleUpdateOperators)
	mux.HandleFunc("POST /api/registry/mints", handlers.HandleMint)

	mux.HandleFunc("GET /api/pockets", handlers.HandleListPockets)
	mux.HandleFunc("POST /api/pockets", handlers.HandleCreatePocket)
	mux.HandleFunc("GET /api/pockets/{address}", handlers.HandleGetPocket)
	mux.HandleFunc("POST /api/pockets/{address}/deposit", handlers.HandleDeposit)
	mux.HandleFunc("POST /api/pockets/{address}/withdraw", handlers.HandleWithdraw)
	mux.HandleFunc("POST /api/pockets/{address}/status", handlers.HandleStatus)
	mux.HandleFunc("POST /api/pockets/{address}/close-accounts", handlers.HandleCloseAccounts)
	mux.HandleFunc("POST /api/pockets/{address}/trigger", handlers.HandleTrigger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		keeper:   keeper,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the API server and hub. Blocks until the listener fails or
// the server is stopped.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("api server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// consumeEvents forwards engine events to every stream client.
func (s *Server) consumeEvents() {
	for evt := range s.keeper.Events() {
		s.hub.BroadcastEvent(evt)
	}
}
