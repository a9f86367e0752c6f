// Package server exposes the JSON API, CSV export, icon cache and the
// WebSocket price push channel.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"coinfolio/internal/service"
)

// Config holds the server dependencies.
type Config struct {
	Port      int
	Tracker   *service.Tracker
	Snapshots *service.Snapshots
	Hub       *Hub
	IconDir   string // empty disables the /icons/ static mount
}

// Server is the HTTP front of the tracker.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	tracker   *service.Tracker
	snapshots *service.Snapshots
	hub       *Hub
	iconDir   string
}

// New creates a configured but not yet listening server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		tracker:   cfg.Tracker,
		snapshots: cfg.Snapshots,
		hub:       cfg.Hub,
		iconDir:   cfg.IconDir,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		// Generous write timeout: refresh blocks on provider gates.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	if s.iconDir != "" {
		s.router.Handle("/icons/*", http.StripPrefix("/icons/", http.FileServer(http.Dir(s.iconDir))))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/portfolios", func(r chi.Router) {
			r.Get("/", s.handleListPortfolios)
			r.Post("/", s.handleCreatePortfolio)
			r.Get("/{id}", s.handleGetPortfolio)
			r.Put("/{id}", s.handleUpdatePortfolio)
			r.Delete("/{id}", s.handleDeletePortfolio)
			r.Post("/{id}/holdings", s.handleAddHolding)
			r.Post("/{id}/snapshot", s.handleCapturePortfolioSnapshot)
		})

		r.Route("/holdings", func(r chi.Router) {
			r.Put("/{id}", s.handleUpdateHolding)
			r.Delete("/{id}", s.handleDeleteHolding)
			r.Post("/{id}/buy", s.handleRecordBuy)
			r.Post("/{id}/move", s.handleMoveHolding)
		})

		r.Get("/coins/search", s.handleSearchCoins)
		r.Post("/refresh-prices", s.handleRefreshPrices)

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleListSnapshots)
			r.Get("/{id}", s.handleGetSnapshot)
			r.Delete("/{id}", s.handleDeleteSnapshot)
		})
		r.Post("/trigger-all-snapshots", s.handleTriggerAllSnapshots)
		r.Post("/compare-snapshots", s.handleCompareSnapshots)

		r.Get("/export/portfolio/{id}", s.handleExportPortfolio)

		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("Request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
		)
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the mux, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}
