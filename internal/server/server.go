// Package server provides the optional HTTP API: health, alert history,
// saved snapshots, a live alert feed and an MJPEG preview.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/catwatch/internal/alert"
	"github.com/ayusman/catwatch/internal/server/api"
	"github.com/ayusman/catwatch/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Config holds the server configuration. Every field is optional; routes
// whose backing component is missing are not registered.
type Config struct {
	SnapshotDir string
	Store       *store.Store
	Events      *EventHub
	Stream      *FrameStream
	Alerts      *alert.Coordinator
	Detector    string
}

// Server represents the HTTP server for the cat detector.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		alerts := api.NewAlertHandler(s.config.Store)
		s.mux.Handle("/api/alerts", alerts)
		s.mux.Handle("/api/alerts/", alerts)
	}

	if s.config.Events != nil {
		s.mux.Handle("/api/events", s.config.Events)
	}

	if s.config.Stream != nil {
		s.mux.Handle("/api/stream", s.config.Stream)
	}

	if s.config.SnapshotDir != "" {
		fs := http.FileServer(http.Dir(s.config.SnapshotDir))
		s.mux.Handle(api.SnapshotPrefix, http.StripPrefix(api.SnapshotPrefix, fs))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Detector  string `json:"detector,omitempty"`
	State     string `json:"state,omitempty"`
	Alerts    int    `json:"alerts"`
	LastAlert string `json:"last_alert,omitempty"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.start).Round(time.Second).String(),
		Detector: s.config.Detector,
	}

	if c := s.config.Alerts; c != nil {
		st := c.State()
		response.State = c.Status(time.Now()).String()
		response.Alerts = st.Count
		if !st.LastAlert.IsZero() {
			response.LastAlert = st.LastAlert.UTC().Format(time.RFC3339)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.config.Events != nil {
		s.config.Events.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
