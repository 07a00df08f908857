// Package server wires the HTTP surface: the upload gateway, the
// gallery listing API, raw file delivery, and the realtime channel.
package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"camrelay/internal/config"
	"camrelay/internal/storage"
	"camrelay/internal/store"
	ws "camrelay/internal/websocket"
)

// Server holds the request handlers and their collaborators
type Server struct {
	cfg    *config.Config
	store  *store.Store
	db     *storage.DB
	hub    *ws.Hub
	logger *slog.Logger
	router *mux.Router
}

// New assembles the server and registers all routes
func New(cfg *config.Config, st *store.Store, db *storage.DB, hub *ws.Hub, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		db:     db,
		hub:    hub,
		logger: logger,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Control panel and gallery pages
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/galeria", s.handleGallery).Methods("GET")

	// Photos and metadata sidecars
	s.router.HandleFunc("/uploads/{filename}", s.handleServeUpload).Methods("GET")

	// Upload gateway
	s.router.HandleFunc("/upload", s.handleUpload).Methods("POST")

	// Gallery API
	s.router.HandleFunc("/api/latest", s.handleLatest).Methods("GET")
	s.router.HandleFunc("/api/all", s.handleAll).Methods("GET")
	s.router.HandleFunc("/api/dashboard", s.handleDashboard).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Realtime channel
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler wraps the router with CORS and request logging. The mobile
// uploader and the control panel are served from different origins, so
// the surface stays permissive the way the original deployment was.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-API-Key"}),
	)
	return requestLogger(s.logger, cors(s.router))
}

// HTTPServer builds the configured *http.Server so the caller owns its
// lifecycle (graceful shutdown).
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.cfg.Server.StaticDir, "index.html"))
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.cfg.Server.StaticDir, "galeria.html"))
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so the websocket
// upgrade keeps working behind the logging middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// writeJSON writes v with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes the {ok:false, error} body every failing endpoint uses.
func (s *Server) writeError(w http.ResponseWriter, apiErr *APIError) {
	s.writeJSON(w, apiErr.Code, map[string]any{"ok": false, "error": apiErr.Message})
}
