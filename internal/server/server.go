// Package server exposes the room over HTTP: the chat WebSocket, a
// live event stream, and admin endpoints for inspecting and resetting
// the room.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/nugget/emoroom/internal/buildinfo"
	"github.com/nugget/emoroom/internal/events"
	"github.com/nugget/emoroom/internal/memory"
	"github.com/nugget/emoroom/internal/opstate"
	"github.com/nugget/emoroom/internal/room"
	"github.com/nugget/emoroom/internal/tools"
)

// maxFrameSize caps inbound chat frames. The room enforces the message
// length limit; this only stops oversized frames early.
const maxFrameSize = 64 * 1024

// writeJSON encodes v as JSON to w, logging any errors at debug level.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Config holds the server's settings.
type Config struct {
	Address    string
	Port       int
	AdminToken string
	// Provider names the LLM backend, for display only.
	Provider string
}

// Server is the HTTP entry point for one room.
type Server struct {
	cfg      Config
	room     *room.Room
	registry *tools.Registry
	bus      *events.Bus
	store    *opstate.Store
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// New creates a server for rm. registry and bus may be nil.
func New(cfg Config, rm *room.Room, registry *tools.Registry, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		room:     rm,
		registry: registry,
		bus:      bus,
		logger:   logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetStore lets the room endpoint report when history was last saved.
func (s *Server) SetStore(st *opstate.Store) {
	s.store = st
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withLogging)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/v1/version", s.handleVersion)

	// Chat socket. /websocket is kept for older clients.
	r.Get("/ws", s.handleChat)
	r.Get("/websocket", s.handleChat)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/v1/room", s.handleRoom)
		r.Get("/v1/room/history", s.handleHistory)
		r.Get("/v1/room/context", s.handleContext)
		r.Post("/v1/room/reset", s.handleReset)
		r.Get("/v1/tools", s.handleTools)
		r.Get("/v1/events", s.handleEvents)
	})
	return r
}

// Start serves HTTP until the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.cfg.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting server", "address", addr, "port", s.cfg.Port, "room", s.room.ID())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

// requireAdmin checks the bearer token when one is configured. The
// token may also arrive as ?token= for browser WebSocket clients, which
// cannot set headers.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if presented == "" {
			presented = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.AdminToken)) != 1 {
			s.errorResponse(w, http.StatusUnauthorized, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"name":    s.room.AgentName(),
		"message": s.room.AgentName() + " Robot Running. 🤖",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

// RoomStatus is the body of GET /v1/room.
type RoomStatus struct {
	ID             string             `json:"id"`
	Policy         string             `json:"policy"`
	Agent          string             `json:"agent"`
	Provider       string             `json:"provider,omitempty"`
	Participants   []room.Participant `json:"participants"`
	MemorySize     int                `json:"memory_size"`
	MemoryCapacity int                `json:"memory_capacity"`
	SavedAt        *time.Time         `json:"saved_at,omitempty"`
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	mem := s.room.Memory()
	status := RoomStatus{
		ID:             s.room.ID(),
		Policy:         s.room.Policy(),
		Agent:          s.room.AgentName(),
		Provider:       s.cfg.Provider,
		Participants:   s.room.Participants(),
		MemorySize:     mem.Len(),
		MemoryCapacity: mem.Capacity(),
	}
	if s.store != nil {
		ts, err := s.store.UpdatedAt(r.Context(), memory.Namespace(s.room.ID()), memory.StorageKey)
		if err != nil {
			s.logger.Warn("failed to read history timestamp", "error", err)
		} else if !ts.IsZero() {
			status.SavedAt = &ts
		}
	}
	writeJSON(w, status, s.logger)
}

// HistoryResponse is the body of the history and context endpoints.
type HistoryResponse struct {
	Room     string               `json:"room"`
	Count    int                  `json:"count"`
	Messages []memory.ChatMessage `json:"messages"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs := s.room.Memory().FullView()
	writeJSON(w, HistoryResponse{Room: s.room.ID(), Count: len(msgs), Messages: msgs}, s.logger)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	msgs := s.room.Memory().ContextView()
	writeJSON(w, HistoryResponse{Room: s.room.ID(), Count: len(msgs), Messages: msgs}, s.logger)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.room.Reset(r.Context()); err != nil {
		s.logger.Error("room reset failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("room reset", "room", s.room.ID(), "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, map[string]string{"status": "reset", "room": s.room.ID()}, s.logger)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	list := []*tools.Tool{}
	if s.registry != nil {
		list = s.registry.List()
	}
	writeJSON(w, map[string]any{"tools": list}, s.logger)
}
