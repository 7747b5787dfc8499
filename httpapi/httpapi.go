// Package httpapi exposes the REST management surface and the websocket
// entry point. REST handles session lifecycle, stats, and sandboxed
// execution; everything real-time goes over /ws.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/copairhq/copair/engine"
	"github.com/copairhq/copair/gateway"
	"github.com/copairhq/copair/model"
	"github.com/copairhq/copair/sandbox"
)

const maxBodyBytes = 1 << 20

// Core is the engine surface the HTTP layer needs.
type Core interface {
	CreateSession(opts engine.CreateOptions) (model.Session, error)
	Sessions() []*model.Snapshot
	GetSession(id string) (*model.Snapshot, error)
	EndSession(id, requesterID string) error
	Stats(id string) (model.SessionStats, error)
	PlatformStats() model.PlatformStats
	Execute(ctx context.Context, req sandbox.Request) (sandbox.Result, error)
}

// Acceptor admits upgraded websocket connections. The gateway satisfies
// this interface.
type Acceptor interface {
	Accept(t gateway.Transport) (string, error)
}

// Server is the HTTP handler for the REST API and websocket upgrades.
type Server struct {
	core      Core
	acceptor  Acceptor
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// New builds a Server. heartbeat must match the gateway's ping cadence so
// transports set their read deadlines consistently.
func New(core Core, acceptor Acceptor, heartbeat time.Duration) *Server {
	return &Server{
		core:      core,
		acceptor:  acceptor,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins; access
			// control happens at the session permission layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// The websocket endpoint stays outside the timeout middleware: its
	// connections are long-lived on purpose.
	r.Get("/ws", s.handleWS)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleEndSession)
		r.Get("/sessions/{id}/stats", s.handleSessionStats)
		r.Post("/execute", s.handleExecute)
		r.Get("/stats", s.handlePlatformStats)
	})

	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	// At the ceiling, Accept writes a capacity error frame and closes the
	// transport itself.
	s.acceptor.Accept(gateway.NewWSTransport(conn, s.heartbeat))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	Name      string   `json:"name"`
	CreatorID string   `json:"creatorId"`
	Editors   []string `json:"editors"`
	Viewers   []string `json:"viewers"`
	IsPublic  bool     `json:"isPublic"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.core.CreateSession(engine.CreateOptions{
		Name:      req.Name,
		CreatorID: req.CreatorID,
		Editors:   req.Editors,
		Viewers:   req.Viewers,
		IsPublic:  req.IsPublic,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps := s.core.Sessions()
	out := make([]model.Session, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap.Session)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.core.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("userId")
	if requester == "" {
		writeError(w, fmt.Errorf("userId query parameter is required: %w", model.ErrMalformed))
		return
	}
	if err := s.core.EndSession(chi.URLParam(r, "id"), requester); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.core.Stats(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type executeRequest struct {
	Code          string `json:"code"`
	Language      string `json:"language"`
	TimeoutMS     int    `json:"timeoutMs,omitempty"`
	MemoryLimitKB int    `json:"memoryLimitKb,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Code == "" || req.Language == "" {
		writeError(w, fmt.Errorf("code and language are required: %w", model.ErrMalformed))
		return
	}

	result, err := s.core.Execute(r.Context(), sandbox.Request{
		Code:          req.Code,
		Language:      req.Language,
		Timeout:       time.Duration(req.TimeoutMS) * time.Millisecond,
		MemoryLimitKB: req.MemoryLimitKB,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePlatformStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.PlatformStats())
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), errorResponse{Error: errorBody{
		Code:    model.ErrorCode(err),
		Message: err.Error(),
	}})
}

// httpStatus maps taxonomy errors to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
