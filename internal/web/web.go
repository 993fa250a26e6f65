package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ParachuteTeam/Parachute/internal/config"
	appLog "github.com/ParachuteTeam/Parachute/internal/log"
	"github.com/ParachuteTeam/Parachute/internal/schedule"
	"github.com/ParachuteTeam/Parachute/internal/store"
)

// participantHeader carries the caller's identity. Authentication happens
// in front of this server.
const participantHeader = "X-Participant-ID"

// maxBodyBytes caps request bodies, calendar uploads included.
const maxBodyBytes = 4 << 20

// Server exposes the event service over HTTP.
type Server struct {
	cfg *config.Config
	svc *schedule.Service
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *schedule.Service) *Server {
	s := &Server{
		cfg: cfg,
		svc: svc,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password leaves auth off.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Parachute", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PATCH /api/events/{id}", s.handleRenameEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/join/{code}", s.handleLookupJoinCode)
	s.mux.HandleFunc("POST /api/join/{code}", s.handleJoin)

	s.mux.HandleFunc("GET /api/events/{id}/timeslots", s.handleMyTimeslots)
	s.mux.HandleFunc("PUT /api/events/{id}/timeslots", s.handleSaveTimeslots)
	s.mux.HandleFunc("GET /api/events/{id}/density", s.handleDensity)
	s.mux.HandleFunc("GET /api/events/{id}/available", s.handleAvailable)
	s.mux.HandleFunc("GET /api/events/{id}/grid", s.handleGrid)
	s.mux.HandleFunc("PUT /api/events/{id}/zone", s.handleUpdateZone)
	s.mux.HandleFunc("GET /api/events/{id}/participants", s.handleParticipants)
	s.mux.HandleFunc("DELETE /api/events/{id}/participants", s.handleRemoveParticipants)

	s.mux.HandleFunc("POST /api/events/{id}/import", s.handleImport)
	s.mux.HandleFunc("GET /api/events/{id}/calendar.ics", s.handleExport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// caller returns the participant id of the request, or "" after writing a
// 401.
func caller(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(participantHeader))
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing "+participantHeader+" header")
	}
	return id
}

// viewerZone is the zone tag a response should be laid out in.
func viewerZone(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("zone"))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", schedule.ErrInvalidInput, err)
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, schedule.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, schedule.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, context.Canceled):
		// The client is gone.
	default:
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
