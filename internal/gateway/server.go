// Package gateway exposes agent runs over HTTP and a websocket event stream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/taskpilot/internal/agent"
	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
	"github.com/dohr-michael/taskpilot/internal/gateway/ws"
	"github.com/dohr-michael/taskpilot/internal/runner"
	"github.com/dohr-michael/taskpilot/internal/scheduler"
	"github.com/dohr-michael/taskpilot/internal/sessions"
	"github.com/dohr-michael/taskpilot/internal/storage"
)

// MemoryClearer wipes durable memory. memory.Store implements it.
type MemoryClearer interface {
	ClearAll(ctx context.Context) error
}

// Archive reads finished runs. *sessions.Store implements it.
type Archive interface {
	List() ([]sessions.Record, error)
	Get(id string) (*runner.Report, error)
}

// Schedules reports configured schedules. *scheduler.Scheduler implements it.
type Schedules interface {
	Entries() []scheduler.Status
}

// Server is the taskpilot gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	runner     ws.Runner
	memory     MemoryClearer
	archive    Archive
	schedules  Schedules
	eventDir   string
}

// NewServer creates a new gateway server. eventDir is where the event logger
// writes session logs; memory and archive may be nil.
func NewServer(bus *events.Bus, r ws.Runner, mem MemoryClearer, archive Archive, eventDir, host string, port int) *Server {
	hub := ws.NewHub(bus, r)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.RealIP)

	s := &Server{
		hub:      hub,
		bus:      bus,
		runner:   r,
		memory:   mem,
		archive:  archive,
		eventDir: eventDir,
	}

	router.Get("/api/health", s.handleHealth)
	router.Post("/api/run", s.handleRun)
	router.Post("/api/memory/clear", s.handleClearMemory)
	router.Get("/api/events", s.handleEvents)
	router.Get("/api/events/{session}", s.handleSessionEvents)
	router.Get("/api/sessions", s.handleSessions)
	router.Get("/api/sessions/{session}", s.handleSession)
	router.Get("/api/schedules", s.handleSchedules)
	router.Get("/api/ws", hub.ServeWS)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// SetSchedules exposes l on /api/schedules. Call it before Start.
func (s *Server) SetSchedules(l Schedules) { s.schedules = l }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("taskpilot gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error *agent.OutcomeError `json:"error"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var params runner.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{&agent.OutcomeError{
			Kind:    string(faults.Parse),
			Message: fmt.Sprintf("invalid request body: %v", err),
		}})
		return
	}

	report, err := s.runner.Run(r.Context(), params.Request())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case report != nil:
		// Aborted run: the partial outcome already carries the error.
		writeJSON(w, statusFor(err), report)
	default:
		writeJSON(w, statusFor(err), errorBody{&agent.OutcomeError{Kind: kindOf(err), Message: err.Error()}})
	}
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		http.Error(w, "memory not available", http.StatusServiceUnavailable)
		return
	}
	if err := s.memory.ClearAll(r.Context()); err != nil {
		slog.Error("clear memory", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, formatEvents(s.bus.History(limit)))
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	list, err := storage.ReadSession(s.eventDir, chi.URLParam(r, "session"))
	if errors.Is(err, storage.ErrInvalidSessionID) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, formatEvents(list))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "session archive not available", http.StatusServiceUnavailable)
		return
	}
	list, err := s.archive.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []sessions.Record{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "session archive not available", http.StatusServiceUnavailable)
		return
	}
	report, err := s.archive.Get(chi.URLParam(r, "session"))
	switch {
	case errors.Is(err, sessions.ErrInvalidID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, sessions.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	list := []scheduler.Status{}
	if s.schedules != nil {
		list = s.schedules.Entries()
	}
	writeJSON(w, http.StatusOK, list)
}

type eventJSON struct {
	ID        string             `json:"id"`
	SessionID string             `json:"session_id,omitempty"`
	Type      string             `json:"type"`
	Timestamp string             `json:"timestamp"`
	Source    events.EventSource `json:"source"`
	Payload   map[string]any     `json:"payload"`
}

func formatEvents(list []events.Event) []eventJSON {
	result := make([]eventJSON, len(list))
	for i, e := range list {
		result[i] = eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}
	return result
}

// statusFor maps a fault kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case faults.Is(err, faults.Config):
		return http.StatusBadRequest
	case faults.Is(err, faults.Collaborator):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	if k := faults.KindOf(err); k != "" {
		return string(k)
	}
	return "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}
