package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"

	"github.com/azybler/routeviz/pkg/routing"
	"github.com/azybler/routeviz/pkg/session"
	"github.com/azybler/routeviz/pkg/spatial"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 4096

var errEmptyBody = errors.New("empty body")

// Catalog lists what a client may select.
type Catalog struct {
	DefaultGraph  string
	Graphs        []string
	DefaultFinder routing.Kind
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	sessions *session.Manager
	catalog  Catalog
	log      *slog.Logger
}

// NewHandlers creates handlers serving sessions from m.
func NewHandlers(m *session.Manager, catalog Catalog, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		sessions: m,
		catalog:  catalog,
		log:      logger,
	}
}

// HandleCreateSession handles POST /api/v1/sessions.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	s, err := h.sessions.Create(req.Query)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	h.log.Info("session created", "session", s.ID(), "query", req.Query)
	writeJSON(w, http.StatusCreated, SessionResponse{Session: s.View()})
}

// HandleGetSession handles GET /api/v1/sessions/{id}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: s.View()})
}

// HandleDeleteSession handles DELETE /api/v1/sessions/{id}.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.PathValue("id")); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClick handles POST /api/v1/sessions/{id}/click.
func (h *Handlers) HandleClick(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if !finite(req.X) {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "x")
		return
	}
	if !finite(req.Y) {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "y")
		return
	}

	h.update(w, r, func(s *session.Session) (session.View, error) {
		return s.HandleClick(r.Context(), *req.X, *req.Y)
	})
}

// HandleSetQuery handles PUT /api/v1/sessions/{id}/query.
func (h *Handlers) HandleSetQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	h.update(w, r, func(s *session.Session) (session.View, error) {
		return s.ApplyQuery(r.Context(), req.Query)
	})
}

// HandleSetFinder handles PUT /api/v1/sessions/{id}/finder.
func (h *Handlers) HandleSetFinder(w http.ResponseWriter, r *http.Request) {
	var req FinderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	h.update(w, r, func(s *session.Session) (session.View, error) {
		return s.SelectAlgorithm(r.Context(), req.Finder)
	})
}

// HandleSetGraph handles PUT /api/v1/sessions/{id}/graph.
func (h *Handlers) HandleSetGraph(w http.ResponseWriter, r *http.Request) {
	var req GraphRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Graph == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "graph")
		return
	}
	h.update(w, r, func(s *session.Session) (session.View, error) {
		return s.SelectGraph(req.Graph)
	})
}

// HandleClearRoute handles DELETE /api/v1/sessions/{id}/route.
func (h *Handlers) HandleClearRoute(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *session.Session) (session.View, error) {
		return s.ClearRoute(), nil
	})
}

// HandleGraphs handles GET /api/v1/graphs.
func (h *Handlers) HandleGraphs(w http.ResponseWriter, r *http.Request) {
	graphs := h.catalog.Graphs
	if graphs == nil {
		graphs = []string{}
	}
	writeJSON(w, http.StatusOK, GraphsResponse{Default: h.catalog.DefaultGraph, Graphs: graphs})
}

// HandleFinders handles GET /api/v1/finders.
func (h *Handlers) HandleFinders(w http.ResponseWriter, r *http.Request) {
	resp := FindersResponse{Default: string(h.catalog.DefaultFinder)}
	for _, k := range routing.Kinds() {
		resp.Finders = append(resp.Finders, FinderJSON{Key: string(k), Optimal: k.Optimal()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: h.sessions.Len()})
}

// update looks up the session named in the path, applies fn and writes the
// resulting view.
func (h *Handlers) update(w http.ResponseWriter, r *http.Request, fn func(*session.Session) (session.View, error)) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	view, err := fn(s)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: view})
}

// writeSessionError maps session, spatial and routing errors to responses.
func (h *Handlers) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, "session_not_found", "")
	case errors.Is(err, session.ErrTooManySessions):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "too_many_sessions", "")
	case errors.Is(err, session.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid_query", "query")
	case errors.Is(err, routing.ErrUnknownAlgorithm):
		writeError(w, http.StatusBadRequest, "unknown_algorithm", "finder")
	case errors.Is(err, session.ErrUnknownGraph):
		writeError(w, http.StatusBadRequest, "unknown_graph", "graph")
	case errors.Is(err, spatial.ErrIndexNotReady):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "index_not_ready", "")
	case errors.Is(err, spatial.ErrNoNodesInGraph):
		writeError(w, http.StatusUnprocessableEntity, "no_nodes_in_graph", "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// decodeJSON reads a bounded JSON body. A missing body yields errEmptyBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return errEmptyBody
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return errors.New("content type must be application/json")
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
