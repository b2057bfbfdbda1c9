// Package httpapi exposes the client runtime over a local HTTP surface: the
// UI drives the session state machine through these routes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ngabriel/parley/internal/archive"
	"github.com/ngabriel/parley/internal/catalog"
	"github.com/ngabriel/parley/internal/config"
	"github.com/ngabriel/parley/internal/controller"
	"github.com/ngabriel/parley/internal/fault"
	"github.com/ngabriel/parley/internal/observability"
	"github.com/ngabriel/parley/internal/session"
)

type Server struct {
	cfg        config.Config
	controller *controller.Controller
	store      *session.Store
	catalog    *catalog.Catalog
	archive    archive.Store
	metrics    *observability.Metrics
}

func New(
	cfg config.Config,
	ctrl *controller.Controller,
	store *session.Store,
	cat *catalog.Catalog,
	arch archive.Store,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:        cfg,
		controller: ctrl,
		store:      store,
		catalog:    cat,
		archive:    arch,
		metrics:    metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/catalog", s.handleCatalog)
	r.Get("/v1/catalog/books", s.handleBooks)
	r.Get("/v1/catalog/profiles", s.handleProfiles)

	r.Post("/v1/roleplay/session", s.handleStartSession)
	r.Get("/v1/roleplay/session", s.handleSessionState)
	r.Post("/v1/roleplay/session/record/start", s.handleRecordStart)
	r.Post("/v1/roleplay/session/record/stop", s.handleRecordStop)
	r.Post("/v1/roleplay/session/end", s.handleEndSession)
	r.Post("/v1/roleplay/session/reset", s.handleResetSession)
	r.Post("/v1/roleplay/feedback", s.handleFeedback)
	r.Get("/v1/roleplay/feedback/{sessionID}", s.handleArchivedFeedback)
	r.Get("/v1/roleplay/history", s.handleHistory)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"backend": s.cfg.BackendBaseURL,
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog)
}

func (s *Server) handleBooks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"books": s.catalog.Books})
}

func (s *Server) handleProfiles(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"profiles": s.catalog.Profiles})
}

type startSessionRequest struct {
	Book    string `json:"book"`
	Chapter string `json:"chapter"`
	Profile string `json:"profile"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	book, ok := s.catalog.FindBook(req.Book)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown_book", "book not in catalog: "+req.Book)
		return
	}
	chapter, ok := book.FindChapter(req.Chapter)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown_chapter", "chapter not in book: "+req.Chapter)
		return
	}
	profile, ok := s.catalog.FindProfile(req.Profile)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown_profile", "profile not in catalog: "+req.Profile)
		return
	}

	sel := session.Selection{Book: book.ID, Chapter: chapter.ID, Profile: profile.ID}
	if err := s.controller.Start(r.Context(), sel); err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s.stateView())
}

func (s *Server) handleSessionState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.stateView())
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StartRecording(r.Context()); err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.stateView())
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StopRecording(r.Context()); err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.stateView())
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.End(r.Context()); err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.stateView())
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	s.controller.Reset(r.Context())
	respondJSON(w, http.StatusOK, s.stateView())
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := s.controller.Feedback(r.Context())
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fb)
}

func (s *Server) handleArchivedFeedback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	record, ok, err := s.archive.FeedbackFor(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive_error", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "feedback_not_found", "no archived feedback for session "+sessionID)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := s.archive.RecentSessions(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive_error", err.Error())
		return
	}
	if records == nil {
		records = []archive.SessionRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}

type stateView struct {
	State   controller.State `json:"state"`
	Session session.Session  `json:"session"`
}

func (s *Server) stateView() stateView {
	return stateView{
		State:   s.controller.State(),
		Session: s.store.Snapshot(),
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFault maps the client error taxonomy onto HTTP statuses.
func respondFault(w http.ResponseWriter, err error) {
	kind, ok := fault.KindOf(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case fault.KindInvalidState, fault.KindDeviceBusy, fault.KindNoActiveRecording:
		status = http.StatusConflict
	case fault.KindPermissionDenied:
		status = http.StatusForbidden
	case fault.KindNetworkUnavailable, fault.KindServerError:
		status = http.StatusBadGateway
	case fault.KindPlaybackFailed:
		status = http.StatusInternalServerError
	}

	respondJSON(w, status, errorResponse{
		Error:     err.Error(),
		Code:      string(kind),
		Retryable: fault.IsRetryable(err),
	})
}
