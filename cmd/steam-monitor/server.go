package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/steam-monitor/pkg/logging"
	"github.com/Sternrassler/steam-monitor/pkg/metrics"
	"github.com/Sternrassler/steam-monitor/pkg/notify"
	"github.com/Sternrassler/steam-monitor/pkg/refresh"
	"github.com/Sternrassler/steam-monitor/pkg/steamapi"
	"github.com/Sternrassler/steam-monitor/pkg/tracker"
)

// maxBodyBytes bounds request bodies; an import list is the largest.
const maxBodyBytes = 1 << 20

// server exposes the orchestrator over HTTP.
type server struct {
	orchestrator *refresh.Orchestrator
	set          *tracker.Set
	dispatcher   *notify.Dispatcher
	logger       zerolog.Logger

	// ctx outlives requests; background sessions run under it.
	ctx context.Context
}

func newServer(ctx context.Context, a *app) *server {
	return &server{
		orchestrator: a.orchestrator,
		set:          a.set,
		dispatcher:   a.dispatcher,
		logger:       logging.NewLogger("api"),
		ctx:          ctx,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/games", s.listGames)
		r.Post("/games", s.addGame)
		r.Delete("/games/{id}", s.removeGame)
		r.Post("/games/{id}/refresh", s.refreshGame)

		r.Post("/refresh", s.refreshAll)
		r.Get("/refresh/progress", s.progress)
		r.Get("/refresh/summary", s.summary)

		r.Post("/import", s.importGames)
		r.Post("/notify/test", s.testNotification)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type acceptedResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

func (s *server) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func (s *server) respondError(w http.ResponseWriter, err error) {
	s.respondJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, refresh.ErrBusy), errors.Is(err, refresh.ErrAlreadyTracked):
		return http.StatusConflict
	case errors.Is(err, refresh.ErrNotTracked):
		return http.StatusNotFound
	case errors.Is(err, steamapi.ErrInvalidIdentifier):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tracker.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"apps":   s.set.Len(),
		"busy":   s.orchestrator.Busy(),
	})
}

func (s *server) listGames(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.set.List())
}

type addRequest struct {
	ID string `json:"id"`
}

func (s *server) addGame(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeBody(r, &req); err != nil || req.ID == "" {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"id\": \"<app id>\"}"})
		return
	}

	e, err := s.orchestrator.Add(r.Context(), req.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, e)
}

func (s *server) removeGame(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) refreshGame(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.StartRefreshOne(s.ctx, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, acceptedResponse{Status: "started", Mode: string(refresh.ModeSingle)})
}

func (s *server) refreshAll(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.StartRefreshAll(s.ctx, refresh.ModeRefresh); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, acceptedResponse{Status: "started", Mode: string(refresh.ModeRefresh)})
}

func (s *server) progress(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.orchestrator.Progress())
}

func (s *server) summary(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.orchestrator.Summary()
	if !ok {
		s.respondJSON(w, http.StatusNotFound, errorResponse{Error: "no refresh session has finished yet"})
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

// importRequest carries ids as a list, as free text, or both.
type importRequest struct {
	IDs  []string `json:"ids"`
	Text string   `json:"text"`
}

func (s *server) importGames(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	ids := append(req.IDs, refresh.ParseIDs(req.Text)...)
	if len(ids) == 0 {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "no app ids given"})
		return
	}

	if err := s.orchestrator.StartImport(s.ctx, ids); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, acceptedResponse{Status: "started", Mode: string(refresh.ModeImport)})
}

func (s *server) testNotification(w http.ResponseWriter, r *http.Request) {
	s.dispatcher.Dispatch(notify.Notification{
		Title: "Steam Monitor",
		Body:  "Test notification at " + time.Now().UTC().Format("15:04:05 MST"),
	})
	s.respondJSON(w, http.StatusAccepted, acceptedResponse{Status: "sent", Mode: "test"})
}
