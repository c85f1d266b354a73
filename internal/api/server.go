// Package api exposes the pipeline over HTTP: metrics snapshots, alert
// lifecycle operations, rule evaluation, and direct message ingestion.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/terraferm/fieldops/internal/alerts"
	"github.com/terraferm/fieldops/internal/gateway"
	"github.com/terraferm/fieldops/internal/metrics"
	"github.com/terraferm/fieldops/internal/store"
)

// AlertStore is the slice of the data store the alert routes need.
type AlertStore interface {
	ListAlerts(ctx context.Context, status string) ([]store.Alert, error)
	AcknowledgeAlert(ctx context.Context, id uuid.UUID) (bool, error)
	ResolveAlert(ctx context.Context, id uuid.UUID) (bool, error)
	ResolvePlot(ctx context.Context, code string) (uuid.UUID, bool, error)
}

// Snapshotter computes metrics for a date range.
type Snapshotter interface {
	Snapshot(ctx context.Context, start, end time.Time, plotID *uuid.UUID) (*metrics.Snapshot, error)
}

// Evaluator runs the metric alert rules on demand.
type Evaluator interface {
	Evaluate(ctx context.Context) ([]alerts.RuleAlert, error)
}

// Ingestor runs the message pipeline for reports submitted over HTTP.
type Ingestor interface {
	Ingest(ctx context.Context, evt gateway.InboundMessage) (string, error)
}

type Server struct {
	router    *chi.Mux
	port      int
	apiToken  string
	store     AlertStore
	metrics   Snapshotter
	evaluator Evaluator
	ingestor  Ingestor
	cache     *SnapshotCache // optional
	logger    *slog.Logger
}

func NewServer(port int, apiToken string, st AlertStore, m Snapshotter, ev Evaluator, ing Ingestor, cache *SnapshotCache, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		apiToken:  apiToken,
		store:     st,
		metrics:   m,
		evaluator: ev,
		ingestor:  ing,
		cache:     cache,
		logger:    logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/status", s.status)
	router.Get("/api/v1/metrics", s.getMetrics)
	router.Get("/api/v1/alerts", s.listAlerts)

	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/api/v1/alerts/evaluate", s.evaluateAlerts)
		r.Post("/api/v1/alerts/{id}/acknowledge", s.acknowledgeAlert)
		r.Post("/api/v1/alerts/{id}/resolve", s.resolveAlert)
		r.Post("/api/v1/messages", s.ingestMessage)
	})

	return s
}

// Start blocks serving HTTP until the context is cancelled, then drains
// in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry the configured token. An empty token disables auth, for local runs.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				if got != token {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "fieldops",
		"status":  "running",
	})
}

// getMetrics handles GET /api/v1/metrics?start_date=&end_date=&plot_id=.
// The range defaults to the last 30 days.
func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	q := r.URL.Query()
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
			return
		}
		start = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
			return
		}
		end = t
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date before start_date")
		return
	}

	var plotID *uuid.UUID
	if code := q.Get("plot_id"); code != "" {
		id, found, err := s.store.ResolvePlot(r.Context(), normalizePlotParam(code))
		if err != nil {
			s.logger.Error("plot lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "plot lookup failed")
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "unknown plot")
			return
		}
		plotID = &id
	}

	if s.cache != nil {
		if snap, ok := s.cache.Get(r.Context(), start, end, plotID); ok {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	snap, err := s.metrics.Snapshot(r.Context(), start, end, plotID)
	if err != nil {
		s.logger.Error("metrics snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "metrics computation failed")
		return
	}

	if s.cache != nil {
		s.cache.Put(r.Context(), start, end, plotID, snap)
	}
	writeJSON(w, http.StatusOK, snap)
}

// listAlerts handles GET /api/v1/alerts?status=.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.AlertActive, store.AlertAcknowledged, store.AlertResolved:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	list, err := s.store.ListAlerts(r.Context(), status)
	if err != nil {
		s.logger.Error("alert list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "alert list failed")
		return
	}
	if list == nil {
		list = []store.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": toAlertViews(list),
		"count":  len(list),
	})
}

// evaluateAlerts handles POST /api/v1/alerts/evaluate.
func (s *Server) evaluateAlerts(w http.ResponseWriter, r *http.Request) {
	raised, err := s.evaluator.Evaluate(r.Context())
	if err != nil {
		s.logger.Error("rule evaluation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rule evaluation failed")
		return
	}
	if raised == nil {
		raised = []alerts.RuleAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raised": raised,
		"count":  len(raised),
	})
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	s.transitionAlert(w, r, s.store.AcknowledgeAlert, store.AlertAcknowledged)
}

func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	s.transitionAlert(w, r, s.store.ResolveAlert, store.AlertResolved)
}

// transitionAlert applies a forward-only lifecycle move. A transition the
// current state does not allow reports 409 rather than silently succeeding.
func (s *Server) transitionAlert(w http.ResponseWriter, r *http.Request, move func(context.Context, uuid.UUID) (bool, error), target string) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	ok, err := move(r.Context(), id)
	if err != nil {
		s.logger.Error("alert transition failed", "alert_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "alert transition failed")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "alert not found or not in a transitionable state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": target,
	})
}

// ingestMessage handles POST /api/v1/messages: the same pipeline the gateway
// feeds, for manual submission and backfill.
func (s *Server) ingestMessage(w http.ResponseWriter, r *http.Request) {
	var evt gateway.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if evt.MessageID == "" {
		evt.MessageID = "api-" + uuid.NewString()
	}
	if evt.From == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}

	ack, err := s.ingestor.Ingest(r.Context(), evt)
	if err != nil {
		s.logger.Error("message ingest failed", "message_id", evt.MessageID, "error", err)
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message_id": evt.MessageID,
		"ack":        ack,
	})
}

func normalizePlotParam(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
