// Package api serves customer health over HTTP and lets operators trigger runs.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"HealthSentinel/internal/contract"
	"HealthSentinel/internal/engine"
	"HealthSentinel/internal/history"
	"HealthSentinel/internal/model"
	"HealthSentinel/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Runner is the part of the engine the API drives.
type Runner interface {
	Run(ctx context.Context) (*model.RunReport, error)
	RunCustomers(ctx context.Context, ids []string) (*model.RunReport, error)
	Last() *model.RunReport
	Running() bool
}

// Server holds the HTTP handlers.
type Server struct {
	engine  Runner
	store   history.Store
	metrics *telemetry.Metrics
	logger  *zap.Logger
	// base outlives requests so async runs are not cancelled when the client disconnects.
	base context.Context
	now  func() time.Time
}

// NewServer creates a Server. base bounds asynchronous runs.
func NewServer(base context.Context, eng Runner, store history.Store, metrics *telemetry.Metrics, logger *zap.Logger) *Server {
	return &Server{engine: eng, store: store, metrics: metrics, logger: logger, base: base, now: time.Now}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": s.engine.Running()})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/customers/{id}", func(r chi.Router) {
			r.Get("/health", s.handleHealth)
			r.Get("/history", s.handleHistory)
			r.Get("/alerts", s.handleAlerts)
		})
		r.Get("/runs/last", s.handleLastRun)
		r.Get("/queue", s.handleQueue)
		r.Get("/portfolio", s.handlePortfolio)
		r.Post("/runs", s.handleTriggerRun)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	}()
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// handleHealth returns the customer's latest health report.
// GET /v1/customers/{id}/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.store.Latest(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "no health snapshot for customer "+id)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	res := model.CustomerResult{CustomerID: id, Status: model.CustomerOK, Segment: snap.Profile, Snapshot: snap}
	if last := s.engine.Last(); last != nil {
		if prev, ok := last.Result(id); ok {
			switch {
			case prev.Status != model.CustomerOK:
				// the last run could not score this customer
				res.Status = prev.Status
				res.Error = prev.Error
				res.Stale = true
			case prev.Snapshot != nil && prev.Snapshot.ID == snap.ID:
				res = *prev
			}
		}
	}
	hr, err := contract.FromResult(res)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hr)
}

// handleHistory returns snapshots oldest first.
// GET /v1/customers/{id}/history?since=RFC3339&limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	since, ok := parseSince(r, s.now(), 90*24*time.Hour)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC3339")
		return
	}
	snaps, err := s.store.History(r.Context(), id, since)
	if err != nil {
		s.internalError(w, err)
		return
	}
	limit := parseLimit(r, 100, 1000)
	if len(snaps) > limit {
		snaps = snaps[len(snaps)-limit:]
	}
	if snaps == nil {
		snaps = []model.HealthSnapshot{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"customer_id": id,
		"since":       since,
		"snapshots":   snaps,
	})
}

// handleAlerts returns alerts raised since the given time.
// GET /v1/customers/{id}/alerts?since=RFC3339
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	since, ok := parseSince(r, s.now(), 30*24*time.Hour)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC3339")
		return
	}
	alerts, err := s.store.RecentAlerts(r.Context(), id, since)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"customer_id": id,
		"since":       since,
		"alerts":      alerts,
	})
}

// GET /v1/runs/last
func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	rep := s.engine.Last()
	if rep == nil {
		s.writeError(w, http.StatusNotFound, "NO_RUN", "no run has completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

// handleQueue returns the last run's ranked alert queue.
// GET /v1/queue?limit=N
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	rep := s.engine.Last()
	if rep == nil {
		s.writeError(w, http.StatusNotFound, "NO_RUN", "no run has completed yet")
		return
	}
	queue := rep.Queue
	if limit := parseLimit(r, len(queue), len(queue)); limit < len(queue) {
		queue = queue[:limit]
	}
	if queue == nil {
		queue = []model.QueueItem{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": rep.ID,
		"queue":  queue,
	})
}

// GET /v1/portfolio
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	rep := s.engine.Last()
	if rep == nil || rep.Portfolio == nil {
		s.writeError(w, http.StatusNotFound, "NO_RUN", "no run has completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":    rep.ID,
		"portfolio": rep.Portfolio,
	})
}

type runRequest struct {
	CustomerIDs []string `json:"customer_ids"`
}

// handleTriggerRun starts a run. With ?wait=true it blocks and returns the report.
// POST /v1/runs
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if s.engine.Running() {
		s.writeError(w, http.StatusConflict, "RUN_IN_PROGRESS", engine.ErrRunInProgress.Error())
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		rep, err := s.run(r.Context(), req.CustomerIDs)
		switch {
		case errors.Is(err, engine.ErrRunInProgress):
			s.writeError(w, http.StatusConflict, "RUN_IN_PROGRESS", err.Error())
		case err != nil:
			s.writeError(w, http.StatusInternalServerError, "RUN_FAILED", err.Error())
		default:
			s.writeJSON(w, http.StatusOK, rep)
		}
		return
	}

	go func() {
		if _, err := s.run(s.base, req.CustomerIDs); err != nil {
			s.logger.Warn("triggered run failed", zap.Error(err))
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) run(ctx context.Context, ids []string) (*model.RunReport, error) {
	if len(ids) > 0 {
		return s.engine.RunCustomers(ctx, ids)
	}
	return s.engine.Run(ctx)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("internal error", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
