// Package api exposes the orchestrator's status over HTTP: health, the
// current dispatch state, persisted runs, and Prometheus metrics. The API
// is read-only; scans are started from the CLI or the scheduler.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/avolpe/scanflow/internal/dispatch"
	"github.com/avolpe/scanflow/internal/errors"
	"github.com/avolpe/scanflow/internal/logging"
	"github.com/avolpe/scanflow/internal/metrics"
	"github.com/avolpe/scanflow/internal/report"
	"github.com/avolpe/scanflow/internal/scheduler"
	"github.com/avolpe/scanflow/internal/store"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Server is the read-only status API.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	dispatcher *dispatch.Dispatcher
	runs       *store.Store
	sched      *scheduler.Scheduler
	metrics    *metrics.Metrics
	logger     *logging.Logger
	startTime  time.Time

	mu     sync.RWMutex
	latest *report.Report
}

// New creates a status API server listening on addr.
func New(addr string, dispatcher *dispatch.Dispatcher) (*Server, error) {
	if dispatcher == nil {
		return nil, errors.New(errors.CodeConfiguration, "status API requires a dispatcher")
	}

	s := &Server{
		router:     mux.NewRouter(),
		dispatcher: dispatcher,
		metrics:    metrics.Default(),
		logger:     logging.Default().WithComponent("api"),
		startTime:  time.Now(),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
	return s, nil
}

// SetRunStore enables the persisted-run endpoints.
func (s *Server) SetRunStore(runs *store.Store) {
	s.runs = runs
}

// SetScheduler surfaces schedule state on the status endpoint.
func (s *Server) SetScheduler(sched *scheduler.Scheduler) {
	s.sched = sched
}

// SetLatestReport records the most recently finished run for /runs/latest.
func (s *Server) SetLatestReport(r *report.Report) {
	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(next)
	})
	s.router.Use(s.requestLogging)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/latest", s.handleLatestRun).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// Start runs the server until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Status API listening", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return errors.Wrap(errors.CodeConfiguration, "status API failed", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	jobs := s.dispatcher.Jobs()

	status := map[string]any{
		"jobs_total":   len(jobs),
		"jobs_running": countJobs(jobs, dispatch.StateRunning),
		"jobs_done":    countJobs(jobs, dispatch.StateCompleted) + countJobs(jobs, dispatch.StateFailed),
	}
	if s.sched != nil {
		last, lastErr := s.sched.LastRun()
		status["scheduler"] = map[string]any{
			"in_flight": s.sched.InFlight(),
			"next_run":  s.sched.NextRun(),
			"last_run":  last,
			"last_error": func() string {
				if lastErr != nil {
					return lastErr.Error()
				}
				return ""
			}(),
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, "run persistence is not enabled")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil && latest.RunID == id {
		writeJSON(w, http.StatusOK, latest)
		return
	}

	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		writeError(w, http.StatusNotFound, "no run has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func countJobs(jobs []*dispatch.ScanJob, state dispatch.JobState) int {
	n := 0
	for _, job := range jobs {
		if job.State == state {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
