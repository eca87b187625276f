// ABOUTME: HTTP surface for the workflow engine behind a single chi router.
// ABOUTME: Dispatch, status, and listing endpoints plus health and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillworks/scrivener/dispatch"
	"github.com/quillworks/scrivener/workflow"
	"github.com/quillworks/scrivener/workflow/store"
)

// maxRequestBody caps dispatch request bodies.
const maxRequestBody = 1 << 20

// Server serves the workflow HTTP API.
type Server struct {
	dispatcher  *dispatch.Dispatcher
	registry    *store.Store
	router      chi.Router
	logger      *slog.Logger
	maxPageSize int
}

// ServerConfig holds the server's collaborators.
type ServerConfig struct {
	Dispatcher  *dispatch.Dispatcher
	Registry    *store.Store
	Logger      *slog.Logger
	Gatherer    prometheus.Gatherer // nil disables /metrics
	MaxPageSize int
}

// NewServer creates the server and sets up routing.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPage := cfg.MaxPageSize
	if maxPage <= 0 {
		maxPage = 100
	}
	s := &Server{
		dispatcher:  cfg.Dispatcher,
		registry:    cfg.Registry,
		logger:      logger,
		maxPageSize: maxPage,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Post("/workflows/{type}/run", s.handleRun)
	r.Get("/workflows/{id}", s.handleGet)
	r.Get("/workflows", s.handleList)
	r.Get("/healthz", s.handleHealth)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
	return s
}

// Handler returns the root http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

// handleRun dispatches a workflow run request.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	wfType := chi.URLParam(r, "type")

	var req dispatch.Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	res, err := s.dispatcher.Run(r.Context(), wfType, req)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, workflow.ErrUnknownWorkflowType):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("dispatch failed", "request_id", RequestID(r.Context()), "type", wfType, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	// A sync run that ended FAILED is still a created resource; the outcome
	// lives in the body, not the status code.
	writeJSON(w, http.StatusCreated, res)
}

// handleGet returns one workflow record.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("workflow %s not found", id))
			return
		}
		s.logger.Error("get workflow failed", "request_id", RequestID(r.Context()), "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, recordView(rec))
}

// listResponse is the paginated listing envelope.
type listResponse struct {
	Workflows  []recordJSON `json:"workflows"`
	TotalCount int          `json:"total_count"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
}

// handleList returns a filtered, paginated workflow listing.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status workflow.Status
	if raw := q.Get("status"); raw != "" {
		status = workflow.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", raw))
			return
		}
	}

	limit := 20
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		if n > s.maxPageSize {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit %d exceeds maximum %d", n, s.maxPageSize))
			return
		}
		limit = n
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid offset %q", raw))
			return
		}
		offset = n
	}

	records, total, err := s.registry.List(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list workflows failed", "request_id", RequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]recordJSON, len(records))
	for i, rec := range records {
		views[i] = recordView(rec)
	}
	writeJSON(w, http.StatusOK, listResponse{
		Workflows:  views,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListenAndServe runs the server until the context is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
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

// recordJSON is the wire shape of a workflow record. Timestamps are RFC3339
// in UTC; absent ones are null.
type recordJSON struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Prompts         []string       `json:"prompts"`
	Strategy        string         `json:"strategy"`
	Status          string         `json:"status"`
	StartedAt       *string        `json:"started_at"`
	CompletedAt     *string        `json:"completed_at"`
	BranchName      string         `json:"branch_name"`
	ErrorMessage    string         `json:"error_message"`
	AsyncTaskID     string         `json:"async_task_id"`
	ProgressMessage string         `json:"progress_message,omitempty"`
	ProgressPercent int            `json:"progress_percent"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

func recordView(rec *workflow.Record) recordJSON {
	return recordJSON{
		ID:              rec.ID,
		Type:            rec.Type,
		Prompts:         rec.Prompts,
		Strategy:        rec.Strategy,
		Status:          string(rec.Status),
		StartedAt:       timePtr(rec.StartedAt),
		CompletedAt:     timePtr(rec.CompletedAt),
		BranchName:      rec.BranchName,
		ErrorMessage:    rec.ErrorMessage,
		AsyncTaskID:     rec.AsyncTaskID,
		ProgressMessage: rec.ProgressMessage,
		ProgressPercent: rec.ProgressPercent,
		Metadata:        rec.Metadata,
		CreatedAt:       rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing recoverable remains.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
