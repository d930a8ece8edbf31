package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ledger-lake/internal/api/middleware"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/export"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
	"github.com/dvloznov/ledger-lake/internal/reader"
	"github.com/dvloznov/ledger-lake/internal/runs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Columns names the raw columns holding date, partner and amount.
type Columns struct {
	Date    string
	Partner string
	Amount  string
}

// IngestHandler runs the ingestion pipeline on uploaded files.
type IngestHandler struct {
	store          runs.Store
	deps           pipeline.Deps
	defaults       Columns
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewIngestHandler creates a new ingest handler. Form fields override the
// default column names per request.
func NewIngestHandler(store runs.Store, deps pipeline.Deps, defaults Columns, maxUploadBytes int64, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		store:          store,
		deps:           deps,
		defaults:       defaults,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// Ingest handles POST /api/ingest
//
// The request is multipart/form-data with one or more "files" parts and the
// optional fields date_column, partner_column and amount_column.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "At least one file is required")
		return
	}

	mapping := domain.BuildMapping(
		formValue(r, "date_column", h.defaults.Date),
		formValue(r, "partner_column", h.defaults.Partner),
		formValue(r, "amount_column", h.defaults.Amount),
	)

	sources := make([]pipeline.Source, 0, len(files))
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		data, err := readPart(fh)
		if err != nil {
			sources = append(sources, pipeline.Source{Name: name, Err: err})
			continue
		}
		sources = append(sources, reader.Decode(name, data))
	}

	started := time.Now().UTC()
	state, runErr := pipeline.Ingest(ctx, mapping, sources, h.deps)
	run := runs.FromState(state, runErr, started, time.Now().UTC())

	if err := h.store.SaveRun(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to save run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save run")
		return
	}

	if runErr != nil {
		log.Error().Err(runErr).Str("run_id", run.ID).Msg("Ingestion run failed")
		middleware.WriteJSON(w, http.StatusInternalServerError, run)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, run)
}

func formValue(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return fallback
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("readPart: opening %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("readPart: reading %s: %w", fh.Filename, err)
	}
	return data, nil
}

// RunsHandler handles run-related endpoints.
type RunsHandler struct {
	store runs.Store
	log   zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(store runs.Store, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store: store,
		log:   log,
	}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := runs.Filter{
		Status: runs.Status(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	runList, err := h.store.ListRuns(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	if runList == nil {
		runList = []*runs.Run{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runList,
		"count": len(runList),
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, run)
}

// DownloadBronze handles GET /api/runs/{id}/bronze.csv
func (h *RunsHandler) DownloadBronze(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if run.Status != runs.StatusCompleted {
		middleware.WriteError(w, http.StatusConflict, "Run failed before producing Bronze")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBronzeCSV(&buf, run.Bronze); err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to render bronze CSV")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to render bronze CSV")
		return
	}
	writeCSV(w, run.ID+"-bronze.csv", buf.Bytes())
}

// DownloadSilver handles GET /api/runs/{id}/silver.csv
//
// Silver exists only for runs without violations; other runs get 409 with
// the violation messages.
func (h *RunsHandler) DownloadSilver(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !run.Valid() {
		middleware.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      "Silver not available: run has validation errors",
			"violations": pipeline.Messages(run.Violations),
		})
		return
	}

	var buf bytes.Buffer
	if err := export.WriteSilverCSV(&buf, run.Silver); err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to render silver CSV")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to render silver CSV")
		return
	}
	writeCSV(w, run.ID+"-silver.csv", buf.Bytes())
}

func (h *RunsHandler) lookup(w http.ResponseWriter, r *http.Request) (*runs.Run, bool) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Run ID is required")
		return nil, false
	}

	run, err := h.store.GetRun(r.Context(), runID)
	if errors.Is(err, runs.ErrRunNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return nil, false
	}
	return run, true
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// RouterConfig holds optional router extras.
type RouterConfig struct {
	// Middlewares run inside the router, so chi route patterns are visible.
	Middlewares []func(http.Handler) http.Handler

	// IngestMiddlewares wrap POST /api/ingest only, e.g. a rate limit.
	IngestMiddlewares []func(http.Handler) http.Handler

	// Metrics is served at GET /metrics when non-nil.
	Metrics http.Handler
}

// NewRouter registers every endpoint on a new chi router.
func NewRouter(ingest *IngestHandler, runsHandler *RunsHandler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(cfg.Middlewares...)

	r.Get("/health", Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.With(cfg.IngestMiddlewares...).Post("/ingest", ingest.Ingest)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", runsHandler.ListRuns)
			r.Get("/{id}", runsHandler.GetRun)
			r.Get("/{id}/bronze.csv", runsHandler.DownloadBronze)
			r.Get("/{id}/silver.csv", runsHandler.DownloadSilver)
		})
	})

	return r
}
