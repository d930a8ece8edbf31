package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/ledger-lake/internal/api/handlers"
	"github.com/dvloznov/ledger-lake/internal/api/middleware"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
	"github.com/dvloznov/ledger-lake/internal/runs"
	"github.com/dvloznov/ledger-lake/internal/runs/inmemory"
)

type upload struct {
	name    string
	content string
}

type testServer struct {
	store   *inmemory.Store
	handler http.Handler
}

func newTestServer(t *testing.T, deps pipeline.Deps) *testServer {
	t.Helper()

	log := logger.NewWithWriter(io.Discard)
	store := inmemory.NewStore()
	if deps.Tagger.Now == nil {
		deps.Tagger = pipeline.Tagger{Now: func() time.Time { return time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC) }}
	}

	router := handlers.NewRouter(
		handlers.NewIngestHandler(store, deps, handlers.Columns{Date: "date", Partner: "partner", Amount: "amount"}, 1<<20, log),
		handlers.NewRunsHandler(store, log),
		handlers.RouterConfig{},
	)
	return &testServer{
		store:   store,
		handler: middleware.Chain(router, middleware.RequestID, middleware.Logger(log)),
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func ingestRequest(t *testing.T, fields map[string]string, files ...upload) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s) error = %v", k, err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("CreateFormFile(%s) error = %v", f.name, err)
		}
		io.WriteString(part, f.content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) runs.Run {
	t.Helper()
	var run runs.Run
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("decoding run: %v (body %q)", err, rec.Body.String())
	}
	return run
}

func TestIngest_CreatesRunAndServesSilver(t *testing.T) {
	srv := newTestServer(t, pipeline.Deps{})

	rec := srv.do(ingestRequest(t, nil,
		upload{name: "a.csv", content: "date,partner,amount\n01/03/2024,X,\"1.000,00\"\n"},
		upload{name: "b.csv", content: "date;partner;amount\n15/03/2024;X;500\n"},
	))
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/ingest status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	run := decodeRun(t, rec)
	if run.Status != runs.StatusCompleted {
		t.Errorf("Status = %q, want %q", run.Status, runs.StatusCompleted)
	}
	if len(run.Violations) != 0 {
		t.Errorf("Violations = %v, want none", pipeline.Messages(run.Violations))
	}
	if run.Summary.BronzeRows != 2 {
		t.Errorf("Summary.BronzeRows = %d, want 2", run.Summary.BronzeRows)
	}

	silver := srv.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/silver.csv", nil))
	if silver.Code != http.StatusOK {
		t.Fatalf("GET silver.csv status = %d, want 200", silver.Code)
	}
	if got, want := silver.Body.String(), "partner,month,amount\nX,2024-03-01,1500\n"; got != want {
		t.Errorf("silver.csv = %q, want %q", got, want)
	}
	if ct := silver.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}

	bronze := srv.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/bronze.csv", nil))
	if bronze.Code != http.StatusOK {
		t.Fatalf("GET bronze.csv status = %d, want 200", bronze.Code)
	}
	lines := strings.Split(strings.TrimSpace(bronze.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("bronze.csv has %d lines, want 3: %q", len(lines), bronze.Body.String())
	}
	if lines[0] != "date,partner,amount,source_file,ingested_at" {
		t.Errorf("bronze header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2024-03-01,X,1000,a.csv,") {
		t.Errorf("first bronze row = %q", lines[1])
	}
}

func TestIngest_FormFieldsOverrideMapping(t *testing.T) {
	srv := newTestServer(t, pipeline.Deps{})

	rec := srv.do(ingestRequest(t,
		map[string]string{"date_column": "Datum", "partner_column": "Firma", "amount_column": "Betrag"},
		upload{name: "de.csv", content: "Datum;Firma;Betrag\n2024-02-05;ACME GmbH;12,50\n"},
	))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	run := decodeRun(t, rec)
	if len(run.MonthlyTotals) != 1 || run.MonthlyTotals[0].Amount != 12.5 {
		t.Errorf("MonthlyTotals = %+v, want one month of 12.5", run.MonthlyTotals)
	}
}

func TestIngest_ViolationsBlockSilverDownload(t *testing.T) {
	srv := newTestServer(t, pipeline.Deps{})

	rec := srv.do(ingestRequest(t, nil,
		upload{name: "neg.csv", content: "date,partner,amount\n2024-01-01,X,-5\n"},
	))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	run := decodeRun(t, rec)
	if len(run.Violations) == 0 {
		t.Fatal("expected a negative amount violation")
	}

	silver := srv.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/silver.csv", nil))
	if silver.Code != http.StatusConflict {
		t.Errorf("GET silver.csv status = %d, want %d", silver.Code, http.StatusConflict)
	}
	if !strings.Contains(silver.Body.String(), "negative") {
		t.Errorf("409 body = %q, want the violation message", silver.Body.String())
	}

	bronze := srv.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/bronze.csv", nil))
	if bronze.Code != http.StatusOK {
		t.Errorf("GET bronze.csv status = %d, want 200", bronze.Code)
	}
}

func TestIngest_UnreadableFileIsReported(t *testing.T) {
	srv := newTestServer(t, pipeline.Deps{})

	rec := srv.do(ingestRequest(t, nil,
		upload{name: "ok.csv", content: "date,partner,amount\n2024-01-01,X,5\n"},
		upload{name: "notes.pdf", content: "%PDF-1.4"},
	))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	run := decodeRun(t, rec)
	if len(run.SourceErrors) != 1 || run.SourceErrors[0].Source != "notes.pdf" {
		t.Errorf("SourceErrors = %+v, want one for notes.pdf", run.SourceErrors)
	}
	if run.Summary.BronzeRows != 1 {
		t.Errorf("Summary.BronzeRows = %d, want 1", run.Summary.BronzeRows)
	}
}

func TestIngest_BadRequests(t *testing.T) {
	srv := newTestServer(t, pipeline.Deps{})

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{
			name: "no files",
			req:  ingestRequest(t, map[string]string{"date_column": "d"}),
			want: http.StatusBadRequest,
		},
		{
			name: "not multipart",
			req:  httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader("{}")),
			want: http.StatusBadRequest,
		},
		{
			name: "wrong method",
			req:  httptest.NewRequest(http.MethodGet, "/api/ingest", nil),
			want: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := srv.do(tt.req); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestIngest_TooLarge(t *testing.T) {
	log := logger.NewWithWriter(io.Discard)
	store := inmemory.NewStore()
	router := handlers.NewRouter(
		handlers.NewIngestHandler(store, pipeline.Deps{}, handlers.Columns{}, 64, log),
		handlers.NewRunsHandler(store, log),
		handlers.RouterConfig{},
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, ingestRequest(t, nil, upload{name: "big.csv", content: strings.Repeat("x", 1024)}))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

type failingRecorder struct{}

func (failingRecorder) StartRun(ctx context.Context, runID string, sources []string) error {
	return errors.New("warehouse unavailable")
}
func (failingRecorder) MarkRunFailed(ctx context.Context, runID string, err error) {}
func (failingRecorder) MarkRunSucceeded(ctx context.Context, runID string, stats pipeline.RunStats) error {
	return nil
}

func TestIngest_RunFailureIsStored(t *testing.T) {
	srv := newTestServer(t, pipeline.Deps{Recorder: failingRecorder{}})

	rec := srv.do(ingestRequest(t, nil, upload{name: "a.csv", content: "date,partner,amount\n2024-01-01,X,5\n"}))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	run := decodeRun(t, rec)
	if run.Status != runs.StatusFailed || !strings.Contains(run.Error, "warehouse unavailable") {
		t.Errorf("run = %+v, want failed with the recorder error", run)
	}

	stored, err := srv.store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if stored.Status != runs.StatusFailed {
		t.Errorf("stored status = %q, want %q", stored.Status, runs.StatusFailed)
	}

	bronze := srv.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/bronze.csv", nil))
	if bronze.Code != http.StatusConflict {
		t.Errorf("GET bronze.csv status = %d, want %d", bronze.Code, http.StatusConflict)
	}
}

func TestRuns_ListAndGet(t *testing.T) {
	srv := newTestServer(t, pipeline.Deps{})
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		status := runs.StatusCompleted
		if id == "run-2" {
			status = runs.StatusFailed
		}
		if err := srv.store.SaveRun(ctx, &runs.Run{ID: id, Status: status, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{name: "all newest first", query: "", wantIDs: []string{"run-3", "run-2", "run-1"}},
		{name: "by status", query: "?status=completed", wantIDs: []string{"run-3", "run-1"}},
		{name: "paged", query: "?limit=1&offset=1", wantIDs: []string{"run-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(httptest.NewRequest(http.MethodGet, "/api/runs"+tt.query, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body struct {
				Runs  []runs.Run `json:"runs"`
				Count int        `json:"count"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Count != len(tt.wantIDs) {
				t.Fatalf("count = %d, want %d", body.Count, len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if body.Runs[i].ID != id {
					t.Errorf("runs[%d].ID = %q, want %q", i, body.Runs[i].ID, id)
				}
			}
		})
	}

	t.Run("get known", func(t *testing.T) {
		rec := srv.do(httptest.NewRequest(http.MethodGet, "/api/runs/run-2", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if run := decodeRun(t, rec); run.Status != runs.StatusFailed {
			t.Errorf("Status = %q, want failed", run.Status)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		for _, path := range []string{"/api/runs/nope", "/api/runs/nope/bronze.csv", "/api/runs/nope/silver.csv"} {
			if rec := srv.do(httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusNotFound {
				t.Errorf("GET %s status = %d, want 404", path, rec.Code)
			}
		}
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, pipeline.Deps{})

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %q, want healthy status", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestRouter_MetricsAndIngestMiddleware(t *testing.T) {
	log := logger.NewWithWriter(io.Discard)
	store := inmemory.NewStore()

	var ingestCalls, routerCalls int
	count := func(n *int) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				*n++
				next.ServeHTTP(w, r)
			})
		}
	}

	router := handlers.NewRouter(
		handlers.NewIngestHandler(store, pipeline.Deps{}, handlers.Columns{}, 1<<20, log),
		handlers.NewRunsHandler(store, log),
		handlers.RouterConfig{
			Middlewares:       []func(http.Handler) http.Handler{count(&routerCalls)},
			IngestMiddlewares: []func(http.Handler) http.Handler{count(&ingestCalls)},
			Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "ledger_up 1\n")
			}),
		},
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ledger_up") {
		t.Errorf("GET /metrics = %d %q", rec.Code, rec.Body.String())
	}

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	router.ServeHTTP(httptest.NewRecorder(), ingestRequest(t, nil))

	if routerCalls != 3 {
		t.Errorf("router middleware calls = %d, want 3", routerCalls)
	}
	if ingestCalls != 1 {
		t.Errorf("ingest middleware calls = %d, want 1", ingestCalls)
	}
}
