package http

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

	"sheetpipe/internal/core"
	"sheetpipe/internal/mapping"
	"sheetpipe/internal/router"
	"sheetpipe/internal/staging/memory"
	"sheetpipe/internal/warehouse"
)

type fakeIngestor struct {
	job core.ImportJob
	err error
}

func (f *fakeIngestor) IngestUpload(ctx context.Context, filename string, r io.Reader) (core.ImportJob, error) {
	if f.err != nil {
		return core.ImportJob{}, f.err
	}
	return f.job, nil
}

type fakeWarehouse struct {
	job           core.ImportJob
	jobErr        error
	overview      core.DatasetOverview
	overviewCalls int
	stats         warehouse.EtlQueueStats
	pingErr       error
}

func (f *fakeWarehouse) GetJob(ctx context.Context, jobID string) (core.ImportJob, error) {
	if f.jobErr != nil {
		return core.ImportJob{}, f.jobErr
	}
	return f.job, nil
}

func (f *fakeWarehouse) DatasetOverview(ctx context.Context, dataset core.Dataset, recentLimit int) (core.DatasetOverview, error) {
	f.overviewCalls++
	return f.overview, nil
}

func (f *fakeWarehouse) QueueStats(ctx context.Context) (warehouse.EtlQueueStats, error) {
	return f.stats, nil
}

func (f *fakeWarehouse) Ping(ctx context.Context) error { return f.pingErr }

func newTestServer(t *testing.T, ing Ingestor, wh Warehouse) *Server {
	t.Helper()
	srv := NewServer(Options{
		Addr:     ":0",
		Datasets: []core.Dataset{"transactions", "customers", "inventory"},
	}, ing, wh, memory.New())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeWarehouse{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "sheetpipe") {
		t.Fatalf("index body missing heading")
	}
	if got := rr.Header().Get("Content-Security-Policy"); got == "" {
		t.Fatalf("missing CSP header")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadyzFailsWhenWarehouseDown(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeWarehouse{pingErr: errors.New("down")})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestUploadSuccess(t *testing.T) {
	job := core.ImportJob{
		ID:         "job-1",
		Dataset:    "transactions",
		SourceFile: "march_transactions.csv",
		Status:     core.JobStaged,
		RowsStaged: 42,
	}
	srv := newTestServer(t, &fakeIngestor{job: job}, &fakeWarehouse{})

	body, contentType := multipartUpload(t, "march_transactions.csv", "transaction_id,amount\nt1,10.00\n")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "job-1") {
		t.Fatalf("response missing job id: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "transactions") {
		t.Fatalf("missing HX-Trigger header")
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"unroutable filename", router.ErrNoRoute, http.StatusUnprocessableEntity, "dataset"},
		{"missing column", &mapping.MissingColumnError{Field: "amount"}, http.StatusUnprocessableEntity, "amount"},
		{"internal failure", errors.New("mongo down"), http.StatusInternalServerError, "Upload failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeIngestor{err: tt.err}, &fakeWarehouse{})

			body, contentType := multipartUpload(t, "whatever.csv", "a,b\n1,2\n")
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/uploads", body)
			req.Header.Set("Content-Type", contentType)
			srv.Handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Fatalf("body %q missing %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestUploadRejectsWrongMethodAndMissingFile(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeWarehouse{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/uploads", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("notafile", "x")
	_ = w.Close()

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestJobStatus(t *testing.T) {
	job := core.ImportJob{
		ID:         "job-9",
		Dataset:    "customers",
		SourceFile: "customers.xlsx",
		Status:     core.JobLoaded,
		RowsStaged: 10,
		RowsLoaded: 9,
		RowsFailed: 1,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	srv := newTestServer(t, &fakeIngestor{}, &fakeWarehouse{job: job})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/job-9", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var got jobView
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "job-9" || got.Status != "loaded" || got.RowsLoaded != 9 {
		t.Fatalf("unexpected job view: %+v", got)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeWarehouse{jobErr: warehouse.ErrJobNotFound})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDatasetOverview(t *testing.T) {
	wh := &fakeWarehouse{
		overview: core.DatasetOverview{
			Dataset:    "transactions",
			JobCount:   3,
			RowsLoaded: 120,
			RecentJobs: []core.ImportJob{
				{ID: "j1", SourceFile: "march_transactions.csv", Status: core.JobLoaded, RowsLoaded: 120, CreatedAt: time.Now()},
			},
		},
	}
	srv := newTestServer(t, &fakeIngestor{}, wh)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ui/dataset-overview?dataset=transactions", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "march_transactions.csv") {
		t.Fatalf("overview missing job row: %s", rr.Body.String())
	}

	// Second request should come from the cache.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ui/dataset-overview?dataset=transactions", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on cached read, got %d", rr.Code)
	}
	if wh.overviewCalls != 1 {
		t.Fatalf("expected 1 warehouse call, got %d", wh.overviewCalls)
	}
}

func TestJobCompletionInvalidatesOverviewCache(t *testing.T) {
	wh := &fakeWarehouse{
		job: core.ImportJob{ID: "job-5", Dataset: "transactions", Status: core.JobLoaded},
		overview: core.DatasetOverview{
			Dataset:  "transactions",
			JobCount: 1,
		},
	}
	srv := newTestServer(t, &fakeIngestor{}, wh)

	overview := func() {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ui/dataset-overview?dataset=transactions", nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("overview status=%d", rr.Code)
		}
	}

	overview()
	overview()
	if wh.overviewCalls != 1 {
		t.Fatalf("expected cached overview, got %d warehouse calls", wh.overviewCalls)
	}

	// Polling a finished job drops the cached overview for its dataset.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/job-5", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("job status=%d", rr.Code)
	}

	overview()
	if wh.overviewCalls != 2 {
		t.Fatalf("expected fresh overview after completion, got %d warehouse calls", wh.overviewCalls)
	}

	// A job still in flight leaves the cache alone.
	wh.job = core.ImportJob{ID: "job-6", Dataset: "transactions", Status: core.JobLoading}
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/jobs/job-6", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("job status=%d", rr.Code)
	}
	overview()
	if wh.overviewCalls != 2 {
		t.Fatalf("in-flight job should not invalidate, got %d warehouse calls", wh.overviewCalls)
	}
}

func TestDatasetOverviewUnknownDataset(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeWarehouse{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ui/dataset-overview?dataset=nope", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestStats(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeWarehouse{
		stats: warehouse.EtlQueueStats{Pending: 2, Completed: 7},
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var got map[string]map[string]int64
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if got["queue"]["pending"] != 2 || got["queue"]["completed"] != 7 {
		t.Fatalf("unexpected queue stats: %+v", got["queue"])
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeWarehouse{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/wp-admin/setup.php", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
