package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sheetpipe/internal/core"
	"sheetpipe/internal/ingest"
	"sheetpipe/internal/mapping"
	"sheetpipe/internal/router"
	"sheetpipe/internal/services"
	"sheetpipe/internal/warehouse"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data := struct {
		Datasets    []core.Dataset
		MaxUploadMB int64
	}{
		Datasets:    s.datasets,
		MaxUploadMB: s.maxUploadBytes >> 20,
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleUpload accepts a multipart spreadsheet upload and stages it. The
// response is an HTML partial so the dashboard form can swap it in place.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorPartial(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File exceeds the %d MB upload limit", s.maxUploadBytes>>20))
			return
		}
		slog.WarnContext(r.Context(), "Multipart parse error", "error", err)
		writeErrorPartial(w, http.StatusBadRequest, "Invalid upload request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorPartial(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	job, err := s.ingestor.IngestUpload(r.Context(), header.Filename, file)
	if err != nil {
		s.writeUploadError(w, r, header.Filename, err)
		return
	}

	s.overviewCache.Delete(job.Dataset.String())

	w.Header().Set("HX-Trigger", `{"job:staged": {"dataset": "`+template.JSEscapeString(job.Dataset.String())+`"}}`)
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `<div class="success">Staged %d rows from %s into %s (job %s)</div>`,
		job.RowsStaged,
		template.HTMLEscapeString(job.SourceFile),
		template.HTMLEscapeString(job.Dataset.String()),
		template.HTMLEscapeString(job.ID))
}

// writeUploadError maps ingest failures to status codes. Anything the
// caller can fix by changing the file is a 422.
func (s *Server) writeUploadError(w http.ResponseWriter, r *http.Request, filename string, err error) {
	var missing *mapping.MissingColumnError

	switch {
	case errors.Is(err, router.ErrNoRoute):
		writeErrorPartial(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("Could not match %q to a dataset. Name the file after its destination, e.g. march_transactions.csv", filename))
	case errors.As(err, &missing):
		writeErrorPartial(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("Required column %q is missing from the header row", missing.Field))
	case errors.Is(err, services.ErrNoDataRows):
		writeErrorPartial(w, http.StatusUnprocessableEntity, "File contains a header but no data rows")
	case errors.Is(err, ingest.ErrEmptyFile):
		writeErrorPartial(w, http.StatusUnprocessableEntity, "File is empty")
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		writeErrorPartial(w, http.StatusUnprocessableEntity, "Unsupported file format, upload .csv or .xlsx")
	default:
		slog.ErrorContext(r.Context(), "Upload ingest error", "error", err, "filename", filename)
		writeErrorPartial(w, http.StatusInternalServerError, "Upload failed, try again later")
	}
}

// handleJobStatus reports a single job as JSON, for polling after upload.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.NotFound(w, r)
		return
	}

	job, err := s.wh.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, warehouse.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		slog.ErrorContext(r.Context(), "Job lookup error", "error", err, "job_id", jobID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}

	// Pollers see completion before the overview TTL expires. Dropping the
	// cached overview here keeps the dashboard tiles in step with the poll.
	if job.Status.Terminal() {
		s.overviewCache.Delete(job.Dataset.String())
	}

	writeJSON(w, http.StatusOK, jobResponse(job))
}

// handleDatasetOverview renders the per-dataset overview partial.
func (s *Server) handleDatasetOverview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	dataset := core.Dataset(strings.TrimSpace(r.URL.Query().Get("dataset")))
	if !s.knownDataset(dataset) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`<div class="error">Unknown dataset</div>`))
		return
	}

	ov, err := s.getOverview(r.Context(), dataset)
	if err != nil {
		slog.ErrorContext(r.Context(), "Dataset overview error", "error", err, "dataset", dataset)
		_, _ = w.Write([]byte(`<div class="placeholder">Overview unavailable</div>`))
		return
	}

	if s.templates == nil {
		_, _ = fmt.Fprintf(w, `<div class="placeholder">%s: %d jobs, %d rows loaded</div>`,
			template.HTMLEscapeString(dataset.String()), ov.JobCount, ov.RowsLoaded)
		return
	}

	data := overviewViewModel(ov)
	if err := s.templates.ExecuteTemplate(w, "dataset_overview.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "dataset_overview.html", "dataset", dataset)
		_, _ = w.Write([]byte(`<div class="placeholder">Overview rendering failed</div>`))
	}
}

// handleStats exposes queue depth and middleware counters as JSON.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	qs, err := s.wh.QueueStats(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Queue stats error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}

	hits, misses := s.overviewCache.Stats()
	reqMetrics := s.tracer.GetMetrics()
	rlMetrics := s.limiter.GetMetrics()
	secMetrics := s.detector.GetMetrics()

	writeJSON(w, http.StatusOK, map[string]any{
		"queue": map[string]int64{
			"pending":    qs.Pending,
			"processing": qs.Processing,
			"completed":  qs.Completed,
			"failed":     qs.Failed,
		},
		"overview_cache": map[string]int64{
			"hits":   hits,
			"misses": misses,
		},
		"http": map[string]int64{
			"total_requests": reqMetrics.TotalRequests,
			"client_errors":  reqMetrics.ClientErrors,
			"server_errors":  reqMetrics.ServerErrors,
		},
		"rate_limit": map[string]int64{
			"total_hits":     rlMetrics.TotalHits,
			"active_clients": rlMetrics.ClientCount,
		},
		"security": map[string]int64{
			"suspicious_requests": secMetrics.SuspiciousRequests,
		},
	})
}

// getOverview returns the dataset overview, preferring the cache.
func (s *Server) getOverview(ctx context.Context, dataset core.Dataset) (core.DatasetOverview, error) {
	key := dataset.String()

	if ov, found := s.overviewCache.Get(key); found {
		slog.DebugContext(ctx, "Overview cache hit", "dataset", dataset)
		return ov, nil
	}

	// Small timeout so a slow warehouse does not hang the partial.
	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()

	ov, err := s.wh.DatasetOverview(cctx, dataset, recentJobsLimit)
	if err != nil {
		return core.DatasetOverview{}, fmt.Errorf("dataset overview (dataset=%s): %w", dataset, err)
	}

	s.overviewCache.Set(key, ov)
	slog.DebugContext(ctx, "Overview cached", "dataset", dataset, "jobs", ov.JobCount, "rows_loaded", ov.RowsLoaded)
	return ov, nil
}

func (s *Server) knownDataset(d core.Dataset) bool {
	for _, known := range s.datasets {
		if d == known {
			return true
		}
	}
	return false
}
