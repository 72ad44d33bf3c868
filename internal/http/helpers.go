package http

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"sheetpipe/internal/core"
)

// jobView is the JSON shape of a job for the status endpoint.
type jobView struct {
	ID         string `json:"id"`
	Dataset    string `json:"dataset"`
	SourceFile string `json:"source_file"`
	Status     string `json:"status"`
	RowsStaged int    `json:"rows_staged"`
	RowsLoaded int    `json:"rows_loaded"`
	RowsFailed int    `json:"rows_failed"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func jobResponse(job core.ImportJob) jobView {
	return jobView{
		ID:         job.ID,
		Dataset:    job.Dataset.String(),
		SourceFile: job.SourceFile,
		Status:     string(job.Status),
		RowsStaged: job.RowsStaged,
		RowsLoaded: job.RowsLoaded,
		RowsFailed: job.RowsFailed,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// overviewView feeds the dataset_overview.html partial.
type overviewView struct {
	Dataset    string
	JobCount   int
	RowsLoaded int64
	RowsFailed int64
	LastLoaded string
	Empty      bool
	Jobs       []overviewJobRow
}

type overviewJobRow struct {
	ID         string
	SourceFile string
	Status     string
	RowsLoaded int
	RowsFailed int
	Error      string
	Uploaded   string
}

func overviewViewModel(ov core.DatasetOverview) overviewView {
	v := overviewView{
		Dataset:    ov.Dataset.String(),
		JobCount:   ov.JobCount,
		RowsLoaded: ov.RowsLoaded,
		RowsFailed: ov.RowsFailed,
		Empty:      ov.Empty(),
	}
	if !ov.LastLoaded.IsZero() {
		v.LastLoaded = ov.LastLoaded.Local().Format("2006-01-02 15:04")
	}
	for _, j := range ov.RecentJobs {
		v.Jobs = append(v.Jobs, overviewJobRow{
			ID:         j.ID,
			SourceFile: j.SourceFile,
			Status:     string(j.Status),
			RowsLoaded: j.RowsLoaded,
			RowsFailed: j.RowsFailed,
			Error:      j.Error,
			Uploaded:   j.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return v
}

// writeErrorPartial writes an HTML error fragment for htmx form swaps.
func writeErrorPartial(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`<div class="error">` + template.HTMLEscapeString(msg) + `</div>`))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("JSON encode error", "error", err)
	}
}
