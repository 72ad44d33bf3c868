package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"sheetpipe/internal/core"
	"sheetpipe/internal/ingest"
	"sheetpipe/internal/mapping"
	"sheetpipe/internal/router"
	"sheetpipe/internal/staging"
)

// ErrNoDataRows is returned for files that parse but contain only a header.
var ErrNoDataRows = errors.New("file has no data rows")

// JobLedger is the slice of the warehouse the ingest path needs.
type JobLedger interface {
	CreateJob(ctx context.Context, job core.ImportJob) error
	UpdateJobStatus(ctx context.Context, jobID string, status core.JobStatus, errMsg string) error
	SetJobCounts(ctx context.Context, jobID string, counts core.JobCounts) error
	EnqueueLoad(ctx context.Context, jobID string, dataset core.Dataset, rows int) error
}

// StagedNotifier wakes the worker after staging. Notification is best
// effort: the etl queue already holds the work.
type StagedNotifier interface {
	PublishJobStaged(ctx context.Context, jobID, dataset string, rows int) error
}

// IngestService orchestrates the upload path: route the filename to a
// dataset, parse the file, stage the raw rows, record the job, enqueue the
// load, and nudge the worker.
type IngestService struct {
	router    *router.Router
	registry  *mapping.Registry
	staging   staging.RecordStore
	ledger    JobLedger
	notifier  StagedNotifier
	xlsxSheet string
}

func NewIngestService(
	rt *router.Router,
	registry *mapping.Registry,
	stagingStore staging.RecordStore,
	ledger JobLedger,
	notifier StagedNotifier,
) *IngestService {
	return &IngestService{
		router:   rt,
		registry: registry,
		staging:  stagingStore,
		ledger:   ledger,
		notifier: notifier,
	}
}

// WithXLSXSheet pins workbook parsing to one named sheet. The default reads
// the first sheet that contains data.
func (s *IngestService) WithXLSXSheet(sheet string) *IngestService {
	s.xlsxSheet = sheet
	return s
}

// IngestUpload handles one uploaded file end to end. The returned job
// reflects the state after staging; loading happens asynchronously.
func (s *IngestService) IngestUpload(ctx context.Context, filename string, r io.Reader) (core.ImportJob, error) {
	dataset, err := s.router.Route(filename)
	if err != nil {
		return core.ImportJob{}, err
	}

	table, err := ingest.ParseSheet(filename, r, s.xlsxSheet)
	if err != nil {
		return core.ImportJob{}, fmt.Errorf("parse %s: %w", filename, err)
	}

	return s.IngestTable(ctx, dataset, filename, *table)
}

// IngestTable stages an already-parsed table. The sheet pull path enters
// here because it has no file to route or parse.
func (s *IngestService) IngestTable(ctx context.Context, dataset core.Dataset, sourceFile string, table ingest.Table) (core.ImportJob, error) {
	schema, err := s.registry.Schema(dataset)
	if err != nil {
		return core.ImportJob{}, err
	}

	job := core.ImportJob{
		ID:         uuid.New().String(),
		Dataset:    dataset,
		SourceFile: sourceFile,
		Status:     core.JobReceived,
	}

	if len(table.Rows) == 0 {
		return core.ImportJob{}, ErrNoDataRows
	}

	// Resolving the columns up front fails the upload synchronously when a
	// required column is absent, instead of staging rows that can never load.
	if _, err := mapping.NewPlan(schema, table.Headers); err != nil {
		return core.ImportJob{}, err
	}

	records := make([]core.RawRecord, 0, len(table.Rows))
	for i, values := range table.Rows {
		records = append(records, core.RawRecord{
			JobID:      job.ID,
			Dataset:    dataset,
			Row:        i + 1,
			SourceFile: sourceFile,
			Headers:    table.Headers,
			Values:     values,
		})
	}
	job.RowsStaged = len(records)

	if err := s.ledger.CreateJob(ctx, job); err != nil {
		return core.ImportJob{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.staging.StageRecords(ctx, records); err != nil {
		s.markFailed(ctx, job.ID, fmt.Errorf("stage records: %w", err))
		return core.ImportJob{}, fmt.Errorf("stage records: %w", err)
	}

	if err := s.ledger.UpdateJobStatus(ctx, job.ID, core.JobStaged, ""); err != nil {
		return core.ImportJob{}, fmt.Errorf("mark job staged: %w", err)
	}
	job.Status = core.JobStaged

	if err := s.ledger.EnqueueLoad(ctx, job.ID, dataset, len(records)); err != nil {
		s.markFailed(ctx, job.ID, fmt.Errorf("enqueue load: %w", err))
		// The job will never be picked up, so the staged rows are orphans.
		if delErr := s.staging.DeleteJob(ctx, dataset, job.ID); delErr != nil {
			slog.WarnContext(ctx, "Failed to delete staged rows for unqueued job",
				"job_id", job.ID,
				"dataset", dataset,
				"error", delErr)
		}
		return core.ImportJob{}, fmt.Errorf("enqueue load: %w", err)
	}

	// Wake the worker. A lost notification only delays the load until the
	// next poll cycle.
	if s.notifier != nil {
		if err := s.notifier.PublishJobStaged(ctx, job.ID, dataset.String(), len(records)); err != nil {
			slog.WarnContext(ctx, "Failed to publish staged notification",
				"job_id", job.ID,
				"dataset", dataset,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Upload staged",
		"job_id", job.ID,
		"dataset", dataset,
		"source_file", sourceFile,
		"rows_staged", len(records))

	return job, nil
}

func (s *IngestService) markFailed(ctx context.Context, jobID string, cause error) {
	if err := s.ledger.UpdateJobStatus(ctx, jobID, core.JobFailed, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to mark job failed", "job_id", jobID, "error", err)
	}
}
