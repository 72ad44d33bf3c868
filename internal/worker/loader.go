package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sheetpipe/internal/core"
	"sheetpipe/internal/mapping"
	"sheetpipe/internal/staging"
)

// ErrNoLoadableRows marks a job whose every staged row failed mapping (or
// that had no staged rows at all). Retrying cannot fix it, the queue should
// not requeue it.
var ErrNoLoadableRows = errors.New("no loadable rows")

// WarehouseStore is the slice of the warehouse the loader needs: the job
// ledger plus bulk load into the destination tables.
type WarehouseStore interface {
	UpdateJobStatus(ctx context.Context, jobID string, status core.JobStatus, errMsg string) error
	SetJobCounts(ctx context.Context, jobID string, counts core.JobCounts) error
	LoadRecords(ctx context.Context, dataset core.Dataset, columns []string, records []core.Record) (int64, error)
	DeleteJobRows(ctx context.Context, dataset core.Dataset, jobID string) (int64, error)
}

// Loader moves one staged job into the warehouse: stream staged rows in
// batches, map them against the dataset schema, bulk copy the mapped rows.
type Loader struct {
	staging   staging.RecordStore
	registry  *mapping.Registry
	warehouse WarehouseStore
	batchSize int
}

func NewLoader(staging staging.RecordStore, registry *mapping.Registry, warehouse WarehouseStore, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Loader{
		staging:   staging,
		registry:  registry,
		warehouse: warehouse,
		batchSize: batchSize,
	}
}

// LoadJob runs the full load for one job. It is idempotent: previously
// loaded rows for the job are deleted before loading, so a retried queue
// item cannot duplicate data.
func (l *Loader) LoadJob(ctx context.Context, jobID string, dataset core.Dataset) (core.JobCounts, error) {
	var counts core.JobCounts

	schema, err := l.registry.Schema(dataset)
	if err != nil {
		return counts, fmt.Errorf("schema for %s: %w", dataset, err)
	}

	if err := l.warehouse.UpdateJobStatus(ctx, jobID, core.JobLoading, ""); err != nil {
		return counts, fmt.Errorf("mark job loading: %w", err)
	}

	staged, err := l.staging.CountJob(ctx, dataset, jobID)
	if err != nil {
		return counts, fmt.Errorf("count staged rows: %w", err)
	}
	counts.Staged = int(staged)

	if _, err := l.warehouse.DeleteJobRows(ctx, dataset, jobID); err != nil {
		return counts, fmt.Errorf("clear previous load: %w", err)
	}

	var plan *mapping.Plan
	afterRow := 0
	for {
		batch, err := l.staging.FetchBatch(ctx, dataset, jobID, afterRow, l.batchSize)
		if err != nil {
			return counts, fmt.Errorf("fetch staged batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		afterRow = batch[len(batch)-1].Row

		if plan == nil {
			plan, err = mapping.NewPlan(schema, batch[0].Headers)
			if err != nil {
				return counts, l.failJob(ctx, jobID, counts, fmt.Errorf("resolve columns: %w", err))
			}
		}

		records, failures := plan.ApplyAll(batch)
		counts.Failed += len(failures)
		for _, f := range failures {
			slog.WarnContext(ctx, "Row failed mapping",
				"job_id", jobID,
				"dataset", dataset,
				"row", f.Row,
				"field", f.Field,
				"reason", f.Reason)
		}

		if len(records) > 0 {
			n, err := l.warehouse.LoadRecords(ctx, dataset, schema.Columns(), records)
			if err != nil {
				return counts, fmt.Errorf("load batch: %w", err)
			}
			counts.Loaded += int(n)
		}
	}

	if counts.Loaded == 0 {
		return counts, l.failJob(ctx, jobID, counts, ErrNoLoadableRows)
	}

	if err := l.warehouse.SetJobCounts(ctx, jobID, counts); err != nil {
		return counts, fmt.Errorf("record job counts: %w", err)
	}
	if err := l.warehouse.UpdateJobStatus(ctx, jobID, core.JobLoaded, ""); err != nil {
		return counts, fmt.Errorf("mark job loaded: %w", err)
	}

	slog.InfoContext(ctx, "Job loaded into warehouse",
		"job_id", jobID,
		"dataset", dataset,
		"rows_staged", counts.Staged,
		"rows_loaded", counts.Loaded,
		"rows_failed", counts.Failed)

	return counts, nil
}

// failJob marks the job failed in the ledger and returns the original error
// wrapped in ErrNoLoadableRows semantics when applicable. Mapping failures
// are deterministic; the job is done, not retryable.
func (l *Loader) failJob(ctx context.Context, jobID string, counts core.JobCounts, cause error) error {
	if err := l.warehouse.SetJobCounts(ctx, jobID, counts); err != nil {
		slog.ErrorContext(ctx, "Failed to record job counts", "job_id", jobID, "error", err)
	}
	if err := l.warehouse.UpdateJobStatus(ctx, jobID, core.JobFailed, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to mark job failed", "job_id", jobID, "error", err)
	}
	if errors.Is(cause, ErrNoLoadableRows) {
		return cause
	}
	return fmt.Errorf("%w: %s", ErrNoLoadableRows, cause.Error())
}
