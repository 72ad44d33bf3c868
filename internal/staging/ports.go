package staging

import (
	"context"

	"sheetpipe/internal/core"
)

// RecordStore is the port for the raw-record staging area. Uploaded rows
// land here untouched; the ETL worker drains them in row order.
type RecordStore interface {
	// StageRecords bulk-inserts raw records. All records in one call belong
	// to the same job and dataset.
	StageRecords(ctx context.Context, records []core.RawRecord) error

	// FetchBatch returns up to limit records of a job with Row > afterRow,
	// ordered by row number. An empty slice means the job is drained.
	FetchBatch(ctx context.Context, dataset core.Dataset, jobID string, afterRow, limit int) ([]core.RawRecord, error)

	// CountJob returns how many records a job staged.
	CountJob(ctx context.Context, dataset core.Dataset, jobID string) (int64, error)

	// DeleteJob removes a job's records after a successful load or abort.
	DeleteJob(ctx context.Context, dataset core.Dataset, jobID string) error

	// Ping verifies the store is reachable, for readiness checks.
	Ping(ctx context.Context) error
}
