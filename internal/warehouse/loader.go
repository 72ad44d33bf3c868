package warehouse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"sheetpipe/internal/core"
)

// provenanceColumns lead every warehouse table so a load can be traced back
// to its job and source row.
var provenanceColumns = []string{"job_id", "row_num"}

// LoadRecords bulk-inserts mapped records into the dataset's warehouse table
// using COPY. columns is the schema's canonical field order; fields a record
// does not carry become NULL.
func (r *Repository) LoadRecords(ctx context.Context, dataset core.Dataset, columns []string, records []core.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	table := pgx.Identifier{dataset.String()}
	copyCols := append(append([]string{}, provenanceColumns...), columns...)

	n, err := r.pool.CopyFrom(ctx, table, copyCols,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return copyRow(columns, records[i]), nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", dataset, err)
	}

	slog.DebugContext(ctx, "Records copied into warehouse",
		"dataset", dataset,
		"rows", n)

	return n, nil
}

// DeleteJobRows removes previously loaded rows for a job so a retried load
// starts clean instead of duplicating.
func (r *Repository) DeleteJobRows(ctx context.Context, dataset core.Dataset, jobID string) (int64, error) {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE job_id = $1`,
		pgx.Identifier{dataset.String()}.Sanitize())

	tag, err := r.pool.Exec(ctx, sql, jobID)
	if err != nil {
		return 0, fmt.Errorf("delete job rows from %s: %w", dataset, err)
	}
	return tag.RowsAffected(), nil
}

// copyRow lays out one record in copy column order: provenance first, then
// the schema fields. Missing fields map to NULL.
func copyRow(columns []string, rec core.Record) []any {
	row := make([]any, 0, len(columns)+len(provenanceColumns))
	row = append(row, rec.JobID, rec.Row)
	for _, col := range columns {
		fv, ok := rec.Fields[col]
		if !ok {
			row = append(row, nil)
			continue
		}
		row = append(row, fv.Interface())
	}
	return row
}
