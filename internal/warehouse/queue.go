package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sheetpipe/internal/core"
)

// Queue item states mirror the job lifecycle but live per load attempt.
const (
	QueuePending    = "pending"
	QueueProcessing = "processing"
	QueueCompleted  = "completed"
	QueueFailed     = "failed"
)

type (
	// EtlQueueItem is one pending load in the durable queue. The queue is
	// the source of truth for what still needs loading; AMQP delivery is
	// only a wakeup.
	EtlQueueItem struct {
		ID        int64
		JobID     string
		Dataset   core.Dataset
		Rows      int
		Status    string
		Attempts  int
		LastError string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// EtlQueueStats is a point-in-time count per queue state.
	EtlQueueStats struct {
		Pending    int64
		Processing int64
		Completed  int64
		Failed     int64
	}
)

// EnqueueLoad adds a staged job to the etl queue. Enqueueing the same job
// twice is harmless; the loader deletes previous rows before reloading.
func (r *Repository) EnqueueLoad(ctx context.Context, jobID string, dataset core.Dataset, rows int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO etl_queue (job_id, dataset, rows_staged, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, now(), now())`,
		jobID, dataset.String(), rows)
	if err != nil {
		return fmt.Errorf("enqueue load: %w", err)
	}
	return nil
}

// ClaimBatch atomically claims up to limit pending items, oldest first,
// moving them to processing. SKIP LOCKED keeps the poll loop and a
// concurrent ClaimPending from landing on the same item.
func (r *Repository) ClaimBatch(ctx context.Context, limit int) ([]EtlQueueItem, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE etl_queue
		SET status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id FROM etl_queue
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_id, dataset, rows_staged, status, attempts, coalesce(last_error, ''), created_at, updated_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var items []EtlQueueItem
	for rows.Next() {
		var (
			item    EtlQueueItem
			dataset string
		)
		if err := rows.Scan(&item.ID, &item.JobID, &dataset, &item.Rows,
			&item.Status, &item.Attempts, &item.LastError,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		item.Dataset = core.Dataset(dataset)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

// ClaimPending atomically claims a pending item for a specific job, used by
// the AMQP-driven path so the poll loop does not double-process it. Returns
// (item, false, nil) when no pending item exists for the job.
func (r *Repository) ClaimPending(ctx context.Context, jobID string) (EtlQueueItem, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE etl_queue
		SET status = 'processing', updated_at = now()
		WHERE id = (
			SELECT id FROM etl_queue
			WHERE job_id = $1 AND status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_id, dataset, rows_staged, status, attempts, coalesce(last_error, ''), created_at, updated_at`,
		jobID)

	var (
		item    EtlQueueItem
		dataset string
	)
	err := row.Scan(&item.ID, &item.JobID, &dataset, &item.Rows,
		&item.Status, &item.Attempts, &item.LastError,
		&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return EtlQueueItem{}, false, nil
	}
	if err != nil {
		return EtlQueueItem{}, false, fmt.Errorf("claim pending item: %w", err)
	}
	item.Dataset = core.Dataset(dataset)
	return item, true, nil
}

// MarkComplete flags an item as done.
func (r *Repository) MarkComplete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE etl_queue SET status = 'completed', last_error = NULL, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	return nil
}

// MarkFailed flags an item as permanently failed after max retries.
func (r *Repository) MarkFailed(ctx context.Context, id int64, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE etl_queue SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1`, id, lastError)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// IncrementAttempt records a failed attempt and puts the item back in
// pending so the next poll cycle retries it.
func (r *Repository) IncrementAttempt(ctx context.Context, id int64, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE etl_queue
		SET status = 'pending', attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $1`, id, lastError)
	if err != nil {
		return fmt.Errorf("increment attempt: %w", err)
	}
	return nil
}

// ResetStaleProcessing releases items stuck in processing, typically after
// a worker crash. Items older than olderThan go back to pending.
func (r *Repository) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE etl_queue
		SET status = 'pending', updated_at = now()
		WHERE status = 'processing' AND updated_at < now() - $1::interval`,
		olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset stale processing: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CleanupCompleted deletes completed items older than cutoff.
func (r *Repository) CleanupCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM etl_queue
		WHERE status = 'completed' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RetryFailed resets every failed item for another round of attempts.
func (r *Repository) RetryFailed(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE etl_queue
		SET status = 'pending', attempts = 0, last_error = NULL, updated_at = now()
		WHERE status = 'failed'`)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueueStats counts items per state.
func (r *Repository) QueueStats(ctx context.Context) (EtlQueueStats, error) {
	var stats EtlQueueStats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status = 'pending'),
		       count(*) FILTER (WHERE status = 'processing'),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'failed')
		FROM etl_queue`).
		Scan(&stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed)
	if err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}
