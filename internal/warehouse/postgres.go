package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetpipe/internal/core"
)

// ErrJobNotFound is returned when a ledger lookup finds no job.
var ErrJobNotFound = errors.New("import job not found")

// Repository is the PostgreSQL warehouse: the import job ledger, the etl
// queue, and the per-dataset destination tables.
type Repository struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool against dsn, pings it, and runs migrations.
func Connect(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// NewRepository wraps an existing pool without running migrations. Used by
// tests and by binaries that migrate separately.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping checks connectivity, used by readiness probes.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}

// CreateJob inserts a new ledger entry for an upload or sheet pull.
func (r *Repository) CreateJob(ctx context.Context, job core.ImportJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validate job: %w", err)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO import_jobs (id, dataset, source_file, status, rows_staged, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())`,
		job.ID, job.Dataset.String(), job.SourceFile, string(job.Status), job.RowsStaged)
	if err != nil {
		return fmt.Errorf("insert import job: %w", err)
	}

	slog.InfoContext(ctx, "Import job created",
		"job_id", job.ID,
		"dataset", job.Dataset,
		"source_file", job.SourceFile,
		"rows_staged", job.RowsStaged)

	return nil
}

// UpdateJobStatus moves a job to a new state. The error message is only
// stored for failed jobs and cleared otherwise.
func (r *Repository) UpdateJobStatus(ctx context.Context, jobID string, status core.JobStatus, errMsg string) error {
	if !status.IsValid() {
		return core.ErrInvalidStatus
	}
	if status != core.JobFailed {
		errMsg = ""
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		jobID, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SetJobCounts records the final row accounting for a job.
func (r *Repository) SetJobCounts(ctx context.Context, jobID string, counts core.JobCounts) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET rows_staged = $2, rows_loaded = $3, rows_failed = $4, updated_at = now()
		WHERE id = $1`,
		jobID, counts.Staged, counts.Loaded, counts.Failed)
	if err != nil {
		return fmt.Errorf("set job counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob fetches a single ledger entry.
func (r *Repository) GetJob(ctx context.Context, jobID string) (core.ImportJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, dataset, source_file, status, rows_staged, rows_loaded, rows_failed, error, created_at, updated_at
		FROM import_jobs
		WHERE id = $1`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportJob{}, ErrJobNotFound
	}
	if err != nil {
		return core.ImportJob{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// ListRecentJobs returns the newest ledger entries for a dataset.
func (r *Repository) ListRecentJobs(ctx context.Context, dataset core.Dataset, limit int) ([]core.ImportJob, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, dataset, source_file, status, rows_staged, rows_loaded, rows_failed, error, created_at, updated_at
		FROM import_jobs
		WHERE dataset = $1
		ORDER BY created_at DESC
		LIMIT $2`, dataset.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []core.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// DatasetOverview aggregates the ledger for one dataset for the dashboard.
func (r *Repository) DatasetOverview(ctx context.Context, dataset core.Dataset, recentLimit int) (core.DatasetOverview, error) {
	overview := core.DatasetOverview{Dataset: dataset}

	var lastLoaded *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       coalesce(sum(rows_loaded), 0),
		       coalesce(sum(rows_failed), 0),
		       max(updated_at) FILTER (WHERE status = 'loaded')
		FROM import_jobs
		WHERE dataset = $1`, dataset.String()).
		Scan(&overview.JobCount, &overview.RowsLoaded, &overview.RowsFailed, &lastLoaded)
	if err != nil {
		return overview, fmt.Errorf("aggregate dataset %s: %w", dataset, err)
	}
	if lastLoaded != nil {
		overview.LastLoaded = *lastLoaded
	}

	recent, err := r.ListRecentJobs(ctx, dataset, recentLimit)
	if err != nil {
		return overview, err
	}
	overview.RecentJobs = recent

	return overview, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (core.ImportJob, error) {
	var (
		job     core.ImportJob
		dataset string
		status  string
		errMsg  *string
	)
	err := row.Scan(&job.ID, &dataset, &job.SourceFile, &status,
		&job.RowsStaged, &job.RowsLoaded, &job.RowsFailed, &errMsg,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return core.ImportJob{}, err
	}
	job.Dataset = core.Dataset(dataset)
	job.Status = core.JobStatus(status)
	if errMsg != nil {
		job.Error = *errMsg
	}
	return job, nil
}
