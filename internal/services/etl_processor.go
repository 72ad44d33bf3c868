package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sheetpipe/internal/core"
	"sheetpipe/internal/warehouse"
	"sheetpipe/internal/worker"
)

// EtlProcessorConfig holds configuration for the etl processor.
type EtlProcessorConfig struct {
	// PollInterval is how often to check for pending loads (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of queue items per poll cycle (default: 5)
	BatchSize int

	// MaxRetries is the maximum load attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up completed items (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before cleanup (default: 24h)
	CleanupAge time.Duration

	// StaleAge is how long an item may sit in processing before it is
	// assumed orphaned by a crash and released (default: 10m)
	StaleAge time.Duration
}

// DefaultEtlProcessorConfig returns sensible defaults.
func DefaultEtlProcessorConfig() EtlProcessorConfig {
	return EtlProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       5,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
		StaleAge:        10 * time.Minute,
	}
}

// EtlQueueStore is the queue surface of the warehouse the processor drives.
type EtlQueueStore interface {
	ClaimBatch(ctx context.Context, limit int) ([]warehouse.EtlQueueItem, error)
	ClaimPending(ctx context.Context, jobID string) (warehouse.EtlQueueItem, bool, error)
	MarkComplete(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
	IncrementAttempt(ctx context.Context, id int64, lastError string) error
	ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
	CleanupCompleted(ctx context.Context, cutoff time.Time) (int64, error)
	RetryFailed(ctx context.Context) (int64, error)
	QueueStats(ctx context.Context) (warehouse.EtlQueueStats, error)
	UpdateJobStatus(ctx context.Context, jobID string, status core.JobStatus, errMsg string) error
}

// JobLoader runs the actual load for one job.
type JobLoader interface {
	LoadJob(ctx context.Context, jobID string, dataset core.Dataset) (core.JobCounts, error)
}

// EtlProcessor drains the durable etl queue. It is the fallback path that
// guarantees every staged job eventually loads even when AMQP notifications
// are lost; the AMQP path enters through ProcessJob.
type EtlProcessor struct {
	queue  EtlQueueStore
	loader JobLoader
	config EtlProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewEtlProcessor creates a new etl processor.
func NewEtlProcessor(queue EtlQueueStore, loader JobLoader, config EtlProcessorConfig) *EtlProcessor {
	return &EtlProcessor{
		queue:  queue,
		loader: loader,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *EtlProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("etl processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Release items orphaned in processing by a previous crash.
	if n, err := p.queue.ResetStaleProcessing(ctx, p.config.StaleAge); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Released stale processing items", "count", n)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Etl processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *EtlProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Etl processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Etl processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running.
func (p *EtlProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// ProcessJob claims and loads the pending queue item for one job. It is the
// AMQP wakeup path; returns nil when no pending item exists (the poll loop
// already took it).
func (p *EtlProcessor) ProcessJob(ctx context.Context, jobID string) error {
	item, ok, err := p.queue.ClaimPending(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim pending item for %s: %w", jobID, err)
	}
	if !ok {
		slog.DebugContext(ctx, "No pending queue item for job", "job_id", jobID)
		return nil
	}

	p.processItem(ctx, item)
	return nil
}

// runLoop is the main processing loop.
func (p *EtlProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// processBatch claims and processes one batch of pending items. Claiming is
// atomic so a concurrent AMQP wakeup cannot load the same job twice.
func (p *EtlProcessor) processBatch(ctx context.Context) {
	items, err := p.queue.ClaimBatch(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to claim etl batch", "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	slog.DebugContext(ctx, "Processing etl batch", "count", len(items))

	for _, item := range items {
		select {
		case <-p.stopCh:
			// Items claimed but not loaded go back to pending via the
			// stale-processing reset on the next start.
			return
		case <-ctx.Done():
			return
		default:
		}

		p.processItem(ctx, item)
	}
}

// processItem runs one load and settles the already-claimed queue item.
func (p *EtlProcessor) processItem(ctx context.Context, item warehouse.EtlQueueItem) {
	counts, err := p.loader.LoadJob(ctx, item.JobID, item.Dataset)
	if err != nil {
		p.handleFailure(ctx, item, err)
		return
	}

	if err := p.queue.MarkComplete(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark etl item complete",
			"id", item.ID, "error", err)
	}

	slog.InfoContext(ctx, "Etl item completed",
		"id", item.ID,
		"job_id", item.JobID,
		"dataset", item.Dataset,
		"rows_loaded", counts.Loaded,
		"rows_failed", counts.Failed)
}

// handleFailure handles a failed load attempt with retry logic. Mapping
// failures are deterministic and fail immediately; everything else retries
// up to MaxRetries.
func (p *EtlProcessor) handleFailure(ctx context.Context, item warehouse.EtlQueueItem, loadErr error) {
	slog.WarnContext(ctx, "Etl processing failed",
		"id", item.ID,
		"job_id", item.JobID,
		"dataset", item.Dataset,
		"attempt", item.Attempts+1,
		"error", loadErr)

	permanent := errors.Is(loadErr, worker.ErrNoLoadableRows)

	if permanent || item.Attempts+1 >= p.config.MaxRetries {
		if err := p.queue.MarkFailed(ctx, item.ID, loadErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark etl item as failed",
				"id", item.ID, "error", err)
		}

		// The loader marks the job failed itself on permanent errors; after
		// exhausted retries the ledger still says loading, fix it here.
		if !permanent {
			if err := p.queue.UpdateJobStatus(ctx, item.JobID, core.JobFailed, loadErr.Error()); err != nil {
				slog.ErrorContext(ctx, "Failed to mark job failed",
					"job_id", item.JobID, "error", err)
			}
		}

		slog.ErrorContext(ctx, "Etl item failed permanently",
			"id", item.ID,
			"job_id", item.JobID,
			"attempts", item.Attempts+1)
	} else {
		if err := p.queue.IncrementAttempt(ctx, item.ID, loadErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to increment etl attempt",
				"id", item.ID, "error", err)
		}
	}
}

// cleanupCompleted removes old completed items.
func (p *EtlProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	n, err := p.queue.CleanupCompleted(ctx, cutoff)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed etl items", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed etl items", "count", n)
	}
}

// Stats returns current queue statistics.
func (p *EtlProcessor) Stats(ctx context.Context) (warehouse.EtlQueueStats, error) {
	return p.queue.QueueStats(ctx)
}

// RetryFailed resets all failed items for retry.
func (p *EtlProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.queue.RetryFailed(ctx)
}
