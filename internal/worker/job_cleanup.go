package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/repository"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
)

// JobCleanupWorker prunes finished sync job rows past the retention
// window. Dead-lettered jobs are kept for operator review.
type JobCleanupWorker struct {
	jobs            repository.SyncJobRepository
	retention       time.Duration
	cleanupInterval time.Duration
	logger          *logger.Logger
}

func NewJobCleanupWorker(jobs repository.SyncJobRepository, retention, cleanupInterval time.Duration, logger *logger.Logger) *JobCleanupWorker {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &JobCleanupWorker{
		jobs:            jobs,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		logger:          logger,
	}
}

func (w *JobCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cleanup(ctx); err != nil {
				w.logger.Error(err, "failed to clean up sync jobs")
			}
		}
	}
}

func (w *JobCleanupWorker) cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-w.retention)

	rows, err := w.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete finished jobs: %w", err)
	}
	if rows > 0 {
		w.logger.Info("cleaned up finished sync jobs", "rows", rows)
	}
	return nil
}
