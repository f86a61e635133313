package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/repository"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	"github.com/uniboxhq/inbox-sync/pkg/metrics"
	"github.com/uniboxhq/inbox-sync/pkg/queue"
)

type SchedulerConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// Scheduler enqueues a periodic sync job for every syncable connection.
// Dedup keys collapse the enqueue when the previous cycle's job for the
// same (user, source) pair is still pending.
type Scheduler struct {
	connections repository.ConnectionRepository
	jobs        repository.SyncJobRepository
	queue       queue.Queue
	config      SchedulerConfig
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

func NewScheduler(
	connections repository.ConnectionRepository,
	jobs repository.SyncJobRepository,
	q queue.Queue,
	config SchedulerConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	return &Scheduler{
		connections: connections,
		jobs:        jobs,
		queue:       q,
		config:      config,
		logger:      logger,
		metrics:     metrics,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("starting sync scheduler", "interval", s.config.Interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down sync scheduler")
			return
		case <-ticker.C:
			if err := s.scheduleAll(ctx); err != nil {
				s.logger.Error(err, "failed to schedule sync cycle")
			}
			s.observeDepth(ctx)
		}
	}
}

func (s *Scheduler) scheduleAll(ctx context.Context) error {
	conns, err := s.connections.ListSyncable(ctx)
	if err != nil {
		return fmt.Errorf("failed to list syncable connections: %w", err)
	}

	for _, conn := range conns {
		if err := s.schedule(ctx, conn); err != nil {
			s.logger.Error(err, "failed to schedule sync job",
				"user_id", conn.UserID.String(), "source", string(conn.SourceKind))
		}
	}
	return nil
}

func (s *Scheduler) schedule(ctx context.Context, conn *model.IntegrationConnection) error {
	job := &model.SyncJob{
		UserID:      conn.UserID,
		SourceKind:  conn.SourceKind,
		Trigger:     model.JobTriggerPeriodic,
		MaxAttempts: s.config.MaxAttempts,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return err
	}

	enqueued, err := s.queue.Enqueue(ctx, queue.Message{JobID: job.ID, Key: job.Key()}, DedupKey(job))
	if err != nil {
		return err
	}
	if !enqueued {
		// The previous cycle's job is still pending; this row will never
		// run.
		return s.jobs.MarkFailed(ctx, job.ID, "superseded by a pending job")
	}
	return nil
}

func (s *Scheduler) observeDepth(ctx context.Context) {
	depth, err := s.queue.Depth(ctx)
	if err != nil {
		s.logger.Error(err, "failed to read queue depth")
		return
	}
	s.metrics.QueueDepth.Set(float64(depth))
}

// DedupKey collapses duplicate enqueues per serialization key and
// trigger while one is still pending.
func DedupKey(job *model.SyncJob) string {
	return fmt.Sprintf("%s:%s", job.Key(), job.Trigger)
}
