package worker

import (
	"context"
	"sync"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/repository"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	"github.com/uniboxhq/inbox-sync/pkg/metrics"
	"github.com/uniboxhq/inbox-sync/pkg/queue"
	"github.com/prometheus/client_golang/prometheus"
)

// JobRunner executes the business side of one sync job.
type JobRunner interface {
	Run(ctx context.Context, job *model.SyncJob) error
}

// DeadLetterReporter is notified exactly once per dead-lettered job.
type DeadLetterReporter interface {
	ReportDeadLetter(ctx context.Context, job *model.SyncJob, cause error)
}

type OrchestratorConfig struct {
	Workers        int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	// DequeueTimeout bounds each blocking poll so shutdown stays
	// responsive.
	DequeueTimeout time.Duration
}

// Orchestrator drains the queue with a pool of workers. Jobs sharing a
// serialization key never run concurrently; everything else does.
type Orchestrator struct {
	queue    queue.Queue
	jobs     repository.SyncJobRepository
	runner   JobRunner
	reporter DeadLetterReporter
	config   OrchestratorConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	keyLock map[string]*sync.Mutex
}

func NewOrchestrator(
	q queue.Queue,
	jobs repository.SyncJobRepository,
	runner JobRunner,
	reporter DeadLetterReporter,
	config OrchestratorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 30 * time.Second
	}
	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = 5 * time.Second
	}
	return &Orchestrator{
		queue:    q,
		jobs:     jobs,
		runner:   runner,
		reporter: reporter,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		keyLock:  make(map[string]*sync.Mutex),
	}
}

// Start runs the worker pool until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.Info("starting sync orchestrator", "workers", o.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < o.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.workerLoop(ctx)
		}()
	}
	wg.Wait()
	o.logger.Info("sync orchestrator stopped")
}

func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := o.queue.DequeueWithLease(ctx, o.config.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Error(err, "failed to dequeue job")
			continue
		}
		if msg == nil {
			continue
		}
		o.handle(ctx, msg)
	}
}

func (o *Orchestrator) handle(ctx context.Context, msg *queue.Message) {
	// The queue can deliver two jobs with the same key to different
	// workers; the key mutex turns that into strict serial execution.
	lock := o.lockFor(msg.Key)
	lock.Lock()
	defer lock.Unlock()

	job, err := o.jobs.Get(ctx, msg.JobID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrNotFound {
			// Row is gone (retention cleanup); drop the message.
			o.ack(ctx, msg)
			return
		}
		o.logger.Error(err, "failed to load job", "job_id", msg.JobID.String())
		o.nack(ctx, msg, o.config.RetryBaseDelay)
		return
	}

	switch job.Status {
	case model.JobStatusCompleted, model.JobStatusDeadLettered:
		// Redelivery of a finished job.
		o.ack(ctx, msg)
		return
	}
	if job.NotBefore != nil && time.Now().Before(*job.NotBefore) {
		o.nack(ctx, msg, time.Until(*job.NotBefore))
		return
	}

	if err := o.jobs.MarkRunning(ctx, job.ID); err != nil {
		o.logger.Error(err, "failed to mark job running", "job_id", job.ID.String())
		o.nack(ctx, msg, o.config.RetryBaseDelay)
		return
	}
	job.Attempts++

	timer := prometheus.NewTimer(o.metrics.JobDuration.WithLabelValues(string(job.SourceKind)))
	runErr := o.runner.Run(ctx, job)
	timer.ObserveDuration()

	if runErr == nil {
		if err := o.jobs.MarkCompleted(ctx, job.ID); err != nil {
			o.logger.Error(err, "failed to mark job completed", "job_id", job.ID.String())
		}
		o.metrics.JobsProcessed.WithLabelValues(string(job.SourceKind)).Inc()
		o.ack(ctx, msg)
		return
	}

	o.handleFailure(ctx, msg, job, runErr)
}

func (o *Orchestrator) handleFailure(ctx context.Context, msg *queue.Message, job *model.SyncJob, runErr error) {
	retryable := apperrors.Retryable(runErr)
	exhausted := job.Attempts >= o.maxAttemptsFor(job)

	if !retryable || exhausted {
		if retryable {
			// Exhausted a retryable error: dead-letter for operator review.
			o.deadLetter(ctx, msg, job, runErr)
			return
		}
		if err := o.jobs.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
			o.logger.Error(err, "failed to mark job failed", "job_id", job.ID.String())
		}
		o.metrics.JobsFailed.WithLabelValues(string(job.SourceKind)).Inc()
		o.logger.Error(runErr, "job failed terminally",
			"job_id", job.ID.String(), "source", string(job.SourceKind))
		o.ack(ctx, msg)
		return
	}

	delay := o.backoff(job.Attempts, runErr)
	notBefore := time.Now().Add(delay)
	if err := o.jobs.MarkRequeued(ctx, job.ID, runErr.Error(), notBefore); err != nil {
		o.logger.Error(err, "failed to requeue job", "job_id", job.ID.String())
	}
	o.metrics.JobRetries.WithLabelValues(string(job.SourceKind)).Inc()
	o.logger.Warn("retrying job",
		"job_id", job.ID.String(),
		"attempt", job.Attempts,
		"delay", delay.String(),
		"cause", runErr.Error())
	o.nack(ctx, msg, delay)
}

func (o *Orchestrator) deadLetter(ctx context.Context, msg *queue.Message, job *model.SyncJob, cause error) {
	if err := o.jobs.MarkDeadLettered(ctx, job.ID, cause.Error()); err != nil {
		// The update is guarded on status, so zero rows means another
		// delivery already dead-lettered it; report once only.
		if apperrors.CodeOf(err) == apperrors.ErrNotFound {
			o.ack(ctx, msg)
			return
		}
		o.logger.Error(err, "failed to mark job dead-lettered", "job_id", job.ID.String())
		o.nack(ctx, msg, o.config.RetryBaseDelay)
		return
	}

	o.metrics.JobsDeadLettered.Inc()
	o.logger.Error(cause, "job dead-lettered",
		"job_id", job.ID.String(),
		"source", string(job.SourceKind),
		"attempts", job.Attempts)
	if o.reporter != nil {
		o.reporter.ReportDeadLetter(ctx, job, apperrors.DeadLettered(job.ID.String(), cause))
	}
	o.ack(ctx, msg)
}

// maxAttemptsFor prefers the budget stored on the job row; the config
// bound only covers jobs created before the column was populated.
func (o *Orchestrator) maxAttemptsFor(job *model.SyncJob) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	return o.config.MaxAttempts
}

// backoff doubles the base delay per attempt; a provider-supplied
// rate-limit hint overrides the schedule when longer.
func (o *Orchestrator) backoff(attempt int, err error) time.Duration {
	delay := o.config.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if hint := apperrors.BackoffHint(err); hint > delay {
		delay = hint
	}
	return delay
}

func (o *Orchestrator) ack(ctx context.Context, msg *queue.Message) {
	if err := o.queue.Ack(ctx, msg); err != nil {
		o.logger.Error(err, "failed to ack message", "job_id", msg.JobID.String())
	}
}

func (o *Orchestrator) nack(ctx context.Context, msg *queue.Message, delay time.Duration) {
	if err := o.queue.NackWithDelay(ctx, msg, delay); err != nil {
		o.logger.Error(err, "failed to nack message", "job_id", msg.JobID.String())
	}
}

func (o *Orchestrator) lockFor(key string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.keyLock[key]
	if !ok {
		lock = &sync.Mutex{}
		o.keyLock[key] = lock
	}
	return lock
}
