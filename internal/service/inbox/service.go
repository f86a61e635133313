// Package inbox is the user-facing surface of the sync engine:
// listing and editing notifications and tasks, managing connections,
// and turning webhooks and manual refreshes into sync jobs.
package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/connector"
	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/repository"
	syncengine "github.com/uniboxhq/inbox-sync/internal/sync"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	"github.com/uniboxhq/inbox-sync/pkg/messaging"
	"github.com/uniboxhq/inbox-sync/pkg/queue"
	"github.com/uniboxhq/inbox-sync/pkg/worker"
)

type Service struct {
	notifications repository.NotificationRepository
	tasks         repository.TaskRepository
	connections   repository.ConnectionRepository
	jobs          repository.SyncJobRepository
	queue         queue.Queue
	registry      *connector.Registry
	coordinator   *syncengine.Coordinator
	events        messaging.Broker
	maxAttempts   int
	logger        *logger.Logger
}

func NewService(
	notifications repository.NotificationRepository,
	tasks repository.TaskRepository,
	connections repository.ConnectionRepository,
	jobs repository.SyncJobRepository,
	q queue.Queue,
	registry *connector.Registry,
	coordinator *syncengine.Coordinator,
	events messaging.Broker,
	maxAttempts int,
	logger *logger.Logger,
) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Service{
		notifications: notifications,
		tasks:         tasks,
		connections:   connections,
		jobs:          jobs,
		queue:         q,
		registry:      registry,
		coordinator:   coordinator,
		events:        events,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// publish emits a change event. Best effort: a publish failure never
// fails the user's request.
func (s *Service) publish(ctx context.Context, channel string, event messaging.Event) {
	if s.events == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := s.events.Publish(ctx, channel, event); err != nil {
		s.logger.Warn("failed to publish event", "channel", channel, "cause", err.Error())
	}
}

// SyncNow creates and enqueues a manual sync job. When an identical
// job is still pending the existing one is reused and no new work is
// queued.
func (s *Service) SyncNow(ctx context.Context, userID uuid.UUID, kind model.SourceKind) (*model.SyncJob, error) {
	conn, err := s.connections.Get(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if conn.Status == model.ConnectionStatusDisabled {
		return nil, apperrors.Conflict(fmt.Sprintf("%s connection is disabled", kind), nil)
	}

	job := &model.SyncJob{
		UserID:      userID,
		SourceKind:  kind,
		Trigger:     model.JobTriggerManual,
		MaxAttempts: s.maxAttempts,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	enqueued, err := s.queue.Enqueue(ctx, queue.Message{JobID: job.ID, Key: job.Key()}, worker.DedupKey(job))
	if err != nil {
		return nil, err
	}
	if !enqueued {
		if err := s.jobs.MarkFailed(ctx, job.ID, "superseded by a pending job"); err != nil {
			s.logger.Error(err, "failed to mark superseded job", "job_id", job.ID.String())
		}
		return nil, apperrors.Conflict(fmt.Sprintf("a %s sync is already pending", kind), nil)
	}
	return job, nil
}

// IngestWebhook persists a pushed item and enqueues a webhook-triggered
// job to normalize it. The raw payload was already signature-verified
// by the handler.
func (s *Service) IngestWebhook(ctx context.Context, userID uuid.UUID, kind model.SourceKind, payload []byte) (*model.SyncJob, error) {
	conn, err := s.registry.Get(kind)
	if err != nil {
		return nil, apperrors.BadRequest("unsupported source", err)
	}
	raw, err := conn.DecodeWebhook(payload)
	if err != nil {
		return nil, err
	}
	if err := s.coordinator.IngestWebhookItem(ctx, userID, kind, raw); err != nil {
		return nil, err
	}

	job := &model.SyncJob{
		UserID:      userID,
		SourceKind:  kind,
		Trigger:     model.JobTriggerWebhook,
		MaxAttempts: s.maxAttempts,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	enqueued, err := s.queue.Enqueue(ctx, queue.Message{JobID: job.ID, Key: job.Key()}, worker.DedupKey(job))
	if err != nil {
		return nil, err
	}
	if !enqueued {
		// A pending webhook job will pick up this item too.
		if err := s.jobs.MarkFailed(ctx, job.ID, "superseded by a pending job"); err != nil {
			s.logger.Error(err, "failed to mark superseded job", "job_id", job.ID.String())
		}
	}
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*model.SyncJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, apperrors.NotFound("sync job", nil)
	}
	return job, nil
}

func (s *Service) ListNotifications(ctx context.Context, userID uuid.UUID, filter repository.NotificationFilter) ([]*model.Notification, error) {
	return s.notifications.List(ctx, userID, filter)
}

func (s *Service) PatchNotification(ctx context.Context, userID, id uuid.UUID, patch *model.NotificationPatch) (*model.Notification, error) {
	existing, err := s.notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, apperrors.NotFound("notification", nil)
	}
	if status, ok := patch.Status.Get(); ok {
		switch status {
		case model.NotificationStatusUnread, model.NotificationStatusRead,
			model.NotificationStatusDeleted, model.NotificationStatusUnsubscribed:
		default:
			return nil, apperrors.BadRequest(fmt.Sprintf("invalid status %q", status), nil)
		}
	}
	updated, err := s.notifications.Patch(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, messaging.ChannelNotificationUpdated, messaging.Event{
		Type:     "notification_updated",
		UserID:   userID.String(),
		EntityID: updated.ID.String(),
		Source:   string(updated.SourceKind),
	})
	return updated, nil
}

// SnoozeNotification is a convenience wrapper over Patch.
func (s *Service) SnoozeNotification(ctx context.Context, userID, id uuid.UUID, until time.Time) (*model.Notification, error) {
	if until.Before(time.Now()) {
		return nil, apperrors.BadRequest("snooze time must be in the future", nil)
	}
	patch := &model.NotificationPatch{SnoozedUntil: model.SetField(until)}
	return s.PatchNotification(ctx, userID, id, patch)
}

func (s *Service) ListTasks(ctx context.Context, userID uuid.UUID, filter repository.TaskFilter) ([]*model.Task, error) {
	return s.tasks.List(ctx, userID, filter)
}

// CreateTask creates a user-authored task, unlinked to any source item.
func (s *Service) CreateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	if task.Title == "" {
		return nil, apperrors.BadRequest("task title is required", nil)
	}
	if task.Priority != 0 && !task.Priority.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid priority %d", task.Priority), nil)
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, messaging.ChannelTaskUpdated, messaging.Event{
		Type:     "task_created",
		UserID:   task.UserID.String(),
		EntityID: task.ID.String(),
	})
	return task, nil
}

func (s *Service) PatchTask(ctx context.Context, userID, id uuid.UUID, patch *model.TaskPatch) (*model.Task, error) {
	existing, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, apperrors.NotFound("task", nil)
	}
	if priority, ok := patch.Priority.Get(); ok && !priority.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid priority %d", priority), nil)
	}
	updated, err := s.tasks.Patch(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, messaging.ChannelTaskUpdated, messaging.Event{
		Type:     "task_updated",
		UserID:   userID.String(),
		EntityID: updated.ID.String(),
	})
	return updated, nil
}

func (s *Service) ListConnections(ctx context.Context, userID uuid.UUID) ([]*model.IntegrationConnection, error) {
	return s.connections.ListForUser(ctx, userID)
}

func (s *Service) DisableConnection(ctx context.Context, userID uuid.UUID, kind model.SourceKind) error {
	conn, err := s.connections.Get(ctx, userID, kind)
	if err != nil {
		return err
	}
	return s.connections.SetStatus(ctx, conn.ID, model.ConnectionStatusDisabled)
}

func (s *Service) EnableConnection(ctx context.Context, userID uuid.UUID, kind model.SourceKind) error {
	conn, err := s.connections.Get(ctx, userID, kind)
	if err != nil {
		return err
	}
	return s.connections.SetStatus(ctx, conn.ID, model.ConnectionStatusValidated)
}
