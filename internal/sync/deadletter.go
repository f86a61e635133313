package sync

import (
	"context"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/email"
	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	"github.com/uniboxhq/inbox-sync/pkg/messaging"
)

// DeadLetterNotifier alerts the operator when a job exhausts its retry
// budget. The orchestrator already logs and counts the event; this is
// the human-facing channel plus a pub/sub event for dashboards.
type DeadLetterNotifier struct {
	email  email.Service
	events messaging.Broker
	logger *logger.Logger
}

func NewDeadLetterNotifier(email email.Service, events messaging.Broker, logger *logger.Logger) *DeadLetterNotifier {
	return &DeadLetterNotifier{email: email, events: events, logger: logger}
}

func (n *DeadLetterNotifier) ReportDeadLetter(ctx context.Context, job *model.SyncJob, cause error) {
	err := n.email.SendDeadLetterAlert(ctx, job.ID.String(), string(job.SourceKind), cause.Error())
	if err != nil {
		n.logger.Error(err, "failed to send dead-letter alert", "job_id", job.ID.String())
	}

	if n.events == nil {
		return
	}
	event := messaging.Event{
		Type:       "job_dead_lettered",
		UserID:     job.UserID.String(),
		EntityID:   job.ID.String(),
		Source:     string(job.SourceKind),
		Payload:    map[string]string{"cause": cause.Error()},
		OccurredAt: time.Now().UTC(),
	}
	if err := n.events.Publish(ctx, messaging.ChannelJobDeadLettered, event); err != nil {
		n.logger.Warn("failed to publish dead-letter event", "job_id", job.ID.String(), "cause", err.Error())
	}
}
