package email

import (
	"context"
)

type Service interface {
	// SendDeadLetterAlert notifies the operator that a sync job
	// exhausted its retries.
	SendDeadLetterAlert(ctx context.Context, jobID, source, cause string) error
	// SendConnectionFailing tells a user their integration needs to be
	// reconnected.
	SendConnectionFailing(ctx context.Context, to, source, reason string) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}
