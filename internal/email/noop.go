package email

import "context"

type noopService struct{}

// NewNoopService is used when no SMTP relay is configured.
func NewNoopService() Service {
	return &noopService{}
}

func (noopService) SendDeadLetterAlert(ctx context.Context, jobID, source, cause string) error {
	return nil
}

func (noopService) SendConnectionFailing(ctx context.Context, to, source, reason string) error {
	return nil
}

func (noopService) SendCustom(ctx context.Context, to, subject, content string) error {
	return nil
}
