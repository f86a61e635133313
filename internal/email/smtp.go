package email

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/uniboxhq/inbox-sync/internal/config"
)

type smtpService struct {
	dialer   *gomail.Dialer
	from     string
	operator string
}

// NewSMTPService sends mail through a plain SMTP relay.
func NewSMTPService(cfg config.SMTPConfig) Service {
	return &smtpService{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		operator: cfg.OperatorEmail,
	}
}

func (s *smtpService) SendDeadLetterAlert(ctx context.Context, jobID, source, cause string) error {
	subject := fmt.Sprintf("[inbox-sync] %s job %s dead-lettered", source, jobID)
	body := fmt.Sprintf(
		"Sync job %s for source %s exhausted its retry budget.\n\nLast error:\n%s\n",
		jobID, source, cause,
	)
	return s.send(ctx, s.operator, subject, body)
}

func (s *smtpService) SendConnectionFailing(ctx context.Context, to, source, reason string) error {
	subject := fmt.Sprintf("Your %s connection needs attention", source)
	body := fmt.Sprintf(
		"Syncing from %s stopped working and needs you to reconnect.\n\nDetails: %s\n",
		source, reason,
	)
	return s.send(ctx, to, subject, body)
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	return s.send(ctx, to, subject, content)
}

func (s *smtpService) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
