// internal/sink/resend.go
package sink

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendEmails is the subset of resend.EmailsSvc the sink uses.
type ResendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type ResendSink struct {
	emails ResendEmails
	from   string
}

func NewResendSink(emails ResendEmails, from string) *ResendSink {
	return &ResendSink{emails: emails, from: from}
}

func (s *ResendSink) Name() string     { return "resend" }
func (s *ResendSink) Channel() Channel { return ChannelEmail }

func (s *ResendSink) Deliver(ctx context.Context, recipient, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{recipient},
		Subject: subject,
		Html:    body,
		Text:    PlainText(body),
	}
	if _, err := s.emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send email via Resend: %w", err)
	}
	return nil
}
