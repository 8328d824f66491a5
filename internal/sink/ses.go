// internal/sink/ses.go
package sink

import (
	"context"
	"fmt"

	"jobboard-notifier/internal/common/aws"
)

type SESSink struct {
	client aws.SESService
	from   string
}

func NewSESSink(client aws.SESService, from string) *SESSink {
	return &SESSink{client: client, from: from}
}

func (s *SESSink) Name() string     { return "ses" }
func (s *SESSink) Channel() Channel { return ChannelEmail }

func (s *SESSink) Deliver(ctx context.Context, recipient, subject, body string) error {
	input := aws.BuildEmailInput(s.from, recipient, subject, body, PlainText(body))
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}
