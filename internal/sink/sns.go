// internal/sink/sns.go
package sink

import (
	"context"
	"fmt"

	"jobboard-notifier/internal/common/aws"
)

// smsLimit keeps messages within a few SMS segments.
const smsLimit = 480

type SNSSink struct {
	client   aws.SNSService
	senderID string
}

func NewSNSSink(client aws.SNSService, senderID string) *SNSSink {
	return &SNSSink{client: client, senderID: senderID}
}

func (s *SNSSink) Name() string     { return "sns" }
func (s *SNSSink) Channel() Channel { return ChannelSMS }

// Deliver sends the subject and a plain-text rendering of body as one SMS.
func (s *SNSSink) Deliver(ctx context.Context, recipient, subject, body string) error {
	message := subject + "\n" + PlainText(body)
	if r := []rune(message); len(r) > smsLimit {
		message = string(r[:smsLimit-3]) + "..."
	}
	if _, err := s.client.Publish(ctx, aws.BuildSMSInput(recipient, message, s.senderID)); err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
