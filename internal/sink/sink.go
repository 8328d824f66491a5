// internal/sink/sink.go
package sink

import (
	"context"
	"fmt"
	"time"

	"jobboard-notifier/internal/common/aws"
	"jobboard-notifier/internal/common/config"
	commonhttp "jobboard-notifier/internal/common/http"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/common/validation"

	"github.com/resend/resend-go/v2"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Sink delivers a rendered notification to one recipient address. The
// address is an email for ChannelEmail sinks and a phone number for
// ChannelSMS sinks.
type Sink interface {
	Name() string
	Channel() Channel
	Deliver(ctx context.Context, recipient, subject, body string) error
}

// LogSink writes notifications to the log instead of sending them.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log.WithFields(map[string]interface{}{"sink": "log"})}
}

func (s *LogSink) Name() string     { return "log" }
func (s *LogSink) Channel() Channel { return ChannelEmail }

func (s *LogSink) Deliver(ctx context.Context, recipient, subject, body string) error {
	s.log.Info("notification delivered", map[string]interface{}{
		"recipient": recipient,
		"subject":   subject,
		"bodyBytes": len(body),
	})
	return nil
}

// New builds the sink selected by cfg.Notifications.Sink.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (Sink, error) {
	n := cfg.Notifications
	i := cfg.Integrations

	switch n.Sink {
	case "", "log":
		return NewLogSink(log), nil

	case "ses":
		client, err := aws.NewSESClient(ctx, i.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		return NewSESSink(client, n.FromEmail), nil

	case "sns":
		client, err := aws.NewSNSClient(ctx, i.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		return NewSNSSink(client, i.AWS.SNS.DefaultSMSSenderID), nil

	case "resend":
		from := i.Resend.FromEmail
		if from == "" {
			from = n.FromEmail
		}
		return NewResendSink(resend.NewClient(i.Resend.APIKey).Emails, from), nil

	case "webhook":
		if !validation.ValidateURL(i.Webhook.URL) {
			return nil, fmt.Errorf("webhook sink needs an http(s) url, got %q", i.Webhook.URL)
		}
		timeout := time.Duration(i.Webhook.Timeout) * time.Millisecond
		return NewWebhookSink(commonhttp.NewClient(timeout), i.Webhook.URL, i.Webhook.Secret), nil

	default:
		return nil, fmt.Errorf("unknown sink %q", n.Sink)
	}
}
