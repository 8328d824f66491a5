// internal/sink/webhook.go
package sink

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	commonhttp "jobboard-notifier/internal/common/http"

	"github.com/google/uuid"
)

const (
	SignatureHeader = "X-Notifier-Signature"
	DeliveryHeader  = "X-Notifier-Delivery"
)

type webhookPayload struct {
	ID      string    `json:"id"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}

// WebhookSink posts each notification as JSON. When a secret is set the
// body is signed with HMAC-SHA256 in SignatureHeader.
type WebhookSink struct {
	client *commonhttp.Client
	url    string
	secret string
}

func NewWebhookSink(client *commonhttp.Client, url, secret string) *WebhookSink {
	return &WebhookSink{client: client, url: url, secret: secret}
}

func (s *WebhookSink) Name() string     { return "webhook" }
func (s *WebhookSink) Channel() Channel { return ChannelEmail }

func (s *WebhookSink) Deliver(ctx context.Context, recipient, subject, body string) error {
	deliveryID := uuid.NewString()
	payload, err := json.Marshal(webhookPayload{
		ID:      deliveryID,
		To:      recipient,
		Subject: subject,
		Body:    body,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	headers := map[string]string{DeliveryHeader: deliveryID}
	if s.secret != "" {
		headers[SignatureHeader] = Sign(s.secret, payload)
	}

	if err := s.client.PostJSON(ctx, s.url, payload, headers); err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	return nil
}

// Sign returns "sha256=<hex hmac>" of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
