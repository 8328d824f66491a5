// internal/workers/queue/new-job-posting/handler.go
package newjobposting

import (
	"context"
	"encoding/json"
	"fmt"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/dispatcher"
	"jobboard-notifier/internal/matcher"
	"jobboard-notifier/internal/models"
)

const (
	TaskType = "new_job_posting"
)

type JobLoader interface {
	GetByID(ctx context.Context, id int64) (*models.Job, error)
}

type AlertLister interface {
	ListActiveWithUsers(ctx context.Context) ([]models.AlertRecipient, error)
}

type Sender interface {
	Send(ctx context.Context, n dispatcher.Notification) (*dispatcher.Result, error)
}

// Handler fans a newly posted job out to every active alert it matches.
// It never advances an alert's last_notification_sent; that belongs to the
// job-alerts sweep.
type Handler struct {
	config  *Config
	jobs    JobLoader
	alerts  AlertLister
	matcher *matcher.Matcher
	sender  Sender
	logger  logger.Logger
}

func NewHandler(config *Config, jobs JobLoader, alerts AlertLister, m *matcher.Matcher, sender Sender, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		jobs:    jobs,
		alerts:  alerts,
		matcher: m,
		sender:  sender,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Handle satisfies queue.Handler.
func (h *Handler) Handle(ctx context.Context, item models.QueueItem) error {
	var input Input
	if len(item.Payload) > 0 {
		if err := json.Unmarshal(item.Payload, &input); err != nil {
			return errors.NewInvalidPayloadError(TaskType, []string{fmt.Sprintf("parse payload: %v", err)})
		}
	}
	if input.JobID == 0 && item.JobID != nil {
		input.JobID = *item.JobID
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		return err
	}

	h.logger.Info("job fan-out finished", map[string]interface{}{
		"itemId":          item.ID,
		"jobId":           output.JobID,
		"alertsEvaluated": output.AlertsEvaluated,
		"matched":         output.Matched,
		"sent":            output.Sent,
		"failed":          output.Failed,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.JobID <= 0 {
		return nil, errors.NewInvalidPayloadError(TaskType, []string{"jobId is required"})
	}

	job, err := h.jobs.GetByID(ctx, input.JobID)
	if err != nil {
		return nil, err
	}

	recipients, err := h.alerts.ListActiveWithUsers(ctx)
	if err != nil {
		return nil, err
	}

	output := &Output{JobID: job.ID, AlertsEvaluated: len(recipients)}
	for _, rec := range recipients {
		if !h.matcher.Matches(*job, rec.Alert) {
			continue
		}
		output.Matched++

		alert := rec.Alert
		result, err := h.sender.Send(ctx, dispatcher.Notification{
			Type:      models.NotificationTypeJobAlert,
			Recipient: rec.User,
			Alert:     &alert,
			Jobs:      []models.Job{*job},
		})
		if err != nil {
			output.Failed++
			h.logger.Error("job alert dispatch failed", map[string]interface{}{
				"alertId": alert.ID,
				"userId":  rec.User.ID,
				"error":   err.Error(),
			})
			continue
		}

		switch {
		case result.Failed():
			output.Failed++
		case len(result.Logs) > 0:
			output.Sent++
		default:
			output.Deduplicated++
		}
	}
	return output, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
