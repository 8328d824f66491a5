// internal/workers/sweeps/job-alerts/handler.go
package jobalerts

import (
	"context"
	"time"

	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/dispatcher"
	"jobboard-notifier/internal/matcher"
	"jobboard-notifier/internal/models"
)

const (
	TaskType = "job-alerts"
)

type AlertStore interface {
	ListActiveWithUsers(ctx context.Context) ([]models.AlertRecipient, error)
	MarkNotified(ctx context.Context, alertID int64, asOf time.Time) error
}

type JobFinder interface {
	FindForAlert(ctx context.Context, alert models.JobAlert, m *matcher.Matcher, asOf time.Time, limit int) ([]models.Job, error)
}

type Sender interface {
	Send(ctx context.Context, n dispatcher.Notification) (*dispatcher.Result, error)
}

// Handler re-derives each active alert's matches since it was last
// notified and sends them as one batch per alert.
type Handler struct {
	config  *Config
	alerts  AlertStore
	jobs    JobFinder
	matcher *matcher.Matcher
	sender  Sender
	logger  logger.Logger
	now     func() time.Time
}

func NewHandler(config *Config, alerts AlertStore, jobs JobFinder, m *matcher.Matcher, sender Sender, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		alerts:  alerts,
		jobs:    jobs,
		matcher: m,
		sender:  sender,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:     time.Now,
	}
}

// Run is the scheduler entry point.
func (h *Handler) Run(ctx context.Context) error {
	output, err := h.execute(ctx, &Input{})
	if err != nil {
		return err
	}
	h.logger.Info("job alert sweep finished", map[string]interface{}{
		"alertsChecked":  output.AlertsChecked,
		"alertsNotified": output.AlertsNotified,
		"jobsMatched":    output.JobsMatched,
		"failed":         output.Failed,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	asOf := input.AsOf
	if asOf.IsZero() {
		asOf = h.now()
	}

	recipients, err := h.alerts.ListActiveWithUsers(ctx)
	if err != nil {
		return nil, err
	}

	output := &Output{AlertsChecked: len(recipients), AsOf: asOf}
	for _, rec := range recipients {
		if ctx.Err() != nil {
			return output, ctx.Err()
		}
		matched, ok := h.processAlert(ctx, rec, asOf)
		output.JobsMatched += matched
		if !ok {
			output.Failed++
		} else if matched > 0 {
			output.AlertsNotified++
		}
	}
	return output, nil
}

// processAlert returns how many jobs matched and whether the alert was
// handled without error.
func (h *Handler) processAlert(ctx context.Context, rec models.AlertRecipient, asOf time.Time) (int, bool) {
	alert := rec.Alert
	log := h.logger.WithFields(map[string]interface{}{"alertId": alert.ID, "userId": rec.User.ID})

	jobs, err := h.jobs.FindForAlert(ctx, alert, h.matcher, asOf, h.config.BatchLimit)
	if err != nil {
		log.Error("failed to load matching jobs", map[string]interface{}{"error": err.Error()})
		return 0, false
	}
	if len(jobs) == 0 {
		return 0, true
	}

	result, err := h.sender.Send(ctx, dispatcher.Notification{
		Type:      models.NotificationTypeJobAlert,
		Recipient: rec.User,
		Alert:     &alert,
		Jobs:      jobs,
	})
	if err != nil {
		log.Error("job alert dispatch failed", map[string]interface{}{"error": err.Error()})
		return len(jobs), false
	}
	if result.Failed() {
		// left in place so the next sweep retries the same window
		return len(jobs), false
	}

	if err := h.alerts.MarkNotified(ctx, alert.ID, asOf); err != nil {
		log.Error("failed to advance last notification time", map[string]interface{}{"error": err.Error()})
		return len(jobs), false
	}
	log.Info("job alert sent", map[string]interface{}{"jobs": len(jobs), "deduplicated": result.Deduplicated})
	return len(jobs), true
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
