// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/common/metrics"
	"jobboard-notifier/internal/common/validation"
	"jobboard-notifier/internal/models"
	"jobboard-notifier/internal/sink"
)

// Notification is one batch for one recipient. Alert is set for job_alert
// notifications and nil for related_job ones.
type Notification struct {
	Type      models.NotificationType
	Recipient models.User
	Alert     *models.JobAlert
	Jobs      []models.Job
}

// Result is what a Send produced. Status is sent, failed, or empty when
// nothing was delivered because every job had already been sent.
type Result struct {
	Status       models.NotificationStatus
	Logs         []models.NotificationLog
	Deduplicated int
}

// Failed reports whether delivery was attempted and the sink rejected it.
func (r *Result) Failed() bool {
	return r.Status == models.NotificationStatusFailed
}

// LogWriter persists notification logs.
type LogWriter interface {
	Insert(ctx context.Context, logs []models.NotificationLog) ([]models.NotificationLog, error)
}

// Deduper filters out jobs already delivered to a user.
type Deduper interface {
	Unsent(ctx context.Context, t models.NotificationType, userID int64, jobs []models.Job) ([]models.Job, error)
	MarkSent(ctx context.Context, t models.NotificationType, userID int64, jobs []models.Job) error
}

type Dispatcher struct {
	sink     sink.Sink
	logs     LogWriter
	dedupe   Deduper
	renderer *Renderer
	log      logger.Logger
	now      func() time.Time
}

// New builds a Dispatcher. dedupe may be nil.
func New(s sink.Sink, logs LogWriter, dedupe Deduper, renderer *Renderer, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		sink:     s,
		logs:     logs,
		dedupe:   dedupe,
		renderer: renderer,
		log:      log.WithFields(map[string]interface{}{"component": "dispatcher", "sink": s.Name()}),
		now:      time.Now,
	}
}

// Send delivers one batch and records the outcome. A sink failure is
// recorded as a failed log and is not returned; only rendering and log
// storage failures are.
func (d *Dispatcher) Send(ctx context.Context, n Notification) (*Result, error) {
	result := &Result{}
	if len(n.Jobs) == 0 {
		return result, nil
	}

	log := d.log.WithFields(map[string]interface{}{
		"type":   string(n.Type),
		"userId": n.Recipient.ID,
	})

	jobs := n.Jobs
	if d.dedupe != nil {
		unsent, err := d.dedupe.Unsent(ctx, n.Type, n.Recipient.ID, jobs)
		if err != nil {
			log.Warn("dedupe check failed, sending full batch", map[string]interface{}{"error": err.Error()})
		} else {
			result.Deduplicated = len(jobs) - len(unsent)
			jobs = unsent
		}
		if result.Deduplicated > 0 {
			metrics.NotificationsDeduplicated.WithLabelValues(string(n.Type)).Add(float64(result.Deduplicated))
		}
		if len(jobs) == 0 {
			log.Debug("all jobs already delivered", map[string]interface{}{"deduplicated": result.Deduplicated})
			return result, nil
		}
	}
	n.Jobs = jobs

	subject := d.renderer.Subject(n)
	body, err := d.renderer.Body(n)
	if err != nil {
		return nil, err
	}

	var alertID *int64
	if n.Alert != nil {
		id := n.Alert.ID
		alertID = &id
	}

	recipient := d.address(n.Recipient)
	deliverErr := d.deliver(ctx, recipient, subject, body)

	var logs []models.NotificationLog
	if deliverErr != nil {
		msg := deliverErr.Error()
		logs = []models.NotificationLog{{
			UserID:         n.Recipient.ID,
			JobAlertID:     alertID,
			Type:           n.Type,
			Title:          failedTitle(n.Type),
			Message:        failedMessage(n.Type),
			Status:         models.NotificationStatusFailed,
			DeliveryMethod: string(d.sink.Channel()),
			ErrorMessage:   &msg,
		}}
		result.Status = models.NotificationStatusFailed
		stdErr := errors.NewNotificationSendFailedError(string(n.Type), deliverErr)
		log.Error("notification delivery failed", map[string]interface{}{
			"errorCode": stdErr.Code,
			"error":     stdErr.Details,
			"category":  errors.GetErrorCategory(stdErr.Code),
			"jobs":      len(jobs),
		})
	} else {
		sentAt := d.now()
		logs = make([]models.NotificationLog, 0, len(jobs))
		for _, j := range jobs {
			jobID := j.ID
			logs = append(logs, models.NotificationLog{
				UserID:         n.Recipient.ID,
				JobAlertID:     alertID,
				JobID:          &jobID,
				Type:           n.Type,
				Title:          subject,
				Message:        logMessage(n.Type, j),
				Status:         models.NotificationStatusSent,
				DeliveryMethod: string(d.sink.Channel()),
				SentAt:         &sentAt,
			})
		}
		result.Status = models.NotificationStatusSent
		log.Info("notification sent", map[string]interface{}{"jobs": len(jobs)})
	}
	metrics.NotificationsSent.WithLabelValues(string(n.Type), string(result.Status)).Inc()

	stored, err := d.logs.Insert(ctx, logs)
	if err != nil {
		return nil, err
	}
	result.Logs = stored

	if result.Status == models.NotificationStatusSent && d.dedupe != nil {
		if err := d.dedupe.MarkSent(ctx, n.Type, n.Recipient.ID, jobs); err != nil {
			log.Warn("failed to record delivery markers", map[string]interface{}{"error": err.Error()})
		}
	}
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return fmt.Errorf("recipient has no usable %s address", d.sink.Channel())
	}
	return d.sink.Deliver(ctx, recipient, subject, body)
}

// address returns the recipient for the sink's channel, or "" when the
// user has none or it is malformed.
func (d *Dispatcher) address(u models.User) string {
	if d.sink.Channel() == sink.ChannelSMS {
		if !validation.ValidatePhone(u.Phone) {
			return ""
		}
		return u.Phone
	}
	if !validation.ValidateEmail(u.Email) {
		return ""
	}
	return u.Email
}
