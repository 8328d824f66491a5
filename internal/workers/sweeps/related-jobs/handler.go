// internal/workers/sweeps/related-jobs/handler.go
package relatedjobs

import (
	"context"
	"time"

	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/dispatcher"
	"jobboard-notifier/internal/models"
)

const (
	TaskType = "related-jobs"
)

type ProfileSource interface {
	AggregateProfiles(ctx context.Context, since time.Time) ([]models.SearchProfile, error)
}

type UserLoader interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error)
}

type JobFinder interface {
	FindRelated(ctx context.Context, profile models.SearchProfile, days, limit int) ([]models.Job, error)
}

type Sender interface {
	Send(ctx context.Context, n dispatcher.Notification) (*dispatcher.Result, error)
}

// Handler recommends recent jobs that resemble what each user searched for
// during the lookback window.
type Handler struct {
	config   *Config
	profiles ProfileSource
	users    UserLoader
	jobs     JobFinder
	sender   Sender
	logger   logger.Logger
	now      func() time.Time
}

func NewHandler(config *Config, profiles ProfileSource, users UserLoader, jobs JobFinder, sender Sender, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		profiles: profiles,
		users:    users,
		jobs:     jobs,
		sender:   sender,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:      time.Now,
	}
}

func (h *Handler) Run(ctx context.Context) error {
	output, err := h.execute(ctx, &Input{})
	if err != nil {
		return err
	}
	h.logger.Info("related jobs sweep finished", map[string]interface{}{
		"usersConsidered": output.UsersConsidered,
		"usersNotified":   output.UsersNotified,
		"usersSkipped":    output.UsersSkipped,
		"failed":          output.Failed,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, _ *Input) (*Output, error) {
	since := h.now().AddDate(0, 0, -h.config.LookbackDays)
	profiles, err := h.profiles.AggregateProfiles(ctx, since)
	if err != nil {
		return nil, err
	}

	output := &Output{UsersConsidered: len(profiles)}
	if len(profiles) == 0 {
		return output, nil
	}

	ids := make([]int64, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}
	users, err := h.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		if ctx.Err() != nil {
			return output, ctx.Err()
		}
		log := h.logger.WithFields(map[string]interface{}{"userId": p.UserID})

		user, ok := users[p.UserID]
		if !ok {
			log.Debug("user no longer exists, skipping", nil)
			output.UsersSkipped++
			continue
		}
		if p.Empty() {
			output.UsersSkipped++
			continue
		}

		jobs, err := h.jobs.FindRelated(ctx, p, h.config.JobWindowDays, h.config.Limit)
		if err != nil {
			log.Error("failed to find related jobs", map[string]interface{}{"error": err.Error()})
			output.Failed++
			continue
		}
		if len(jobs) == 0 {
			continue
		}

		result, err := h.sender.Send(ctx, dispatcher.Notification{
			Type:      models.NotificationTypeRelatedJob,
			Recipient: user,
			Jobs:      jobs,
		})
		if err != nil {
			log.Error("related jobs dispatch failed", map[string]interface{}{"error": err.Error()})
			output.Failed++
			continue
		}
		if result.Failed() {
			output.Failed++
			continue
		}
		if len(result.Logs) > 0 {
			output.UsersNotified++
		}
	}
	return output, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
