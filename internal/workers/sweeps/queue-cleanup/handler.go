// internal/workers/sweeps/queue-cleanup/handler.go
package queuecleanup

import (
	"context"

	"jobboard-notifier/internal/common/logger"
)

const (
	TaskType = "queue-cleanup"
)

type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// Handler removes finished queue items past the retention window.
type Handler struct {
	config *Config
	queue  Cleaner
	logger logger.Logger
}

func NewHandler(config *Config, queue Cleaner, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		queue:  queue,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Run(ctx context.Context) error {
	output, err := h.execute(ctx, &Input{})
	if err != nil {
		return err
	}
	h.logger.Info("queue cleanup finished", map[string]interface{}{
		"deleted":       output.Deleted,
		"retentionDays": output.RetentionDays,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	days := input.RetentionDays
	if days <= 0 {
		days = h.config.RetentionDays
	}
	n, err := h.queue.Cleanup(ctx, days)
	if err != nil {
		return nil, err
	}
	return &Output{Deleted: n, RetentionDays: days}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
