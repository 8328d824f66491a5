// internal/workers/sweeps/notification-cleanup/handler.go
package notificationcleanup

import (
	"context"
	stderrors "errors"
	"fmt"

	"jobboard-notifier/internal/common/logger"
)

const (
	TaskType = "notification-cleanup"
)

// Pruner deletes records older than a number of months.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, months int) (int64, error)
}

// Handler prunes old notification logs and search history. Both stores
// are attempted even when one fails.
type Handler struct {
	config   *Config
	logs     Pruner
	searches Pruner
	logger   logger.Logger
}

// NewHandler builds the cleanup task. searches may be nil when search
// history is not configured.
func NewHandler(config *Config, logs Pruner, searches Pruner, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		logs:     logs,
		searches: searches,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Run(ctx context.Context) error {
	output, err := h.execute(ctx, &Input{})
	h.logger.Info("notification cleanup finished", map[string]interface{}{
		"logsDeleted":     output.LogsDeleted,
		"searchesDeleted": output.SearchesDeleted,
	})
	return err
}

func (h *Handler) execute(ctx context.Context, _ *Input) (*Output, error) {
	output := &Output{}
	var errs []error

	n, err := h.logs.DeleteOlderThan(ctx, h.config.LogRetentionMonths)
	if err != nil {
		errs = append(errs, fmt.Errorf("notification logs: %w", err))
	}
	output.LogsDeleted = n

	if h.searches != nil {
		n, err := h.searches.DeleteOlderThan(ctx, h.config.SearchRetentionMonths)
		if err != nil {
			errs = append(errs, fmt.Errorf("search history: %w", err))
		}
		output.SearchesDeleted = n
	}

	return output, stderrors.Join(errs...)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
