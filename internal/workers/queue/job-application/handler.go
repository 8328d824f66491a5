// internal/workers/queue/job-application/handler.go
package jobapplication

import (
	"context"
	"encoding/json"
	"fmt"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"
)

const (
	TaskType = "job_application"
)

// Handler acknowledges application events. Applicant and employer
// notifications hook in here.
type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

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
	h.logger.Info("job application processed", map[string]interface{}{
		"itemId":      item.ID,
		"jobId":       output.JobID,
		"applicantId": input.ApplicantID,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Output{JobID: input.JobID, Status: StatusAcknowledged}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
