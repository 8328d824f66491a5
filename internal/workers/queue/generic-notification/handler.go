// internal/workers/queue/generic-notification/handler.go
package genericnotification

import (
	"context"
	"encoding/json"
	"fmt"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"
)

const (
	TaskType = "generic_notification"
)

// Handler records generic notification payloads. Delivery for this type is
// not wired to a sink yet.
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
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	var payload interface{}
	if len(item.Payload) > 0 {
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return errors.NewInvalidPayloadError(TaskType, []string{fmt.Sprintf("parse payload: %v", err)})
		}
	}

	output, err := h.execute(ctx, &Input{Payload: item.Payload})
	if err != nil {
		return err
	}

	h.logger.Info("generic notification processed", map[string]interface{}{
		"itemId":  item.ID,
		"payload": payload,
		"bytes":   output.Bytes,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Output{Status: StatusLogged, Bytes: len(input.Payload)}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
