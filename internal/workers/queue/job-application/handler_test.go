// internal/workers/queue/job-application/handler_test.go
package jobapplication

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func createTestHandler() (*Handler, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return NewHandler(&Config{Timeout: time.Second}, logger.NewZapAdapter(zap.New(core))), logs
}

func TestHandler_Handle(t *testing.T) {
	h, logs := createTestHandler()
	jobID := int64(12)

	err := h.Handle(context.Background(), models.QueueItem{
		ID:        3,
		JobID:     &jobID,
		QueueType: TaskType,
		Payload:   json.RawMessage(`{"applicantId": 99}`),
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("job application processed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 12, fields["jobId"])
	assert.EqualValues(t, 99, fields["applicantId"])
	assert.Equal(t, TaskType, fields["taskType"])
}

func TestHandler_Handle_MalformedPayload(t *testing.T) {
	h, _ := createTestHandler()
	err := h.Handle(context.Background(), models.QueueItem{ID: 3, Payload: json.RawMessage(`[1,`)})

	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, errors.ErrCodeInvalidPayload, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

func TestHandler_Execute(t *testing.T) {
	h, _ := createTestHandler()
	out, err := h.Execute(context.Background(), &Input{JobID: 5})
	require.NoError(t, err)
	assert.Equal(t, &Output{JobID: 5, Status: StatusAcknowledged}, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Execute(ctx, &Input{JobID: 5})
	assert.ErrorIs(t, err, context.Canceled)
}
