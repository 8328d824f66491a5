// internal/common/errors/errors_test.go
package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	messages []string
	fields   []map[string]interface{}
}

func (r *recordingLogger) Error(msg string, fields map[string]interface{}) {
	r.messages = append(r.messages, msg)
	r.fields = append(r.fields, fields)
}

func TestStandardError_Error(t *testing.T) {
	err := NewUnknownQueueTypeError("carrier_pigeon")
	assert.Equal(t, "StandardError[UNKNOWN_QUEUE_TYPE]: Unknown queue type", err.Error())
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Details, "carrier_pigeon")
	assert.False(t, err.Timestamp.IsZero())
}

func TestGetRetryCount(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeQueryExecutionFailed, 3},
		{ErrCodeNotificationSendFailed, 3},
		{ErrCodeQueryTimeout, 2},
		{ErrCodeSearchTimeout, 2},
		{ErrCodeUnknownQueueType, 0},
		{ErrCodeInvalidPayload, 0},
		{"SOMETHING_ELSE", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetRetryCount(tt.code))
			assert.Equal(t, tt.expected > 0, IsRetryableErrorCode(tt.code))
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "queue", GetErrorCategory(ErrCodeUnknownQueueType))
	assert.Equal(t, "queue", GetErrorCategory(ErrCodeInvalidPayload))
	assert.Equal(t, "notification", GetErrorCategory(ErrCodeNotificationSendFailed))
	assert.Equal(t, "search", GetErrorCategory(ErrCodeSearchQueryFailed))
	assert.Equal(t, "database", GetErrorCategory(ErrCodeQueryExecutionFailed))
	assert.Equal(t, "scheduler", GetErrorCategory(ErrCodeTaskNotFound))
	assert.Equal(t, "internal", GetErrorCategory("INTERNAL_ERROR"))
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	wrapped := fmt.Errorf("handler: %w", NewJobNotFoundError(42))
	stdErr := Normalize(wrapped)
	require.NotNil(t, stdErr)
	assert.Equal(t, ErrCodeJobNotFound, stdErr.Code)

	timeout := Normalize(fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrorCode("TIMEOUT_ERROR"), timeout.Code)
	assert.True(t, timeout.Retryable)

	plain := Normalize(fmt.Errorf("boom"))
	assert.Equal(t, ErrorCode("INTERNAL_ERROR"), plain.Code)
	assert.True(t, plain.Retryable)
}

func TestErrorHandler_ShouldRetry(t *testing.T) {
	h := NewErrorHandler(nil)

	assert.True(t, h.ShouldRetry(fmt.Errorf("transient"), 1, 3))
	assert.True(t, h.ShouldRetry(fmt.Errorf("transient"), 2, 3))
	assert.False(t, h.ShouldRetry(fmt.Errorf("transient"), 3, 3), "exhausted attempts are terminal")
	assert.False(t, h.ShouldRetry(NewUnknownQueueTypeError("x"), 1, 3), "non-retryable codes fail immediately")
	assert.False(t, h.ShouldRetry(nil, 1, 3))
}

func TestErrorHandler_HandleItemError(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	stdErr, retry := h.HandleItemError(7, "new_job_posting", NewJobNotFoundError(99), 1, 3)
	assert.True(t, retry)
	assert.Equal(t, ErrCodeJobNotFound, stdErr.Code)

	require.Len(t, log.messages, 1)
	assert.Equal(t, "queue item failed", log.messages[0])
	assert.Equal(t, int64(7), log.fields[0]["itemId"])
	assert.Equal(t, true, log.fields[0]["willRetry"])
	assert.Equal(t, "database", log.fields[0]["category"])
}

func TestStandardError_WithMetadata(t *testing.T) {
	err := NewTaskNotFoundError("nope").WithMetadata("known", []string{"job-alerts"})
	assert.Equal(t, []string{"job-alerts"}, err.Metadata["known"])
}
