// internal/common/errors/errors.go
package errors

import (
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	ErrCodeQueueEnqueueFailed     ErrorCode = "QUEUE_ENQUEUE_FAILED"
	ErrCodeQueueItemNotFound      ErrorCode = "QUEUE_ITEM_NOT_FOUND"
	ErrCodeUnknownQueueType       ErrorCode = "UNKNOWN_QUEUE_TYPE"
	ErrCodeInvalidPayload         ErrorCode = "INVALID_PAYLOAD"
	ErrCodeQueueHandlerFailed     ErrorCode = "QUEUE_HANDLER_FAILED"
	ErrCodeJobNotFound            ErrorCode = "JOB_NOT_FOUND"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeNotificationLogFailed  ErrorCode = "NOTIFICATION_LOG_FAILED"

	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeSearchQueryFailed             ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout                 ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeIndexNotFound                 ErrorCode = "INDEX_NOT_FOUND"

	ErrCodeTaskNotFound      ErrorCode = "TASK_NOT_FOUND"
	ErrCodeTaskAlreadyExists ErrorCode = "TASK_ALREADY_EXISTS"
	ErrCodeInvalidSchedule   ErrorCode = "INVALID_SCHEDULE"

	ErrCodeTimeout  ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the normalized error shape logged by every component.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns the error with one metadata entry added.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
}

func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

func NewQueryTimeoutError(operation string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timeout",
		fmt.Sprintf("operation: %s", operation), true)
}

func NewQueueEnqueueFailedError(queueType string, err error) *StandardError {
	return newError(ErrCodeQueueEnqueueFailed, "Failed to enqueue work item",
		fmt.Sprintf("queueType: %s, error: %s", queueType, err.Error()), true)
}

func NewQueueItemNotFoundError(itemID int64) *StandardError {
	return newError(ErrCodeQueueItemNotFound, "Queue item not found",
		fmt.Sprintf("itemId: %d", itemID), false)
}

func NewUnknownQueueTypeError(queueType string) *StandardError {
	return newError(ErrCodeUnknownQueueType, "Unknown queue type",
		fmt.Sprintf("queueType: %s", queueType), false)
}

func NewInvalidPayloadError(queueType string, problems []string) *StandardError {
	return newError(ErrCodeInvalidPayload, "Queue payload failed schema validation",
		fmt.Sprintf("queueType: %s, errors: %s", queueType, strings.Join(problems, "; ")), false)
}

func NewQueueHandlerFailedError(queueType string, err error) *StandardError {
	return newError(ErrCodeQueueHandlerFailed, "Queue item handler failed",
		fmt.Sprintf("queueType: %s, error: %s", queueType, err.Error()), true)
}

func NewJobNotFoundError(jobID int64) *StandardError {
	return newError(ErrCodeJobNotFound, "Job not found",
		fmt.Sprintf("jobId: %d", jobID), true)
}

func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()), true)
}

func NewNotificationLogFailedError(err error) *StandardError {
	return newError(ErrCodeNotificationLogFailed, "Failed to write notification log", err.Error(), true)
}

func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeElasticsearchConnectionFailed, "Elasticsearch connection error", err.Error(), true)
}

func NewSearchQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Elasticsearch query error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

func NewSearchTimeoutError(operation string) *StandardError {
	return newError(ErrCodeSearchTimeout, "Elasticsearch query timeout",
		fmt.Sprintf("operation: %s", operation), true)
}

func NewIndexNotFoundError(indexName string) *StandardError {
	return newError(ErrCodeIndexNotFound, "Elasticsearch index not found",
		fmt.Sprintf("indexName: %s", indexName), false)
}

func NewTaskNotFoundError(name string) *StandardError {
	return newError(ErrCodeTaskNotFound, "Scheduled task not found",
		fmt.Sprintf("task: %s", name), false)
}

func NewTaskAlreadyExistsError(name string) *StandardError {
	return newError(ErrCodeTaskAlreadyExists, fmt.Sprintf("Task %s already exists", name), "", false)
}

func NewInvalidScheduleError(spec string, err error) *StandardError {
	return newError(ErrCodeInvalidSchedule, "Invalid cron expression",
		fmt.Sprintf("spec: %s, error: %s", spec, err.Error()), false)
}

func NewTimeoutError(err error) *StandardError {
	return newError(ErrCodeTimeout, "Operation timed out", err.Error(), true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), true)
}

// GetRetryCount returns how many attempts a queue item failing with code deserves.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeQueueHandlerFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeNotificationLogFailed,
		ErrCodeJobNotFound:
		return 3

	case ErrCodeQueryTimeout,
		ErrCodeSearchTimeout,
		ErrCodeTimeout:
		return 2

	default:
		return 0
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory buckets a code for metrics labels.
func GetErrorCategory(code ErrorCode) string {
	c := string(code)
	switch {
	case strings.Contains(c, "QUEUE") || strings.Contains(c, "PAYLOAD"):
		return "queue"
	case strings.Contains(c, "NOTIFICATION"):
		return "notification"
	case strings.Contains(c, "SEARCH") || strings.Contains(c, "ELASTICSEARCH") || strings.Contains(c, "INDEX"):
		return "search"
	case strings.Contains(c, "DATABASE") || strings.Contains(c, "QUERY") || strings.Contains(c, "JOB"):
		return "database"
	case strings.Contains(c, "TASK") || strings.Contains(c, "SCHEDULE"):
		return "scheduler"
	case strings.Contains(c, "TIMEOUT"):
		return "timeout"
	default:
		return "internal"
	}
}
