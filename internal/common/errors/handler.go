// internal/common/errors/handler.go
package errors

import (
	"context"
	stderrors "errors"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler normalizes failures from queue handlers and sweeps and
// decides whether a failed queue item may be attempted again.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Normalize converts any error into a StandardError, unwrapping if one is
// already in the chain.
func (h *ErrorHandler) Normalize(err error) *StandardError {
	return Normalize(err)
}

func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}

	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	return NewInternalError(err)
}

// ShouldRetry reports whether an item that has made attempts attempts out
// of maxAttempts may go back to pending after failing with err.
func (h *ErrorHandler) ShouldRetry(err error, attempts, maxAttempts int) bool {
	if attempts >= maxAttempts {
		return false
	}
	stdErr := Normalize(err)
	if stdErr == nil {
		return false
	}
	return stdErr.Retryable
}

// HandleItemError logs a queue item failure and returns the normalized
// error together with the retry decision.
func (h *ErrorHandler) HandleItemError(itemID int64, queueType string, err error, attempts, maxAttempts int) (*StandardError, bool) {
	stdErr := Normalize(err)
	retry := h.ShouldRetry(err, attempts, maxAttempts)

	if h.logger != nil {
		h.logger.Error("queue item failed", map[string]interface{}{
			"itemId":       itemID,
			"queueType":    queueType,
			"errorCode":    stdErr.Code,
			"errorMessage": stdErr.Message,
			"errorDetails": stdErr.Details,
			"attempts":     attempts,
			"maxAttempts":  maxAttempts,
			"willRetry":    retry,
			"category":     GetErrorCategory(stdErr.Code),
		})
	}

	return stdErr, retry
}
