// internal/models/queue.go
package models

import (
	"encoding/json"
	"time"
)

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

type QueueItem struct {
	ID           int64           `json:"id"`
	JobID        *int64          `json:"jobId,omitempty"`
	QueueType    string          `json:"queueType"`
	Status       QueueStatus     `json:"status"`
	Priority     int             `json:"priority"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"maxAttempts"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	AvailableAt  time.Time       `json:"availableAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
}

type EnqueueRequest struct {
	JobID     *int64          `json:"jobId,omitempty"`
	QueueType string          `json:"queueType"`
	// Priority overrides the queue type's default priority when set. Zero is
	// a valid priority.
	Priority  *int            `json:"priority,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// QueueStat is one (status, queue_type) bucket.
type QueueStat struct {
	Status    QueueStatus `json:"status"`
	QueueType string      `json:"queueType"`
	Count     int64       `json:"count"`
}
