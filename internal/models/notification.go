// internal/models/notification.go
package models

import "time"

type NotificationType string

const (
	NotificationTypeJobAlert   NotificationType = "job_alert"
	NotificationTypeRelatedJob NotificationType = "related_job"
	NotificationTypeSystem     NotificationType = "system"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

type NotificationLog struct {
	ID             int64              `json:"id"`
	UserID         int64              `json:"userId"`
	JobAlertID     *int64             `json:"jobAlertId,omitempty"`
	JobID          *int64             `json:"jobId,omitempty"`
	Type           NotificationType   `json:"type"`
	Title          string             `json:"title"`
	Message        string             `json:"message"`
	Status         NotificationStatus `json:"status"`
	DeliveryMethod string             `json:"deliveryMethod"`
	ErrorMessage   *string            `json:"errorMessage,omitempty"`
	SentAt         *time.Time         `json:"sentAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}
