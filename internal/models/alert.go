// internal/models/alert.go
package models

import "time"

// JobAlert is a saved filter. Nil filter fields are not applied.
type JobAlert struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"userId"`
	AlertName            string     `json:"alertName"`
	Keywords             *string    `json:"keywords,omitempty"`
	City                 *string    `json:"city,omitempty"`
	Country              *string    `json:"country,omitempty"`
	Preference           *string    `json:"preference,omitempty"`
	Company              *string    `json:"company,omitempty"`
	MinSalary            *int       `json:"minSalary,omitempty"`
	MaxSalary            *int       `json:"maxSalary,omitempty"`
	IsActive             bool       `json:"isActive"`
	LastNotificationSent *time.Time `json:"lastNotificationSent,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// AlertRecipient is an active alert joined with its owner's contact details.
type AlertRecipient struct {
	Alert JobAlert `json:"alert"`
	User  User     `json:"user"`
}
