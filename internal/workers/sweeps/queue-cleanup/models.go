// internal/workers/sweeps/queue-cleanup/models.go
package queuecleanup

type Input struct {
	RetentionDays int `json:"retentionDays,omitempty"`
}

type Output struct {
	Deleted       int64 `json:"deleted"`
	RetentionDays int   `json:"retentionDays"`
}
