// internal/workers/queue/job-application/models.go
package jobapplication

type Input struct {
	JobID         int64  `json:"jobId"`
	ApplicantID   int64  `json:"applicantId,omitempty"`
	ApplicationID string `json:"applicationId,omitempty"`
}

type Output struct {
	JobID  int64  `json:"jobId"`
	Status string `json:"status"`
}

const StatusAcknowledged = "acknowledged"
