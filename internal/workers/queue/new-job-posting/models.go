// internal/workers/queue/new-job-posting/models.go
package newjobposting

// Input is the new_job_posting payload. JobID falls back to the queue
// item's job_id column when the payload does not carry one.
type Input struct {
	JobID int64 `json:"jobId"`
}

type Output struct {
	JobID           int64 `json:"jobId"`
	AlertsEvaluated int   `json:"alertsEvaluated"`
	Matched         int   `json:"matched"`
	Sent            int   `json:"sent"`
	Failed          int   `json:"failed"`
	Deduplicated    int   `json:"deduplicated"`
}
