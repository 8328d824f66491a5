// internal/workers/sweeps/job-alerts/models.go
package jobalerts

import "time"

type Input struct {
	// AsOf bounds the sweep window; zero means now.
	AsOf time.Time `json:"asOf,omitempty"`
}

type Output struct {
	AlertsChecked  int       `json:"alertsChecked"`
	AlertsNotified int       `json:"alertsNotified"`
	JobsMatched    int       `json:"jobsMatched"`
	Failed         int       `json:"failed"`
	AsOf           time.Time `json:"asOf"`
}
