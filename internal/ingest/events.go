// internal/ingest/events.go
package ingest

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"jobboard-notifier/internal/models"
	"jobboard-notifier/pkg/registry"
)

const (
	EventJobCreated = "job.created"
	EventJobApplied = "job.applied"
)

// ErrIgnoredEvent marks a well-formed event this service has no use for.
var ErrIgnoredEvent = stderrors.New("ignored event")

// JobEvent is the message published by the job board when a posting or an
// application is created.
type JobEvent struct {
	Event       string `json:"event"`
	JobID       int64  `json:"jobId"`
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	ApplicantID int64  `json:"applicantId,omitempty"`
}

// ToEnqueueRequest maps a raw event onto the queue item it produces.
func ToEnqueueRequest(value []byte) (models.EnqueueRequest, error) {
	var ev JobEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return models.EnqueueRequest{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.JobID <= 0 {
		return models.EnqueueRequest{}, fmt.Errorf("event %q has no valid jobId", ev.Event)
	}
	jobID := ev.JobID

	switch strings.TrimSpace(ev.Event) {
	case EventJobCreated:
		payload, _ := json.Marshal(map[string]string{"title": ev.Title, "company": ev.Company})
		return models.EnqueueRequest{
			JobID:     &jobID,
			QueueType: registry.QueueTypeNewJobPosting,
			Payload:   payload,
		}, nil
	case EventJobApplied:
		payload := json.RawMessage(`{}`)
		if ev.ApplicantID > 0 {
			payload, _ = json.Marshal(map[string]int64{"applicantId": ev.ApplicantID})
		}
		return models.EnqueueRequest{
			JobID:     &jobID,
			QueueType: registry.QueueTypeJobApplication,
			Payload:   payload,
		}, nil
	case "":
		return models.EnqueueRequest{}, fmt.Errorf("event name is missing")
	default:
		return models.EnqueueRequest{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, ev.Event)
	}
}
