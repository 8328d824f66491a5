// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"jobboard-notifier/internal/common/validation"
)

const (
	QueueTypeNewJobPosting       = "new_job_posting"
	QueueTypeJobApplication      = "job_application"
	QueueTypeGenericNotification = "generic_notification"
)

// Default returns the built-in catalog.
func Default() *QueueTypeRegistry {
	return &QueueTypeRegistry{
		Version:     "1.0.0",
		LastUpdated: "2026-10-01",
		QueueTypes: []QueueTypeSpec{
			{
				Type:            QueueTypeNewJobPosting,
				DisplayName:     "New job posting",
				Description:     "Fan a freshly posted job out to every matching active alert",
				RequiresJob:     true,
				DefaultPriority: 1,
				PayloadSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"title":   map[string]interface{}{"type": "string"},
						"company": map[string]interface{}{"type": "string"},
					},
				},
				Tags: []string{"fan-out", "alerts"},
			},
			{
				Type:            QueueTypeJobApplication,
				DisplayName:     "Job application",
				Description:     "Application event hook, reserved for employer notifications",
				RequiresJob:     true,
				DefaultPriority: 1,
				PayloadSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"applicantId": map[string]interface{}{"type": "integer", "minimum": 1},
					},
				},
				Tags: []string{"hook"},
			},
			{
				Type:            QueueTypeGenericNotification,
				DisplayName:     "Generic notification",
				Description:     "Payload-only signal with no side effect",
				DefaultPriority: 1,
				PayloadSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"userId":  map[string]interface{}{"type": "integer", "minimum": 1},
						"title":   map[string]interface{}{"type": "string"},
						"message": map[string]interface{}{"type": "string"},
					},
				},
				Tags: []string{"hook"},
			},
		},
	}
}

// LoadRegistry reads a catalog from a JSON file.
func LoadRegistry(path string) (*QueueTypeRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg QueueTypeRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

func (r *QueueTypeRegistry) Lookup(queueType string) (QueueTypeSpec, bool) {
	for _, qt := range r.QueueTypes {
		if qt.Type == queueType {
			return qt, true
		}
	}
	return QueueTypeSpec{}, false
}

// Types returns the registered queue type names, sorted.
func (r *QueueTypeRegistry) Types() []string {
	out := make([]string, 0, len(r.QueueTypes))
	for _, qt := range r.QueueTypes {
		out = append(out, qt.Type)
	}
	sort.Strings(out)
	return out
}

// Validate checks an enqueue request against the catalog entry for its type.
func (r *QueueTypeRegistry) Validate(queueType string, jobID *int64, payload []byte) (*validation.ValidationResult, error) {
	spec, ok := r.Lookup(queueType)
	if !ok {
		return &validation.ValidationResult{
			Valid: false,
			Errors: []validation.ValidationError{{
				Field:   "queueType",
				Message: fmt.Sprintf("unknown queue type %q", queueType),
				Code:    "UNKNOWN_QUEUE_TYPE",
			}},
		}, nil
	}

	result, err := validation.ValidatePayload(spec.PayloadSchema, payload)
	if err != nil {
		return nil, err
	}
	if spec.RequiresJob && jobID == nil {
		result.Valid = false
		result.Errors = append(result.Errors, validation.ValidationError{
			Field:   "jobId",
			Message: "job id is required for " + queueType,
			Code:    "REQUIRED",
		})
	}
	return result, nil
}
