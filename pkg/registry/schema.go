// pkg/registry/schema.go
package registry

// QueueTypeRegistry is the catalog of work item types the processor accepts.
type QueueTypeRegistry struct {
	Version     string          `json:"version"`
	LastUpdated string          `json:"lastUpdated"`
	QueueTypes  []QueueTypeSpec `json:"queueTypes"`
}

type QueueTypeSpec struct {
	Type            string                 `json:"type"`
	DisplayName     string                 `json:"displayName"`
	Description     string                 `json:"description"`
	RequiresJob     bool                   `json:"requiresJob"`
	DefaultPriority int                    `json:"defaultPriority"`
	PayloadSchema   map[string]interface{} `json:"payloadSchema"`
	Tags            []string               `json:"tags"`
}
