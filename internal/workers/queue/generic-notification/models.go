// internal/workers/queue/generic-notification/models.go
package genericnotification

import "encoding/json"

type Input struct {
	Payload json.RawMessage
}

type Output struct {
	Status string `json:"status"`
	Bytes  int    `json:"bytes"`
}

const StatusLogged = "logged"
