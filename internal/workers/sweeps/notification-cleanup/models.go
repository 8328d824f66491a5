// internal/workers/sweeps/notification-cleanup/models.go
package notificationcleanup

type Input struct{}

type Output struct {
	LogsDeleted     int64 `json:"logsDeleted"`
	SearchesDeleted int64 `json:"searchesDeleted"`
}
