// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"
	"jobboard-notifier/internal/queue"
	"jobboard-notifier/internal/scheduler"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type QueueService interface {
	Enqueue(ctx context.Context, req models.EnqueueRequest) (int64, error)
	Get(ctx context.Context, id int64) (*models.QueueItem, error)
	Stats(ctx context.Context) ([]models.QueueStat, error)
	Requeue(ctx context.Context, id int64) (int64, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

type BatchRunner interface {
	ProcessBatch(ctx context.Context) (queue.BatchResult, error)
	IsRunning() bool
	IsBusy() bool
}

type TaskRunner interface {
	Trigger(ctx context.Context, name string) error
	Status() scheduler.Status
}

type SearchRecorder interface {
	Record(ctx context.Context, entry models.SearchHistoryEntry) (string, error)
}

type NotificationLister interface {
	ListForUser(ctx context.Context, userID int64, limit int) ([]models.NotificationLog, error)
}

// Pinger is any backing store /ready checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the server to the running components. Optional fields may be
// nil; their routes then answer 503.
type Deps struct {
	Queue         QueueService
	Processor     BatchRunner
	Scheduler     TaskRunner
	Searches      SearchRecorder
	Notifications NotificationLister
	Checks        map[string]Pinger
	RetentionDays int
}

type Server struct {
	deps Deps
	log  logger.Logger

	readyTimeout time.Duration
	taskTimeout  time.Duration
}

func NewServer(deps Deps, log logger.Logger) *Server {
	if deps.RetentionDays <= 0 {
		deps.RetentionDays = 7
	}
	return &Server{
		deps:         deps,
		log:          log.WithFields(map[string]interface{}{"component": "api"}),
		readyTimeout: 3 * time.Second,
		taskTimeout:  30 * time.Minute,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.Health).Methods("GET")
	r.HandleFunc("/ready", s.Ready).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/queue", s.Enqueue).Methods("POST")
	v1.HandleFunc("/queue/stats", s.QueueStats).Methods("GET")
	v1.HandleFunc("/queue/process", s.ProcessQueue).Methods("POST")
	v1.HandleFunc("/queue/cleanup", s.CleanupQueue).Methods("POST")
	v1.HandleFunc("/queue/{id:[0-9]+}", s.GetItem).Methods("GET")
	v1.HandleFunc("/queue/{id:[0-9]+}/requeue", s.RequeueItem).Methods("POST")

	v1.HandleFunc("/scheduler/status", s.SchedulerStatus).Methods("GET")
	v1.HandleFunc("/scheduler/tasks/{name}/trigger", s.TriggerTask).Methods("POST")

	v1.HandleFunc("/search-history", s.RecordSearch).Methods("POST")
	v1.HandleFunc("/users/{id:[0-9]+}/notifications", s.UserNotifications).Methods("GET")

	r.Use(s.logRequests)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			return
		}
		s.log.Debug("http request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
