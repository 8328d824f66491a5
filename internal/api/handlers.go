// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/models"

	"github.com/gorilla/mux"
)

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready pings every configured store. Any failure makes the service not ready.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Checks))
	ready := true
	for name, p := range s.deps.Checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}

func (s *Server) Enqueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		unavailable(w, "queue")
		return
	}

	var req models.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	req.QueueType = strings.TrimSpace(req.QueueType)
	if req.QueueType == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "queueType is required", "")
		return
	}

	id, err := s.deps.Queue.Enqueue(r.Context(), req)
	if err != nil {
		s.fail(w, "enqueue failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "queueType": req.QueueType})
}

func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		unavailable(w, "queue")
		return
	}
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	item, err := s.deps.Queue.Get(r.Context(), id)
	if err != nil {
		s.fail(w, "get queue item failed", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) QueueStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		unavailable(w, "queue")
		return
	}

	stats, err := s.deps.Queue.Stats(r.Context())
	if err != nil {
		s.fail(w, "queue stats failed", err)
		return
	}

	var total int64
	for _, st := range stats {
		total += st.Count
	}
	resp := map[string]interface{}{"stats": stats, "total": total}
	if s.deps.Processor != nil {
		resp["processor"] = map[string]bool{
			"running": s.deps.Processor.IsRunning(),
			"busy":    s.deps.Processor.IsBusy(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) RequeueItem(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		unavailable(w, "queue")
		return
	}
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	newID, err := s.deps.Queue.Requeue(r.Context(), id)
	if err != nil {
		s.fail(w, "requeue failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": newID, "requeuedFrom": id})
}

func (s *Server) CleanupQueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		unavailable(w, "queue")
		return
	}

	days := s.deps.RetentionDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "days must be a positive integer", raw)
			return
		}
		days = n
	}

	deleted, err := s.deps.Queue.Cleanup(r.Context(), days)
	if err != nil {
		s.fail(w, "queue cleanup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted, "retentionDays": days})
}

func (s *Server) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Processor == nil {
		unavailable(w, "processor")
		return
	}

	result, err := s.deps.Processor.ProcessBatch(r.Context())
	if err != nil {
		s.fail(w, "on-demand batch failed", err)
		return
	}
	code := http.StatusOK
	if result.Skipped {
		code = http.StatusConflict
	}
	writeJSON(w, code, result)
}

func (s *Server) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scheduler.Status())
}

// TriggerTask runs a scheduled task now. With ?async=true it returns 202
// immediately and the run continues detached from the request.
func (s *Server) TriggerTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	name := mux.Vars(r)["name"]

	if r.URL.Query().Get("async") == "true" {
		if !s.hasTask(name) {
			s.fail(w, "trigger failed", errors.NewTaskNotFoundError(name))
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.taskTimeout)
			defer cancel()
			if err := s.deps.Scheduler.Trigger(ctx, name); err != nil {
				s.log.Error("async task trigger failed", map[string]interface{}{"task": name, "error": err})
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"task": name, "status": "started"})
		return
	}

	if err := s.deps.Scheduler.Trigger(r.Context(), name); err != nil {
		s.fail(w, "trigger failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task": name, "status": "completed"})
}

func (s *Server) hasTask(name string) bool {
	for _, t := range s.deps.Scheduler.Status().Tasks {
		if t == name {
			return true
		}
	}
	return false
}

func (s *Server) RecordSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Searches == nil {
		unavailable(w, "search history")
		return
	}

	var entry models.SearchHistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	if entry.UserID != nil && *entry.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "userId must be positive", "")
		return
	}
	if entry.SearchMetadata.UserAgent == "" {
		entry.SearchMetadata.UserAgent = r.UserAgent()
	}

	id, err := s.deps.Searches.Record(r.Context(), entry)
	if err != nil {
		s.fail(w, "record search failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) UserNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifications == nil {
		unavailable(w, "notifications")
		return
	}
	userID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	logs, err := s.deps.Notifications.ListForUser(r.Context(), userID, limit)
	if err != nil {
		s.fail(w, "list notifications failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": logs, "count": len(logs)})
}

// fail maps a component error onto an HTTP status.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	stdErr := errors.Normalize(err)

	code := http.StatusInternalServerError
	switch stdErr.Code {
	case errors.ErrCodeUnknownQueueType, errors.ErrCodeInvalidPayload:
		code = http.StatusBadRequest
	case errors.ErrCodeQueueItemNotFound, errors.ErrCodeTaskNotFound, errors.ErrCodeJobNotFound:
		code = http.StatusNotFound
	case errors.ErrCodeQueryTimeout, errors.ErrCodeSearchTimeout, errors.ErrCodeTimeout:
		code = http.StatusGatewayTimeout
	}

	if code >= 500 {
		s.log.Error(msg, map[string]interface{}{"code": stdErr.Code, "error": err})
	}
	writeError(w, code, string(stdErr.Code), stdErr.Message, stdErr.Details)
}

func unavailable(w http.ResponseWriter, component string) {
	writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", component+" is not enabled", "")
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message, Details: details}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
