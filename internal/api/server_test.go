// internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobboard-notifier/internal/common/database"
	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"
	"jobboard-notifier/internal/queue"
	"jobboard-notifier/internal/scheduler"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockQueue struct {
	EnqueueFunc func(ctx context.Context, req models.EnqueueRequest) (int64, error)
	GetFunc     func(ctx context.Context, id int64) (*models.QueueItem, error)
	StatsFunc   func(ctx context.Context) ([]models.QueueStat, error)
	RequeueFunc func(ctx context.Context, id int64) (int64, error)
	CleanupFunc func(ctx context.Context, retentionDays int) (int64, error)
}

func (m *MockQueue) Enqueue(ctx context.Context, req models.EnqueueRequest) (int64, error) {
	return m.EnqueueFunc(ctx, req)
}

func (m *MockQueue) Get(ctx context.Context, id int64) (*models.QueueItem, error) {
	return m.GetFunc(ctx, id)
}

func (m *MockQueue) Stats(ctx context.Context) ([]models.QueueStat, error) {
	return m.StatsFunc(ctx)
}

func (m *MockQueue) Requeue(ctx context.Context, id int64) (int64, error) {
	return m.RequeueFunc(ctx, id)
}

func (m *MockQueue) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return m.CleanupFunc(ctx, retentionDays)
}

type MockProcessor struct {
	ProcessBatchFunc func(ctx context.Context) (queue.BatchResult, error)
	running, busy    bool
}

func (m *MockProcessor) ProcessBatch(ctx context.Context) (queue.BatchResult, error) {
	return m.ProcessBatchFunc(ctx)
}
func (m *MockProcessor) IsRunning() bool { return m.running }
func (m *MockProcessor) IsBusy() bool    { return m.busy }

type MockScheduler struct {
	TriggerFunc func(ctx context.Context, name string) error
	status      scheduler.Status
}

func (m *MockScheduler) Trigger(ctx context.Context, name string) error {
	return m.TriggerFunc(ctx, name)
}
func (m *MockScheduler) Status() scheduler.Status { return m.status }

type MockSearches struct {
	RecordFunc func(ctx context.Context, entry models.SearchHistoryEntry) (string, error)
}

func (m *MockSearches) Record(ctx context.Context, entry models.SearchHistoryEntry) (string, error) {
	return m.RecordFunc(ctx, entry)
}

type MockNotifications struct {
	ListForUserFunc func(ctx context.Context, userID int64, limit int) ([]models.NotificationLog, error)
}

func (m *MockNotifications) ListForUser(ctx context.Context, userID int64, limit int) ([]models.NotificationLog, error) {
	return m.ListForUserFunc(ctx, userID, limit)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func createTestServer(deps Deps) http.Handler {
	return NewServer(deps, logger.NewNoOpLogger()).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error body, got %s", rec.Body.String())
	return e["code"].(string)
}

// ==========================
// Health
// ==========================

func TestHealth(t *testing.T) {
	rec := do(t, createTestServer(Deps{}), "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return stderrors.New("connection refused") })

	rec := do(t, createTestServer(Deps{Checks: map[string]Pinger{"postgres": ok, "redis": ok}}), "GET", "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, createTestServer(Deps{Checks: map[string]Pinger{"postgres": ok, "elasticsearch": down}}), "GET", "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_ready", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["elasticsearch"])
}

func TestMetrics(t *testing.T) {
	rec := do(t, createTestServer(Deps{}), "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// ==========================
// Queue
// ==========================

func TestEnqueue(t *testing.T) {
	var got models.EnqueueRequest
	q := &MockQueue{EnqueueFunc: func(ctx context.Context, req models.EnqueueRequest) (int64, error) {
		got = req
		return 42, nil
	}}
	h := createTestServer(Deps{Queue: q})

	rec := do(t, h, "POST", "/api/v1/queue", `{"queueType":" new_job_posting ","jobId":7,"priority":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(42), decode(t, rec)["id"])
	assert.Equal(t, "new_job_posting", got.QueueType)
	require.NotNil(t, got.JobID)
	assert.Equal(t, int64(7), *got.JobID)
	require.NotNil(t, got.Priority)
	assert.Equal(t, 2, *got.Priority)

	rec = do(t, h, "POST", "/api/v1/queue", `{"queueType":"generic_notification","priority":0,"payload":{"userId":1}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, got.Priority, "explicit zero priority is kept")
	assert.Equal(t, 0, *got.Priority)
}

func TestEnqueue_BadRequests(t *testing.T) {
	q := &MockQueue{EnqueueFunc: func(ctx context.Context, req models.EnqueueRequest) (int64, error) {
		t.Fatal("store must not be called")
		return 0, nil
	}}
	h := createTestServer(Deps{Queue: q})

	rec := do(t, h, "POST", "/api/v1/queue", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/v1/queue", `{"jobId":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueue_ValidatesAgainstRegistry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := queue.NewStore(database.NewPostgresFromDB(db), queue.StoreOptions{})
	h := createTestServer(Deps{Queue: store})

	rec := do(t, h, "POST", "/api/v1/queue", `{"queueType":"carrier_pigeon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_QUEUE_TYPE", errorCode(t, rec))

	rec = do(t, h, "POST", "/api/v1/queue", `{"queueType":"new_job_posting"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(t, rec))

	assert.NoError(t, mock.ExpectationsWereMet(), "invalid requests never reach the database")
}

func TestQueueStats(t *testing.T) {
	q := &MockQueue{StatsFunc: func(ctx context.Context) ([]models.QueueStat, error) {
		return []models.QueueStat{
			{Status: models.QueueStatusPending, QueueType: "new_job_posting", Count: 3},
			{Status: models.QueueStatusFailed, QueueType: "job_application", Count: 1},
		}, nil
	}}
	h := createTestServer(Deps{Queue: q, Processor: &MockProcessor{running: true}})

	rec := do(t, h, "GET", "/api/v1/queue/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(4), body["total"])
	assert.Len(t, body["stats"], 2)
	assert.Equal(t, true, body["processor"].(map[string]interface{})["running"])
}

func TestGetItem(t *testing.T) {
	q := &MockQueue{GetFunc: func(ctx context.Context, id int64) (*models.QueueItem, error) {
		if id == 5 {
			return &models.QueueItem{ID: 5, QueueType: "job_application", Status: models.QueueStatusFailed}, nil
		}
		return nil, errors.NewQueueItemNotFoundError(id)
	}}
	h := createTestServer(Deps{Queue: q})

	rec := do(t, h, "GET", "/api/v1/queue/5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", decode(t, rec)["status"])

	rec = do(t, h, "GET", "/api/v1/queue/6", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequeueItem(t *testing.T) {
	q := &MockQueue{RequeueFunc: func(ctx context.Context, id int64) (int64, error) {
		if id == 9 {
			return 10, nil
		}
		return 0, errors.NewQueueItemNotFoundError(id)
	}}
	h := createTestServer(Deps{Queue: q})

	rec := do(t, h, "POST", "/api/v1/queue/9/requeue", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(10), body["id"])
	assert.Equal(t, float64(9), body["requeuedFrom"])

	rec = do(t, h, "POST", "/api/v1/queue/3/requeue", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "QUEUE_ITEM_NOT_FOUND", errorCode(t, rec))
}

func TestCleanupQueue(t *testing.T) {
	var gotDays int
	q := &MockQueue{CleanupFunc: func(ctx context.Context, days int) (int64, error) {
		gotDays = days
		return 12, nil
	}}
	h := NewServer(Deps{Queue: q, RetentionDays: 14}, logger.NewNoOpLogger()).Router()

	rec := do(t, h, "POST", "/api/v1/queue/cleanup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, gotDays)
	assert.Equal(t, float64(12), decode(t, rec)["deleted"])

	rec = do(t, h, "POST", "/api/v1/queue/cleanup?days=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, gotDays)

	rec = do(t, h, "POST", "/api/v1/queue/cleanup?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessQueue(t *testing.T) {
	p := &MockProcessor{ProcessBatchFunc: func(ctx context.Context) (queue.BatchResult, error) {
		return queue.BatchResult{Claimed: 2, Completed: 2}, nil
	}}
	h := createTestServer(Deps{Processor: p})

	rec := do(t, h, "POST", "/api/v1/queue/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["completed"])

	p.ProcessBatchFunc = func(ctx context.Context) (queue.BatchResult, error) {
		return queue.BatchResult{Skipped: true}, nil
	}
	rec = do(t, h, "POST", "/api/v1/queue/process", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueRoutes_Unavailable(t *testing.T) {
	rec := do(t, createTestServer(Deps{}), "GET", "/api/v1/queue/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// ==========================
// Scheduler
// ==========================

func TestSchedulerStatus(t *testing.T) {
	s := &MockScheduler{status: scheduler.Status{Running: true, Timezone: "Europe/Istanbul", Tasks: []string{"job-alerts"}, TaskCount: 1}}
	rec := do(t, createTestServer(Deps{Scheduler: s}), "GET", "/api/v1/scheduler/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Europe/Istanbul", body["timezone"])
	assert.Equal(t, float64(1), body["taskCount"])
}

func TestTriggerTask(t *testing.T) {
	var triggered []string
	s := &MockScheduler{
		status: scheduler.Status{Tasks: []string{"job-alerts"}},
		TriggerFunc: func(ctx context.Context, name string) error {
			if name != "job-alerts" {
				return errors.NewTaskNotFoundError(name)
			}
			triggered = append(triggered, name)
			return nil
		},
	}
	h := createTestServer(Deps{Scheduler: s})

	rec := do(t, h, "POST", "/api/v1/scheduler/tasks/job-alerts/trigger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job-alerts"}, triggered)

	rec = do(t, h, "POST", "/api/v1/scheduler/tasks/nope/trigger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TASK_NOT_FOUND", errorCode(t, rec))
}

func TestTriggerTask_Async(t *testing.T) {
	done := make(chan string, 1)
	s := &MockScheduler{
		status: scheduler.Status{Tasks: []string{"related-jobs"}},
		TriggerFunc: func(ctx context.Context, name string) error {
			done <- name
			return nil
		},
	}
	h := createTestServer(Deps{Scheduler: s})

	rec := do(t, h, "POST", "/api/v1/scheduler/tasks/related-jobs/trigger?async=true", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case name := <-done:
		assert.Equal(t, "related-jobs", name)
	case <-time.After(2 * time.Second):
		t.Fatal("async trigger did not run")
	}

	rec = do(t, h, "POST", "/api/v1/scheduler/tasks/unknown/trigger?async=true", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerTask_Failure(t *testing.T) {
	s := &MockScheduler{TriggerFunc: func(ctx context.Context, name string) error {
		return stderrors.New("elasticsearch unreachable")
	}}
	rec := do(t, createTestServer(Deps{Scheduler: s}), "POST", "/api/v1/scheduler/tasks/related-jobs/trigger", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
}

// ==========================
// Search history and notifications
// ==========================

func TestRecordSearch(t *testing.T) {
	var got models.SearchHistoryEntry
	searches := &MockSearches{RecordFunc: func(ctx context.Context, entry models.SearchHistoryEntry) (string, error) {
		got = entry
		return "doc-1", nil
	}}
	h := createTestServer(Deps{Searches: searches})

	body := `{"userId":12,"searchQuery":{"term":"golang","city":"Istanbul"},"resultsCount":4}`
	req := httptest.NewRequest("POST", "/api/v1/search-history", bytes.NewBufferString(body))
	req.Header.Set("User-Agent", "jobboard-web/2.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "doc-1", decode(t, rec)["id"])
	require.NotNil(t, got.UserID)
	assert.Equal(t, int64(12), *got.UserID)
	assert.Equal(t, "golang", got.SearchQuery.Term)
	assert.Equal(t, "jobboard-web/2.1", got.SearchMetadata.UserAgent)

	rec = do(t, h, "POST", "/api/v1/search-history", `{"userId":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordSearch_Anonymous(t *testing.T) {
	searches := &MockSearches{RecordFunc: func(ctx context.Context, entry models.SearchHistoryEntry) (string, error) {
		assert.Nil(t, entry.UserID)
		return "doc-2", nil
	}}
	rec := do(t, createTestServer(Deps{Searches: searches}), "POST", "/api/v1/search-history", `{"searchQuery":{"term":"nurse"}}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUserNotifications(t *testing.T) {
	var gotLimit int
	n := &MockNotifications{ListForUserFunc: func(ctx context.Context, userID int64, limit int) ([]models.NotificationLog, error) {
		gotLimit = limit
		return []models.NotificationLog{{ID: 1, UserID: userID, Type: models.NotificationTypeJobAlert, Status: models.NotificationStatusSent}}, nil
	}}
	h := createTestServer(Deps{Notifications: n})

	rec := do(t, h, "GET", "/api/v1/users/7/notifications?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	do(t, h, "GET", "/api/v1/users/7/notifications?limit=100000", nil)
	assert.Equal(t, 50, gotLimit)
}
