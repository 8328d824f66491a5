// internal/queue/processor_test.go
package queue

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockItemStore records finalize calls and hands out scripted batches.
type MockItemStore struct {
	mu sync.Mutex

	ClaimBatchFunc   func(ctx context.Context, limit int, exclude []string) ([]models.QueueItem, error)
	RecoverStaleFunc func(ctx context.Context, olderThan time.Duration) (int64, int64, error)

	completed []int64
	failed    []failCall
	released  []int64
	// finalizeErrs holds ctx.Err() as seen by each Complete/Fail call.
	finalizeErrs []error
}

type failCall struct {
	item    models.QueueItem
	message string
	retry   bool
}

func (m *MockItemStore) ClaimBatch(ctx context.Context, limit int, exclude []string) ([]models.QueueItem, error) {
	if m.ClaimBatchFunc != nil {
		return m.ClaimBatchFunc(ctx, limit, exclude)
	}
	return nil, nil
}

func (m *MockItemStore) Complete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, id)
	m.finalizeErrs = append(m.finalizeErrs, ctx.Err())
	return nil
}

func (m *MockItemStore) Fail(ctx context.Context, item models.QueueItem, message string, retry bool) (models.QueueStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, failCall{item: item, message: message, retry: retry})
	m.finalizeErrs = append(m.finalizeErrs, ctx.Err())
	if !retry || item.Attempts >= item.MaxAttempts {
		return models.QueueStatusFailed, nil
	}
	return models.QueueStatusPending, nil
}

func (m *MockItemStore) Release(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.released = append(m.released, id)
	return nil
}

func (m *MockItemStore) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, int64, error) {
	if m.RecoverStaleFunc != nil {
		return m.RecoverStaleFunc(ctx, olderThan)
	}
	return 0, 0, nil
}

func (m *MockItemStore) Completed() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.completed...)
}

// batchOnce returns items on the first claim and nothing afterwards.
func batchOnce(items ...models.QueueItem) func(context.Context, int, []string) ([]models.QueueItem, error) {
	var once sync.Once
	return func(context.Context, int, []string) ([]models.QueueItem, error) {
		var out []models.QueueItem
		once.Do(func() { out = items })
		return out, nil
	}
}

func item(id int64, queueType string, attempts int) models.QueueItem {
	return models.QueueItem{
		ID:          id,
		QueueType:   queueType,
		Status:      models.QueueStatusProcessing,
		Priority:    1,
		Attempts:    attempts,
		MaxAttempts: 3,
	}
}

func createTestProcessor(t *testing.T, store ItemStore) *Processor {
	t.Helper()
	return NewProcessor(store, ProcessorConfig{Interval: time.Hour, BatchSize: 10}, nil, logger.NewNoOpLogger())
}

func noop(context.Context, models.QueueItem) error { return nil }

// ==========================
// Batch processing
// ==========================

func TestProcessor_ProcessBatch_Dispatch(t *testing.T) {
	store := &MockItemStore{ClaimBatchFunc: batchOnce(
		item(1, "new_job_posting", 1),
		item(2, "job_application", 1),
		item(3, "generic_notification", 1),
		item(4, "carrier_pigeon", 1),
	)}
	p := createTestProcessor(t, store)

	var handled []int64
	record := HandlerFunc(func(ctx context.Context, it models.QueueItem) error {
		handled = append(handled, it.ID)
		return nil
	})
	p.Register("new_job_posting", record)
	p.Register("job_application", record)
	p.Register("generic_notification", record)

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BatchResult{Claimed: 4, Completed: 3, Failed: 1}, result)
	assert.Equal(t, []int64{1, 2, 3}, handled)
	assert.Equal(t, []int64{1, 2, 3}, store.Completed())

	require.Len(t, store.failed, 1)
	assert.Equal(t, int64(4), store.failed[0].item.ID)
	assert.False(t, store.failed[0].retry, "unknown queue types are not retried")
	assert.Contains(t, store.failed[0].message, "Unknown queue type")
}

func TestProcessor_ProcessBatch_RetryAndExhaustion(t *testing.T) {
	store := &MockItemStore{ClaimBatchFunc: batchOnce(
		item(1, "new_job_posting", 1),
		item(2, "new_job_posting", 3),
	)}
	p := createTestProcessor(t, store)
	p.Register("new_job_posting", HandlerFunc(func(ctx context.Context, it models.QueueItem) error {
		return errors.NewJobNotFoundError(99)
	}))

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Claimed: 2, Retried: 1, Failed: 1}, result)

	require.Len(t, store.failed, 2)
	assert.True(t, store.failed[0].retry)
	assert.False(t, store.failed[1].retry, "attempts reached max")
}

func TestProcessor_ProcessBatch_IsolatesPanics(t *testing.T) {
	store := &MockItemStore{ClaimBatchFunc: batchOnce(
		item(1, "generic_notification", 1),
		item(2, "job_application", 1),
	)}
	p := createTestProcessor(t, store)
	p.Register("generic_notification", HandlerFunc(func(context.Context, models.QueueItem) error {
		panic("nil payload")
	}))
	p.Register("job_application", HandlerFunc(noop))

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Retried)
	assert.Contains(t, store.failed[0].message, "handler panic: nil payload")
}

func TestProcessor_ProcessBatch_ClaimError(t *testing.T) {
	store := &MockItemStore{ClaimBatchFunc: func(context.Context, int, []string) ([]models.QueueItem, error) {
		return nil, stderrors.New("connection refused")
	}}
	p := createTestProcessor(t, store)

	_, err := p.ProcessBatch(context.Background())
	assert.Error(t, err)
	assert.False(t, p.IsBusy(), "guard is released after a failed claim")
}

func TestProcessor_ProcessBatch_PassesPausedTypes(t *testing.T) {
	var gotLimit int
	var gotExclude []string
	store := &MockItemStore{ClaimBatchFunc: func(_ context.Context, limit int, exclude []string) ([]models.QueueItem, error) {
		gotLimit, gotExclude = limit, exclude
		return nil, nil
	}}
	p := NewProcessor(store, ProcessorConfig{BatchSize: 5, Paused: []string{"job_application"}}, nil, logger.NewNoOpLogger())

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, gotLimit)
	assert.Equal(t, []string{"job_application"}, gotExclude)
}

func TestProcessor_ItemTimeout(t *testing.T) {
	store := &MockItemStore{ClaimBatchFunc: batchOnce(item(1, "new_job_posting", 1))}
	p := NewProcessor(store, ProcessorConfig{
		ItemTimeouts: map[string]time.Duration{"new_job_posting": 20 * time.Millisecond},
	}, nil, logger.NewNoOpLogger())
	p.Register("new_job_posting", HandlerFunc(func(ctx context.Context, it models.QueueItem) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)
	assert.Contains(t, store.failed[0].message, "deadline exceeded")
}

// ==========================
// Reentrancy and lifecycle
// ==========================

func TestProcessor_ReentrancyGuard(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	store := &MockItemStore{ClaimBatchFunc: batchOnce(item(1, "new_job_posting", 1))}
	p := createTestProcessor(t, store)
	p.Register("new_job_posting", HandlerFunc(func(context.Context, models.QueueItem) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan BatchResult)
	go func() {
		r, _ := p.ProcessBatch(context.Background())
		done <- r
	}()

	<-started
	assert.True(t, p.IsBusy())

	second, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Completed)
	assert.False(t, p.IsBusy())
}

func TestProcessor_StopWaitsForInFlightBatch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	store := &MockItemStore{ClaimBatchFunc: batchOnce(item(1, "new_job_posting", 1))}
	p := createTestProcessor(t, store)
	p.Register("new_job_posting", HandlerFunc(func(context.Context, models.QueueItem) error {
		close(started)
		<-release
		return nil
	}))

	p.Start()
	p.Start() // idempotent
	assert.True(t, p.IsRunning())
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a batch was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the batch finished")
	}

	assert.False(t, p.IsRunning())
	assert.Equal(t, []int64{1}, store.Completed())

	p.Stop() // no-op when already stopped
}

func TestProcessor_RestartAfterStop(t *testing.T) {
	var mu sync.Mutex
	claims := 0
	store := &MockItemStore{ClaimBatchFunc: func(context.Context, int, []string) ([]models.QueueItem, error) {
		mu.Lock()
		claims++
		mu.Unlock()
		return nil, nil
	}}
	p := createTestProcessor(t, store)

	p.Start()
	p.Stop()
	p.Start()
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, claims, "each start runs one immediate tick")
}

// ==========================
// Batch deadline and stale claims
// ==========================

func TestProcessor_WritesBackAfterBatchDeadline(t *testing.T) {
	store := &MockItemStore{ClaimBatchFunc: batchOnce(
		item(1, "new_job_posting", 1),
		item(2, "new_job_posting", 1),
	)}
	p := createTestProcessor(t, store)
	p.Register("new_job_posting", HandlerFunc(func(ctx context.Context, it models.QueueItem) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Claimed: 2, Retried: 1, Released: 1}, result)

	require.Len(t, store.failed, 1)
	assert.Equal(t, int64(1), store.failed[0].item.ID)
	assert.True(t, store.failed[0].retry)
	require.Len(t, store.finalizeErrs, 1)
	assert.NoError(t, store.finalizeErrs[0], "write-back must not inherit the expired batch context")

	assert.Equal(t, []int64{2}, store.released, "unstarted items go back to pending")
}

func TestProcessor_BatchTimeoutBoundsOnDemandBatches(t *testing.T) {
	store := &MockItemStore{ClaimBatchFunc: batchOnce(item(1, "job_application", 1))}
	p := NewProcessor(store, ProcessorConfig{BatchTimeout: 30 * time.Millisecond}, nil, logger.NewNoOpLogger())
	p.Register("job_application", HandlerFunc(func(ctx context.Context, it models.QueueItem) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)
	assert.Contains(t, store.failed[0].message, "Operation timed out")
	assert.NoError(t, store.finalizeErrs[0])
}

func TestProcessor_RecoversStaleClaimsBeforeClaiming(t *testing.T) {
	var order []string
	var gotStaleAfter time.Duration
	store := &MockItemStore{
		RecoverStaleFunc: func(_ context.Context, olderThan time.Duration) (int64, int64, error) {
			order = append(order, "recover")
			gotStaleAfter = olderThan
			return 2, 1, nil
		},
		ClaimBatchFunc: func(context.Context, int, []string) ([]models.QueueItem, error) {
			order = append(order, "claim")
			return nil, nil
		},
	}
	p := NewProcessor(store, ProcessorConfig{BatchSize: 2, BatchTimeout: time.Minute}, nil, logger.NewNoOpLogger())

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"recover", "claim"}, order)
	assert.Equal(t, 3, result.Recovered)
	assert.Equal(t, 2*time.Minute, gotStaleAfter)
}

func TestProcessor_StaleAfterCoversSlowWriteBacks(t *testing.T) {
	p := NewProcessor(&MockItemStore{}, ProcessorConfig{
		BatchSize:       50,
		BatchTimeout:    time.Minute,
		FinalizeTimeout: 5 * time.Second,
	}, nil, logger.NewNoOpLogger())
	assert.Equal(t, time.Minute+250*time.Second, p.cfg.StaleAfter)

	p = NewProcessor(&MockItemStore{}, ProcessorConfig{StaleAfter: time.Hour}, nil, logger.NewNoOpLogger())
	assert.Equal(t, time.Hour, p.cfg.StaleAfter)
}

func TestProcessor_RecoveryErrorDoesNotBlockClaim(t *testing.T) {
	store := &MockItemStore{
		RecoverStaleFunc: func(context.Context, time.Duration) (int64, int64, error) {
			return 0, 0, stderrors.New("lock timeout")
		},
		ClaimBatchFunc: batchOnce(item(1, "generic_notification", 1)),
	}
	p := createTestProcessor(t, store)
	p.Register("generic_notification", HandlerFunc(noop))

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
}

func TestProcessor_AbortCancelsInFlightBatch(t *testing.T) {
	started := make(chan struct{})
	store := &MockItemStore{ClaimBatchFunc: batchOnce(
		item(1, "new_job_posting", 1),
		item(2, "new_job_posting", 1),
	)}
	p := createTestProcessor(t, store)
	p.Register("new_job_posting", HandlerFunc(func(ctx context.Context, it models.QueueItem) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	p.Start()
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	p.Abort()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after Abort")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.failed, 1)
	assert.True(t, store.failed[0].retry)
	assert.NoError(t, store.finalizeErrs[0])
	assert.Equal(t, []int64{2}, store.released)
}

func TestProcessor_ExpiredBatchStillUpdatesRow(t *testing.T) {
	store, mock := newTestStore(t, StoreOptions{})
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`SET status = 'failed'[\s\S]*claimed_at < NOW\(\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SET status = 'pending'[\s\S]*claimed_at < NOW\(\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE job_queue q").
		WillReturnRows(sqlmock.NewRows(itemColumnNames).
			AddRow(int64(5), int64(50), "new_job_posting", "processing", 2, []byte(`{}`), 1, 3, nil, base, base, nil))
	mock.ExpectCommit()
	mock.ExpectExec(`SET status = 'pending', error_message = \$2`).
		WithArgs(int64(5), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := createTestProcessor(t, store)
	p.Register("new_job_posting", HandlerFunc(func(ctx context.Context, it models.QueueItem) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Claimed)
	assert.Equal(t, 1, result.Retried)
	assert.NoError(t, mock.ExpectationsWereMet())
}
