// internal/queue/store.go
package queue

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"jobboard-notifier/internal/common/database"
	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/metrics"
	"jobboard-notifier/internal/models"
	"jobboard-notifier/pkg/registry"

	"github.com/lib/pq"
)

const itemColumns = `id, job_id, queue_type, status, priority, payload, attempts, max_attempts,
	error_message, available_at, created_at, processed_at`

type StoreOptions struct {
	MaxAttempts       int
	MaxAttemptsByType map[string]int
	Backoff           Backoff
	Registry          *registry.QueueTypeRegistry
}

// Store is the durable work queue backed by the job_queue table.
type Store struct {
	db       *database.PostgresClient
	opts     StoreOptions
	registry *registry.QueueTypeRegistry
}

func NewStore(db *database.PostgresClient, opts StoreOptions) *Store {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	return &Store{db: db, opts: opts, registry: reg}
}

func (s *Store) maxAttemptsFor(queueType string) int {
	if n, ok := s.opts.MaxAttemptsByType[queueType]; ok && n > 0 {
		return n
	}
	return s.opts.MaxAttempts
}

// Enqueue inserts a pending item and returns its id. Storage errors are
// returned to the caller unchanged in meaning.
func (s *Store) Enqueue(ctx context.Context, req models.EnqueueRequest) (int64, error) {
	result, err := s.registry.Validate(req.QueueType, req.JobID, req.Payload)
	if err != nil {
		return 0, errors.NewInvalidPayloadError(req.QueueType, []string{err.Error()})
	}
	if !result.Valid {
		if _, known := s.registry.Lookup(req.QueueType); !known {
			return 0, errors.NewUnknownQueueTypeError(req.QueueType)
		}
		return 0, errors.NewInvalidPayloadError(req.QueueType, result.GetErrorMessages())
	}

	spec, _ := s.registry.Lookup(req.QueueType)
	priority := spec.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	payload := []byte(req.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var id int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO job_queue (job_id, queue_type, priority, payload, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		nullableID(req.JobID), req.QueueType, priority, payload, s.maxAttemptsFor(req.QueueType),
	).Scan(&id)
	if err != nil {
		return 0, errors.NewQueueEnqueueFailedError(req.QueueType, err)
	}

	metrics.QueueItemsEnqueued.WithLabelValues(req.QueueType).Inc()
	return id, nil
}

// ClaimBatch atomically moves up to limit eligible pending items to
// processing and increments their attempts. Items come back highest
// priority first, oldest first within a priority. Queue types listed in
// exclude are left untouched.
func (s *Store) ClaimBatch(ctx context.Context, limit int, exclude []string) ([]models.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	if exclude == nil {
		exclude = []string{}
	}

	var items []models.QueueItem
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE job_queue q
			SET status = 'processing', attempts = q.attempts + 1, claimed_at = NOW()
			FROM (
				SELECT id FROM job_queue
				WHERE status = 'pending'
				  AND attempts < max_attempts
				  AND available_at <= NOW()
				  AND queue_type <> ALL($2::text[])
				ORDER BY priority DESC, created_at ASC, id ASC
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			) claimed
			WHERE q.id = claimed.id
			RETURNING q.id, q.job_id, q.queue_type, q.status, q.priority, q.payload, q.attempts,
				q.max_attempts, q.error_message, q.available_at, q.created_at, q.processed_at`,
			limit, pq.Array(exclude),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("claim_batch", err)
	}

	// RETURNING order is unspecified
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return items, nil
}

// Complete finalizes a processing item as completed.
func (s *Store) Complete(ctx context.Context, id int64) error {
	res, err := s.db.Exec(ctx, `
		UPDATE job_queue
		SET status = 'completed', processed_at = NOW(), error_message = NULL
		WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return errors.NewQueryExecutionFailedError("complete_item", err)
	}
	return expectOneRow(res, id)
}

// Fail finalizes a processing item after a failed attempt. The item goes
// back to pending when retry is allowed and attempts remain, otherwise it
// becomes failed for good. The resulting status is returned.
func (s *Store) Fail(ctx context.Context, item models.QueueItem, message string, retry bool) (models.QueueStatus, error) {
	if !retry || item.Attempts >= item.MaxAttempts {
		res, err := s.db.Exec(ctx, `
			UPDATE job_queue
			SET status = 'failed', error_message = $2, processed_at = NOW()
			WHERE id = $1 AND status = 'processing'`, item.ID, message)
		if err != nil {
			return "", errors.NewQueryExecutionFailedError("fail_item", err)
		}
		return models.QueueStatusFailed, expectOneRow(res, item.ID)
	}

	delay := s.opts.Backoff.Delay(item.Attempts)
	res, err := s.db.Exec(ctx, `
		UPDATE job_queue
		SET status = 'pending', error_message = $2, available_at = NOW() + ($3 * INTERVAL '1 millisecond')
		WHERE id = $1 AND status = 'processing'`, item.ID, message, delay.Milliseconds())
	if err != nil {
		return "", errors.NewQueryExecutionFailedError("retry_item", err)
	}
	return models.QueueStatusPending, expectOneRow(res, item.ID)
}

// Release hands a claimed item that never ran back to pending and gives
// back the attempt the claim took.
func (s *Store) Release(ctx context.Context, id int64) error {
	res, err := s.db.Exec(ctx, `
		UPDATE job_queue
		SET status = 'pending', attempts = GREATEST(attempts - 1, 0), claimed_at = NULL
		WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return errors.NewQueryExecutionFailedError("release_item", err)
	}
	return expectOneRow(res, id)
}

// StaleClaimMessage is stored on items whose claim expired before a
// result was written back.
const StaleClaimMessage = "claim expired before the item was finalized"

// RecoverStale finds processing items claimed more than olderThan ago.
// Items with attempts left go back to pending, the rest become failed.
func (s *Store) RecoverStale(ctx context.Context, olderThan time.Duration) (requeued, failed int64, err error) {
	if olderThan <= 0 {
		return 0, 0, nil
	}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE job_queue
			SET status = 'failed', error_message = $2, processed_at = NOW()
			WHERE status = 'processing'
			  AND claimed_at < NOW() - ($1 * INTERVAL '1 millisecond')
			  AND attempts >= max_attempts`,
			olderThan.Milliseconds(), StaleClaimMessage)
		if err != nil {
			return err
		}
		if failed, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE job_queue
			SET status = 'pending', error_message = $2, claimed_at = NULL
			WHERE status = 'processing'
			  AND claimed_at < NOW() - ($1 * INTERVAL '1 millisecond')
			  AND attempts < max_attempts`,
			olderThan.Milliseconds(), StaleClaimMessage)
		if err != nil {
			return err
		}
		requeued, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, 0, errors.NewQueryExecutionFailedError("recover_stale", err)
	}
	return requeued, failed, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*models.QueueItem, error) {
	row := s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM job_queue WHERE id = $1`, id)
	item, err := scanItem(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewQueueItemNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get_item", err)
	}
	return &item, nil
}

// Stats returns item counts grouped by status and queue type.
func (s *Store) Stats(ctx context.Context) ([]models.QueueStat, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, queue_type, COUNT(*)
		FROM job_queue
		GROUP BY status, queue_type
		ORDER BY status, queue_type`)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("queue_stats", err)
	}
	defer rows.Close()

	stats := []models.QueueStat{}
	for rows.Next() {
		var st models.QueueStat
		if err := rows.Scan(&st.Status, &st.QueueType, &st.Count); err != nil {
			return nil, errors.NewQueryExecutionFailedError("queue_stats", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("queue_stats", err)
	}

	metrics.QueueDepth.Reset()
	for _, st := range stats {
		metrics.QueueDepth.WithLabelValues(string(st.Status), st.QueueType).Set(float64(st.Count))
	}
	return stats, nil
}

// Cleanup deletes completed and failed items created more than
// retentionDays ago and returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	res, err := s.db.Exec(ctx, `
		DELETE FROM job_queue
		WHERE status IN ('completed', 'failed')
		  AND created_at < NOW() - ($1 * INTERVAL '1 day')`, retentionDays)
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("queue_cleanup", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("queue_cleanup", err)
	}
	return n, nil
}

// Requeue re-enqueues the work of a failed item as a fresh pending item.
// The failed item itself stays failed.
func (s *Store) Requeue(ctx context.Context, id int64) (int64, error) {
	var newID int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO job_queue (job_id, queue_type, priority, payload, max_attempts)
		SELECT job_id, queue_type, priority, payload, max_attempts
		FROM job_queue
		WHERE id = $1 AND status = 'failed'
		RETURNING id`, id).Scan(&newID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, errors.NewQueueItemNotFoundError(id).WithMetadata("reason", "no failed item with this id")
	}
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("requeue_item", err)
	}
	return newID, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (models.QueueItem, error) {
	var (
		item        models.QueueItem
		jobID       sql.NullInt64
		payload     []byte
		errMsg      sql.NullString
		processedAt sql.NullTime
	)
	err := row.Scan(
		&item.ID, &jobID, &item.QueueType, &item.Status, &item.Priority, &payload,
		&item.Attempts, &item.MaxAttempts, &errMsg, &item.AvailableAt, &item.CreatedAt, &processedAt,
	)
	if err != nil {
		return item, err
	}
	if jobID.Valid {
		id := jobID.Int64
		item.JobID = &id
	}
	item.Payload = payload
	if errMsg.Valid {
		msg := errMsg.String
		item.ErrorMessage = &msg
	}
	if processedAt.Valid {
		t := processedAt.Time
		item.ProcessedAt = &t
	}
	return item, nil
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("finalize_item", err)
	}
	if n == 0 {
		return errors.NewQueueItemNotFoundError(id).WithMetadata("reason", "item is not processing")
	}
	return nil
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
