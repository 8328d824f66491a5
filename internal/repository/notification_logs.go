// internal/repository/notification_logs.go
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"jobboard-notifier/internal/common/database"
	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/models"
)

type NotificationLogRepository struct {
	db *database.PostgresClient
}

func NewNotificationLogRepository(db *database.PostgresClient) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// Insert writes logs in one transaction and returns them with ids and
// created_at filled in.
func (r *NotificationLogRepository) Insert(ctx context.Context, logs []models.NotificationLog) ([]models.NotificationLog, error) {
	if len(logs) == 0 {
		return nil, nil
	}

	out := make([]models.NotificationLog, len(logs))
	copy(out, logs)

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range out {
			l := &out[i]
			if l.DeliveryMethod == "" {
				l.DeliveryMethod = "email"
			}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO notification_logs
					(user_id, job_alert_id, job_id, type, title, message, status, delivery_method, error_message, sent_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING id, created_at`,
				l.UserID, l.JobAlertID, l.JobID, string(l.Type), l.Title, l.Message,
				string(l.Status), l.DeliveryMethod, l.ErrorMessage, l.SentAt,
			).Scan(&l.ID, &l.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert log %d of %d: %w", i+1, len(out), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewNotificationLogFailedError(err)
	}
	return out, nil
}

// DeleteOlderThan removes logs created more than months months ago.
func (r *NotificationLogRepository) DeleteOlderThan(ctx context.Context, months int) (int64, error) {
	if months <= 0 {
		return 0, fmt.Errorf("retention months must be positive, got %d", months)
	}
	res, err := r.db.Exec(ctx, `
		DELETE FROM notification_logs
		WHERE created_at < NOW() - ($1 * INTERVAL '1 month')`, months)
	if err != nil {
		return 0, queryError("delete_notification_logs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queryError("delete_notification_logs", err)
	}
	return n, nil
}

// ListForUser returns a user's most recent logs, newest first.
func (r *NotificationLogRepository) ListForUser(ctx context.Context, userID int64, limit int) ([]models.NotificationLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, job_alert_id, job_id, type, title, message, status,
		       delivery_method, error_message, sent_at, created_at
		FROM notification_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, queryError("list_notification_logs", err)
	}
	defer rows.Close()

	out := []models.NotificationLog{}
	for rows.Next() {
		var (
			l            models.NotificationLog
			alertID, job sql.NullInt64
			errMsg       sql.NullString
			sentAt       sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.UserID, &alertID, &job, &l.Type, &l.Title, &l.Message, &l.Status,
			&l.DeliveryMethod, &errMsg, &sentAt, &l.CreatedAt); err != nil {
			return nil, queryError("list_notification_logs", err)
		}
		if alertID.Valid {
			v := alertID.Int64
			l.JobAlertID = &v
		}
		if job.Valid {
			v := job.Int64
			l.JobID = &v
		}
		if errMsg.Valid {
			v := errMsg.String
			l.ErrorMessage = &v
		}
		if sentAt.Valid {
			v := sentAt.Time
			l.SentAt = &v
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("list_notification_logs", err)
	}
	return out, nil
}
