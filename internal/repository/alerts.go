// internal/repository/alerts.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"jobboard-notifier/internal/common/database"
	"jobboard-notifier/internal/models"
)

type AlertRepository struct {
	db *database.PostgresClient
}

func NewAlertRepository(db *database.PostgresClient) *AlertRepository {
	return &AlertRepository{db: db}
}

// ListActiveWithUsers returns every active alert with its owner.
func (r *AlertRepository) ListActiveWithUsers(ctx context.Context) ([]models.AlertRecipient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ja.id, ja.user_id, ja.alert_name, ja.keywords, ja.city, ja.country, ja.preference,
		       ja.company, ja.min_salary, ja.max_salary, ja.is_active, ja.last_notification_sent,
		       ja.created_at, ja.updated_at,
		       u.id, u.name, u.email, COALESCE(u.phone, '')
		FROM job_alerts ja
		JOIN users u ON ja.user_id = u.id
		WHERE ja.is_active = true
		ORDER BY ja.id`)
	if err != nil {
		return nil, queryError("list_active_alerts", err)
	}
	defer rows.Close()

	var out []models.AlertRecipient
	for rows.Next() {
		var (
			rec                                     models.AlertRecipient
			keywords, city, country, pref, company sql.NullString
			minSalary, maxSalary                    sql.NullInt64
			lastSent                                sql.NullTime
		)
		a := &rec.Alert
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.AlertName, &keywords, &city, &country, &pref,
			&company, &minSalary, &maxSalary, &a.IsActive, &lastSent,
			&a.CreatedAt, &a.UpdatedAt,
			&rec.User.ID, &rec.User.Name, &rec.User.Email, &rec.User.Phone,
		); err != nil {
			return nil, queryError("list_active_alerts", err)
		}
		a.Keywords = nullString(keywords)
		a.City = nullString(city)
		a.Country = nullString(country)
		a.Preference = nullString(pref)
		a.Company = nullString(company)
		a.MinSalary = nullInt(minSalary)
		a.MaxSalary = nullInt(maxSalary)
		if lastSent.Valid {
			t := lastSent.Time
			a.LastNotificationSent = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("list_active_alerts", err)
	}
	return out, nil
}

// MarkNotified moves last_notification_sent forward to asOf. It never moves
// the timestamp backwards.
func (r *AlertRepository) MarkNotified(ctx context.Context, alertID int64, asOf time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE job_alerts
		SET last_notification_sent = GREATEST(COALESCE(last_notification_sent, 'epoch'::timestamptz), $2)
		WHERE id = $1`, alertID, asOf)
	if err != nil {
		return queryError("mark_alert_notified", err)
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}
