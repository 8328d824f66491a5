// internal/repository/jobs.go
package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"jobboard-notifier/internal/common/database"
	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/matcher"
	"jobboard-notifier/internal/models"

	"github.com/lib/pq"
)

const jobColumns = `id, title, company, city, country, preference, description, applications, created_at, updated_at`

type JobRepository struct {
	db *database.PostgresClient
}

func NewJobRepository(db *database.PostgresClient) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) GetByID(ctx context.Context, id int64) (*models.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewJobNotFoundError(id)
	}
	if err != nil {
		return nil, queryError("get_job", err)
	}
	return &job, nil
}

// FindForAlert returns the newest jobs created after the alert was last
// notified, up to and including asOf, that satisfy the alert's criteria.
func (r *JobRepository) FindForAlert(ctx context.Context, alert models.JobAlert, m *matcher.Matcher, asOf time.Time, limit int) ([]models.Job, error) {
	clause, args := m.SQLFilter(alert, 3)
	if clause == "" && !m.MatchUnfiltered() {
		return nil, nil
	}

	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE created_at > COALESCE($1::timestamptz, 'epoch'::timestamptz)
		  AND created_at <= $2`
	if clause != "" {
		query += "\n\t\t  AND " + clause
	}
	query += fmt.Sprintf("\n\t\tORDER BY created_at DESC\n\t\tLIMIT %d", limit)

	params := append([]interface{}{alert.LastNotificationSent, asOf}, args...)
	rows, err := r.db.Query(ctx, query, params...)
	if err != nil {
		return nil, queryError("find_jobs_for_alert", err)
	}
	defer rows.Close()
	return collectJobs(rows, "find_jobs_for_alert")
}

// FindRelated returns jobs from the last days days that share a city,
// country or preference with the profile, or mention any of its terms.
func (r *JobRepository) FindRelated(ctx context.Context, profile models.SearchProfile, days, limit int) ([]models.Job, error) {
	if profile.Empty() {
		return nil, nil
	}

	var (
		conds []string
		args  = []interface{}{days}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(profile.Cities) > 0 {
		conds = append(conds, "city = ANY("+next(pq.Array(profile.Cities))+")")
	}
	if len(profile.Countries) > 0 {
		conds = append(conds, "country = ANY("+next(pq.Array(profile.Countries))+")")
	}
	if len(profile.Preferences) > 0 {
		conds = append(conds, "preference = ANY("+next(pq.Array(profile.Preferences))+")")
	}
	for _, term := range profile.Terms {
		p := next(matcher.ContainsPattern(term))
		conds = append(conds, "(title ILIKE "+p+" OR description ILIKE "+p+")")
	}

	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE created_at > NOW() - ($1 * INTERVAL '1 day')
		  AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY created_at DESC
		LIMIT ` + fmt.Sprint(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, queryError("find_related_jobs", err)
	}
	defer rows.Close()
	return collectJobs(rows, "find_related_jobs")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Title, &j.Company, &j.City, &j.Country, &j.Preference,
		&j.Description, &j.Applications, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

func collectJobs(rows *sql.Rows, op string) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, queryError(op, err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(op, err)
	}
	return jobs, nil
}
