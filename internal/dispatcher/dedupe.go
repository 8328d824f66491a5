// internal/dispatcher/dedupe.go
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"jobboard-notifier/internal/models"

	"github.com/redis/go-redis/v9"
)

const defaultDedupeTTL = 24 * time.Hour

// RedisDeduper remembers (type, user, job) triples that were delivered
// recently so the queue path and the sweeps do not notify twice.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(t models.NotificationType, userID, jobID int64) string {
	return fmt.Sprintf("notif:sent:%s:%d:%d", t, userID, jobID)
}

// Unsent returns the jobs that have no delivery marker for the user.
func (d *RedisDeduper) Unsent(ctx context.Context, t models.NotificationType, userID int64, jobs []models.Job) ([]models.Job, error) {
	if len(jobs) == 0 {
		return jobs, nil
	}

	pipe := d.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(jobs))
	for i, j := range jobs {
		cmds[i] = pipe.Exists(ctx, dedupeKey(t, userID, j.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("check delivery markers: %w", err)
	}

	out := make([]models.Job, 0, len(jobs))
	for i, j := range jobs {
		if cmds[i].Val() == 0 {
			out = append(out, j)
		}
	}
	return out, nil
}

// MarkSent records delivery of jobs to the user.
func (d *RedisDeduper) MarkSent(ctx context.Context, t models.NotificationType, userID int64, jobs []models.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	pipe := d.client.Pipeline()
	for _, j := range jobs {
		pipe.SetNX(ctx, dedupeKey(t, userID, j.ID), 1, d.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write delivery markers: %w", err)
	}
	return nil
}
