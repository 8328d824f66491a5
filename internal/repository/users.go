// internal/repository/users.go
package repository

import (
	"context"

	"jobboard-notifier/internal/common/database"
	"jobboard-notifier/internal/models"

	"github.com/lib/pq"
)

type UserRepository struct {
	db *database.PostgresClient
}

func NewUserRepository(db *database.PostgresClient) *UserRepository {
	return &UserRepository{db: db}
}

// GetByIDs loads the users that exist among ids, keyed by id.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	out := make(map[int64]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, email, COALESCE(phone, '')
		FROM users
		WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, queryError("get_users", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone); err != nil {
			return nil, queryError("get_users", err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("get_users", err)
	}
	return out, nil
}
