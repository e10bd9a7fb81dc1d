package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentdesk/agentdesk/internal/domain/activity"
)

// ActivityRepository implements activity.Repository.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func (r *ActivityRepository) Append(ctx context.Context, e *activity.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_log (entry_id, kind, subject_id, agent_id, message, success, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, e.ID, string(e.Kind), e.SubjectID, e.AgentID, e.Message, e.Success, e.CreatedAt)
	return err
}

func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]*activity.Entry, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT entry_id, kind, subject_id, agent_id, message, success, created_at
		FROM activity_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*activity.Entry
	for rows.Next() {
		var e activity.Entry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.SubjectID, &e.AgentID, &e.Message, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = activity.Kind(kind)
		out = append(out, &e)
	}
	return out, rows.Err()
}
