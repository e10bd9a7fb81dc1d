package sqlite

import (
	"context"
	"database/sql"

	"github.com/agentdesk/agentdesk/internal/domain/activity"
)

// ActivityRepository implements activity.Repository.
type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db.sql}
}

func (r *ActivityRepository) Append(ctx context.Context, e *activity.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, kind, subject_id, agent_id, message, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Kind, e.SubjectID, e.AgentID, e.Message, e.Success, toNanos(e.CreatedAt))
	return err
}

func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]*activity.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, subject_id, agent_id, message, success, created_at
		FROM activity_log ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*activity.Entry
	for rows.Next() {
		var e activity.Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.SubjectID, &e.AgentID, &e.Message, &e.Success, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = fromNanos(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
