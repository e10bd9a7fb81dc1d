package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentdesk/agentdesk/internal/domain/task"
)

const taskColumns = `id, title, description, status, priority, assigned_agent, result, error, created_at, updated_at, completed_at`

// TaskRepository implements task.Repository.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db.sql}
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	result, err := encodeResult(t.Result)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.AssignedAgent, result, nullString(t.Error),
		toNanos(t.CreatedAt), toNanos(t.UpdatedAt), nullNanos(t.CompletedAt))
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TaskRepository) List(ctx context.Context, status *task.Status, limit, offset int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ClaimNextPending flips the oldest pending row in a single statement.
func (r *TaskRepository) ClaimNextPending(ctx context.Context, now time.Time) (*task.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE seq = (
			SELECT seq FROM tasks WHERE status = ?
			ORDER BY created_at ASC, seq ASC LIMIT 1
		) AND status = ?
		RETURNING `+taskColumns,
		task.StatusProcessing, toNanos(now), task.StatusPending, task.StatusPending)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TaskRepository) Transition(ctx context.Context, t *task.Task, from task.Status) error {
	result, err := encodeResult(t.Result)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, assigned_agent = ?,
			result = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, t.Title, t.Description, t.Status, t.Priority, t.AssignedAgent, result, nullString(t.Error),
		toNanos(t.UpdatedAt), nullNanos(t.CompletedAt), t.ID, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var stored task.Status
	err = r.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, t.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", task.ErrNotFound, t.ID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expected %s, stored %s", task.ErrInvalidState, from, stored)
}

// FailStale fails abandoned claims in one statement; completed_at keeps its first value.
func (r *TaskRepository) FailStale(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]*task.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE tasks SET status = ?, error = ?, result = NULL, updated_at = ?,
			completed_at = COALESCE(completed_at, ?)
		WHERE status = ? AND updated_at < ?
		RETURNING `+taskColumns,
		task.StatusFailed, message, toNanos(now), toNanos(now), task.StatusProcessing, toNanos(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[task.Status]int)
	for rows.Next() {
		var s task.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*task.Task, error) {
	var t task.Task
	var result, errMsg sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.AssignedAgent,
		&result, &errMsg, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	if result.Valid {
		var res task.Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("decode result for task %s: %w", t.ID, err)
		}
		t.Result = &res
	}
	if errMsg.Valid {
		msg := errMsg.String
		t.Error = &msg
	}
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}

func encodeResult(r *task.Result) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
