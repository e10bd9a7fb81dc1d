package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentdesk/agentdesk/internal/domain/task"
)

const taskColumns = `task_id, title, description, status, priority, assigned_agent, result, error, created_at, updated_at, completed_at`

// TaskRepository implements task.Repository.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	result, err := encodeResult(t.Result)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.AssignedAgent, result, t.Error, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id=$1`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TaskRepository) List(ctx context.Context, status *task.Status, limit, offset int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []interface{}{}
	if status != nil {
		query += " WHERE status=$1"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT $" + strconv.Itoa(len(args)+1)
		args = append(args, limit)
	}
	query += " OFFSET $" + strconv.Itoa(len(args)+1)
	args = append(args, offset)

	rows, err := r.pool.Query(ctx, query, args...)
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

// ClaimNextPending locks the oldest pending row, skipping rows other claimers hold.
func (r *TaskRepository) ClaimNextPending(ctx context.Context, now time.Time) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tasks SET status=$1, updated_at=$2
		WHERE id = (
			SELECT id FROM tasks
			WHERE status=$3
			ORDER BY created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+taskColumns,
		string(task.StatusProcessing), now, string(task.StatusPending))
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TaskRepository) Transition(ctx context.Context, t *task.Task, from task.Status) error {
	result, err := encodeResult(t.Result)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET title=$1, description=$2, status=$3, priority=$4, assigned_agent=$5,
			result=$6, error=$7, updated_at=$8, completed_at=$9
		WHERE task_id=$10 AND status=$11
	`, t.Title, t.Description, string(t.Status), string(t.Priority), t.AssignedAgent, result, t.Error, t.UpdatedAt, t.CompletedAt, t.ID, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var stored string
	err = r.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE task_id=$1`, t.ID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", task.ErrNotFound, t.ID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expected %s, stored %s", task.ErrInvalidState, from, stored)
}

// FailStale fails abandoned claims; rows another claimer holds are left alone.
func (r *TaskRepository) FailStale(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]*task.Task, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE tasks SET status=$1, error=$2, result=NULL, updated_at=$3,
			completed_at=COALESCE(completed_at, $3)
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status=$4 AND updated_at < $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		string(task.StatusFailed), message, now, string(task.StatusProcessing), cutoff)
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
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[task.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[task.Status(s)] = n
	}
	return counts, rows.Err()
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	var status, priority string
	var result []byte
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.AssignedAgent,
		&result, &t.Error, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	if len(result) > 0 {
		var res task.Result
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("decode result for task %s: %w", t.ID, err)
		}
		t.Result = &res
	}
	return &t, nil
}

func encodeResult(r *task.Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}
