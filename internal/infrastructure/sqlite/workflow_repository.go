package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentdesk/agentdesk/internal/domain/workflow"
)

// WorkflowRepository implements workflow.Repository. Definitions are stored as JSON.
type WorkflowRepository struct {
	db *sql.DB
}

func NewWorkflowRepository(db *DB) *WorkflowRepository {
	return &WorkflowRepository{db: db.sql}
}

func (r *WorkflowRepository) Create(ctx context.Context, wf *workflow.Workflow) error {
	def, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, definition, last_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, wf.ID, wf.Name, string(def), nullNanos(wf.LastRunAt), toNanos(wf.CreatedAt), toNanos(wf.UpdatedAt))
	return err
}

func (r *WorkflowRepository) GetByID(ctx context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT definition, last_run_at, updated_at FROM workflows WHERE id = ?`, workflowID)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return wf, err
}

func (r *WorkflowRepository) List(ctx context.Context, limit, offset int) ([]*workflow.Workflow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT definition, last_run_at, updated_at FROM workflows
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*workflow.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (r *WorkflowRepository) UpdateLastRun(ctx context.Context, workflowID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE workflows SET last_run_at = ?, updated_at = ? WHERE id = ?`,
		toNanos(at), toNanos(at), workflowID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, workflowID)
	}
	return nil
}

func scanWorkflow(row scanner) (*workflow.Workflow, error) {
	var def string
	var lastRun sql.NullInt64
	var updatedAt int64
	if err := row.Scan(&def, &lastRun, &updatedAt); err != nil {
		return nil, err
	}
	var wf workflow.Workflow
	if err := json.Unmarshal([]byte(def), &wf); err != nil {
		return nil, fmt.Errorf("decode workflow definition: %w", err)
	}
	wf.LastRunAt = timePtr(lastRun)
	wf.UpdatedAt = fromNanos(updatedAt)
	return &wf, nil
}
