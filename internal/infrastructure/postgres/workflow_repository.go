package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentdesk/agentdesk/internal/domain/workflow"
)

// WorkflowRepository implements workflow.Repository.
type WorkflowRepository struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepository(pool *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

func (r *WorkflowRepository) Create(ctx context.Context, wf *workflow.Workflow) error {
	def, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO workflows (workflow_id, name, definition, last_run_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, wf.ID, wf.Name, def, wf.LastRunAt, wf.CreatedAt, wf.UpdatedAt)
	return err
}

func (r *WorkflowRepository) GetByID(ctx context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT definition, last_run_at, updated_at FROM workflows WHERE workflow_id=$1
	`, workflowID)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return wf, err
}

func (r *WorkflowRepository) List(ctx context.Context, limit, offset int) ([]*workflow.Workflow, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT definition, last_run_at, updated_at FROM workflows
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, lim, offset)
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
	tag, err := r.pool.Exec(ctx, `
		UPDATE workflows SET last_run_at=$1, updated_at=$1 WHERE workflow_id=$2
	`, at, workflowID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, workflowID)
	}
	return nil
}

func scanWorkflow(row pgx.Row) (*workflow.Workflow, error) {
	var def []byte
	var lastRun *time.Time
	var updatedAt time.Time
	if err := row.Scan(&def, &lastRun, &updatedAt); err != nil {
		return nil, err
	}
	var wf workflow.Workflow
	if err := json.Unmarshal(def, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow definition: %w", err)
	}
	wf.LastRunAt = lastRun
	wf.UpdatedAt = updatedAt
	return &wf, nil
}
