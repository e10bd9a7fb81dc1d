package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdesk/agentdesk/internal/domain/workflow"
)

// WorkflowRepository keeps workflow definitions as encoded documents so callers never alias stored state.
type WorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID][]byte
}

func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{workflows: make(map[uuid.UUID][]byte)}
}

func (r *WorkflowRepository) Create(_ context.Context, wf *workflow.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[wf.ID]; ok {
		return fmt.Errorf("workflow %s already exists", wf.ID)
	}
	r.workflows[wf.ID] = data
	return nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	r.mu.RLock()
	data, ok := r.workflows[workflowID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeWorkflow(data)
}

func (r *WorkflowRepository) List(_ context.Context, limit, offset int) ([]*workflow.Workflow, error) {
	r.mu.RLock()
	all := make([]*workflow.Workflow, 0, len(r.workflows))
	for _, data := range r.workflows {
		wf, err := decodeWorkflow(data)
		if err != nil {
			r.mu.RUnlock()
			return nil, err
		}
		all = append(all, wf)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *WorkflowRepository) UpdateLastRun(_ context.Context, workflowID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.workflows[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, workflowID)
	}
	wf, err := decodeWorkflow(data)
	if err != nil {
		return err
	}
	wf.LastRunAt = &at
	wf.UpdatedAt = at
	updated, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	r.workflows[workflowID] = updated
	return nil
}

func decodeWorkflow(data []byte) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}
