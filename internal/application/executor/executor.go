package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentdesk/agentdesk/internal/domain/agent"
	"github.com/agentdesk/agentdesk/internal/domain/task"
)

// Executor performs an agent's work for one task and reports a Result.
// Executors never transition tasks themselves.
type Executor interface {
	Execute(ctx context.Context, t *task.Task) (*task.Result, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, t *task.Task) (*task.Result, error)

func (f Func) Execute(ctx context.Context, t *task.Task) (*task.Result, error) {
	return f(ctx, t)
}

// ExecutionError wraps any failure raised while running an executor.
type ExecutionError struct {
	AgentID string
	Err     error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Registry maps agent ids to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds exec to agentID, replacing any previous binding.
func (r *Registry) Register(agentID string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[agentID] = exec
}

// Get returns the executor bound to agentID.
func (r *Registry) Get(agentID string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: no executor registered for %q", agent.ErrUnknownAgent, agentID)
	}
	return exec, nil
}

// IDs returns registered agent ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.executors))
	for id := range r.executors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
