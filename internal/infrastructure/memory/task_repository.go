package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdesk/agentdesk/internal/domain/task"
)

// TaskRepository is a mutex-guarded in-process task store.
type TaskRepository struct {
	mu    sync.Mutex
	seq   int64
	tasks map[uuid.UUID]*entry
}

type entry struct {
	seq  int64
	task *task.Task
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{tasks: make(map[uuid.UUID]*entry)}
}

func (r *TaskRepository) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	r.seq++
	r.tasks[t.ID] = &entry{seq: r.seq, task: t.Clone()}
	return nil
}

func (r *TaskRepository) GetByID(_ context.Context, taskID uuid.UUID) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return e.task.Clone(), nil
}

func (r *TaskRepository) List(_ context.Context, status *task.Status, limit, offset int) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.sorted()
	// newest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	var out []*task.Task
	skipped := 0
	for _, e := range entries {
		if status != nil && e.task.Status != *status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, e.task.Clone())
	}
	return out, nil
}

// sorted orders entries oldest first by creation time, then insertion order.
func (r *TaskRepository) sorted() []*entry {
	entries := make([]*entry, 0, len(r.tasks))
	for _, e := range r.tasks {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
			return a.task.CreatedAt.Before(b.task.CreatedAt)
		}
		return a.seq < b.seq
	})
	return entries
}

func (r *TaskRepository) ClaimNextPending(_ context.Context, now time.Time) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sorted() {
		if e.task.Status != task.StatusPending {
			continue
		}
		if err := e.task.Claim(now); err != nil {
			return nil, err
		}
		return e.task.Clone(), nil
	}
	return nil, nil
}

func (r *TaskRepository) Transition(_ context.Context, t *task.Task, from task.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[t.ID]
	if !ok {
		return fmt.Errorf("%w: %s", task.ErrNotFound, t.ID)
	}
	if e.task.Status != from {
		return fmt.Errorf("%w: expected %s, stored %s", task.ErrInvalidState, from, e.task.Status)
	}
	e.task = t.Clone()
	return nil
}

func (r *TaskRepository) CountByStatus(_ context.Context) (map[task.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[task.Status]int)
	for _, e := range r.tasks {
		counts[e.task.Status]++
	}
	return counts, nil
}

func (r *TaskRepository) FailStale(_ context.Context, cutoff time.Time, message string, now time.Time) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []*task.Task
	for _, e := range r.sorted() {
		if e.task.Status != task.StatusProcessing || !e.task.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := e.task.Fail(message, now); err != nil {
			return failed, err
		}
		failed = append(failed, e.task.Clone())
	}
	return failed, nil
}
