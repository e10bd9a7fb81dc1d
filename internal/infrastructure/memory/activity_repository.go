package memory

import (
	"context"
	"sync"

	"github.com/agentdesk/agentdesk/internal/domain/activity"
)

// ActivityRepository is an append-only in-process log.
type ActivityRepository struct {
	mu      sync.RWMutex
	entries []activity.Entry
}

func NewActivityRepository() *ActivityRepository {
	return &ActivityRepository{}
}

func (r *ActivityRepository) Append(_ context.Context, e *activity.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *ActivityRepository) ListRecent(_ context.Context, limit int) ([]*activity.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*activity.Entry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		e := r.entries[i]
		out = append(out, &e)
	}
	return out, nil
}
