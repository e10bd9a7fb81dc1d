package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an activity entry.
type Kind string

const (
	KindTaskCompleted Kind = "task.completed"
	KindTaskFailed    Kind = "task.failed"
	KindWorkflowRun   Kind = "workflow.run"
)

// Entry is an append-only record of a finished task or workflow run.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	SubjectID uuid.UUID `json:"subjectId"`
	AgentID   string    `json:"agentId,omitempty"`
	Message   string    `json:"message"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink receives activity entries.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// Repository stores activity entries.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	// ListRecent returns newest entries first.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
}
