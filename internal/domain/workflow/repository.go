package workflow

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines workflow persistence.
type Repository interface {
	Create(ctx context.Context, wf *Workflow) error
	// GetByID returns nil, nil when the workflow does not exist.
	GetByID(ctx context.Context, workflowID uuid.UUID) (*Workflow, error)
	List(ctx context.Context, limit, offset int) ([]*Workflow, error)
	UpdateLastRun(ctx context.Context, workflowID uuid.UUID, at time.Time) error
}
