package task

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines task persistence.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	// GetByID returns nil, nil when the task does not exist.
	GetByID(ctx context.Context, taskID uuid.UUID) (*Task, error)
	List(ctx context.Context, status *Status, limit, offset int) ([]*Task, error)
	// ClaimNextPending atomically moves the oldest pending task to processing.
	// It returns nil, nil when nothing is pending.
	ClaimNextPending(ctx context.Context, now time.Time) (*Task, error)
	// Transition persists task only if the stored status still equals from,
	// returning ErrInvalidState otherwise.
	Transition(ctx context.Context, task *Task, from Status) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// FailStale fails processing tasks last updated before cutoff and returns them.
	FailStale(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]*Task, error)
}
