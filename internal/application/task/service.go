package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentdesk/agentdesk/internal/application/router"
	"github.com/agentdesk/agentdesk/internal/domain/task"
)

// CreateRequest is the input of task creation.
type CreateRequest struct {
	Title         string        `json:"title" validate:"required,max=500"`
	Description   string        `json:"description" validate:"max=10000"`
	Priority      task.Priority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	AssignedAgent string        `json:"assignedAgent"`
}

// Counts is the queue depth by status.
type Counts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Service handles task operations.
type Service struct {
	repo     task.Repository
	router   *router.Router
	validate *validator.Validate
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a task service.
func NewService(repo task.Repository, r *router.Router, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		router:   r,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("service", "task").Logger(),
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates req and stores a new pending task.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*task.Task, error) {
	t, err := s.build(req, task.StatusPending)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("task_id", t.ID.String()).
		Str("agent_id", t.AssignedAgent).
		Str("priority", string(t.Priority)).
		Msg("task created")
	return t, nil
}

// CreateClaimed stores a task directly in processing, owned by the caller.
func (s *Service) CreateClaimed(ctx context.Context, req CreateRequest) (*task.Task, error) {
	t, err := s.build(req, task.StatusProcessing)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("task_id", t.ID.String()).Str("agent_id", t.AssignedAgent).Msg("task created claimed")
	return t, nil
}

func (s *Service) build(req CreateRequest, status task.Status) (*task.Task, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.AssignedAgent = strings.TrimSpace(req.AssignedAgent)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	priority, err := task.ParsePriority(string(req.Priority))
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &task.Task{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.AssignedAgent != "" {
		t.AssignedAgent = req.AssignedAgent
	} else {
		id, keyword := s.router.Explain(t.Title)
		t.AssignedAgent = id
		s.logger.Debug().Str("agent_id", id).Str("keyword", keyword).Msg("task routed")
	}
	return t, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on %s", task.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", task.ErrValidation, err)
}

// Explain reports which agent and keyword a title would route to.
func (s *Service) Explain(title string) (string, string) {
	return s.router.Explain(title)
}

// Get retrieves a task by ID.
func (s *Service) Get(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, taskID)
	}
	return t, nil
}

// List lists tasks, newest first.
func (s *Service) List(ctx context.Context, status *task.Status, limit, offset int) ([]*task.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, status, limit, offset)
}

// Claim takes the oldest pending task, or returns nil when none is pending.
func (s *Service) Claim(ctx context.Context) (*task.Task, error) {
	return s.repo.ClaimNextPending(ctx, s.now())
}

// EnsureAgent routes an unassigned task and persists the assignment.
func (s *Service) EnsureAgent(ctx context.Context, t *task.Task) error {
	if t.AssignedAgent != "" {
		return nil
	}
	return s.apply(ctx, t, func(c *task.Task) error {
		c.AssignAgent(s.router.Route(c.Title), s.now())
		return nil
	})
}

// Complete records a successful result on a processing task.
func (s *Service) Complete(ctx context.Context, t *task.Task, result *task.Result) error {
	return s.apply(ctx, t, func(c *task.Task) error {
		return c.Complete(result, s.now())
	})
}

// Fail records an error message on a processing task.
func (s *Service) Fail(ctx context.Context, t *task.Task, message string) error {
	return s.apply(ctx, t, func(c *task.Task) error {
		return c.Fail(message, s.now())
	})
}

// Retry moves a failed task back to pending.
func (s *Service) Retry(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	t, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, t, func(c *task.Task) error { return c.Retry(s.now()) }); err != nil {
		return nil, err
	}
	s.logger.Info().Str("task_id", t.ID.String()).Msg("task retried")
	return t, nil
}

// apply mutates a copy, persists it against the current status, then publishes the copy into t.
func (s *Service) apply(ctx context.Context, t *task.Task, mutate func(c *task.Task) error) error {
	from := t.Status
	c := t.Clone()
	if err := mutate(c); err != nil {
		return err
	}
	if err := s.repo.Transition(ctx, c, from); err != nil {
		return err
	}
	*t = *c
	return nil
}

// ReapStale fails processing tasks untouched for longer than age.
func (s *Service) ReapStale(ctx context.Context, age time.Duration) ([]*task.Task, error) {
	now := s.now()
	reaped, err := s.repo.FailStale(ctx, now.Add(-age), fmt.Sprintf("claim expired: not finalized within %s", age), now)
	if err != nil {
		return nil, err
	}
	for _, t := range reaped {
		s.logger.Warn().Str("task_id", t.ID.String()).Str("agent_id", t.AssignedAgent).Msg("stale task failed")
	}
	return reaped, nil
}

// Counts returns the queue depth by status.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	m, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return Counts{}, err
	}
	return Counts{
		Pending:    m[task.StatusPending],
		Processing: m[task.StatusProcessing],
		Completed:  m[task.StatusCompleted],
		Failed:     m[task.StatusFailed],
	}, nil
}
