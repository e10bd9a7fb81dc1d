package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentdesk/agentdesk/internal/domain/activity"
	"github.com/agentdesk/agentdesk/internal/domain/workflow"
)

// Service handles workflow definitions and runs.
type Service struct {
	repo   workflow.Repository
	graph  *GraphExecutor
	sink   activity.Sink
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a workflow service.
func NewService(repo workflow.Repository, graph *GraphExecutor, sink activity.Sink, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		graph:  graph,
		sink:   sink,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("service", "workflow").Logger(),
	}
}

// Create validates and stores a workflow definition.
func (s *Service) Create(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	now := s.now()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	wf.LastRunAt = nil

	if err := s.repo.Create(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	s.logger.Info().
		Str("workflow_id", wf.ID.String()).
		Int("nodes", len(wf.Nodes)).
		Msg("workflow created")
	return wf, nil
}

// Import parses a JSON definition and stores it.
func (s *Service) Import(ctx context.Context, data []byte) (*workflow.Workflow, error) {
	wf, err := workflow.Parse(data)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, wf)
}

// Get retrieves a workflow by ID.
func (s *Service) Get(ctx context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	wf, err := s.repo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, workflowID)
	}
	return wf, nil
}

// List lists workflows, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*workflow.Workflow, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// Run executes a stored workflow and stamps its lastRunAt whatever the node outcomes.
func (s *Service) Run(ctx context.Context, workflowID uuid.UUID) (*workflow.RunResult, error) {
	wf, err := s.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	result, err := s.graph.Run(ctx, wf)
	if err != nil {
		return nil, err
	}

	persist := context.WithoutCancel(ctx)
	if err := s.repo.UpdateLastRun(persist, wf.ID, result.FinishedAt); err != nil {
		return result, fmt.Errorf("failed to update last run: %w", err)
	}

	failed := result.Failed()
	if s.sink != nil {
		err := s.sink.Record(persist, activity.Entry{
			Kind:      activity.KindWorkflowRun,
			SubjectID: wf.ID,
			Message:   fmt.Sprintf("workflow %q ran %d nodes, %d failed", wf.Name, len(result.NodeResults), failed),
			Success:   failed == 0,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("workflow_id", wf.ID.String()).Msg("failed to record activity")
		}
	}
	return result, nil
}
