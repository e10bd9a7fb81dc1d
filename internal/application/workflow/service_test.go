package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agentdesk/agentdesk/internal/domain/activity"
	"github.com/agentdesk/agentdesk/internal/domain/workflow"
	workflowMocks "github.com/agentdesk/agentdesk/internal/domain/workflow/mocks"
	"github.com/agentdesk/agentdesk/internal/infrastructure/memory"
)

type sinkSpy struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (s *sinkSpy) Record(_ context.Context, e activity.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func newWorkflowService() (*Service, *sinkSpy) {
	h := newHarness()
	sink := &sinkSpy{}
	return NewService(memory.NewWorkflowRepository(), h.graph, sink, zerolog.Nop()), sink
}

func TestService_CreateValidates(t *testing.T) {
	svc, _ := newWorkflowService()

	_, err := svc.Create(context.Background(), &workflow.Workflow{Name: "bad", Nodes: []workflow.Node{{ID: "a", Type: workflow.NodeAction}}})
	assert.True(t, errors.Is(err, workflow.ErrNoTriggerNode))

	_, err = svc.Create(context.Background(), &workflow.Workflow{Nodes: []workflow.Node{{ID: "t", Type: workflow.NodeTrigger}}})
	assert.True(t, errors.Is(err, workflow.ErrInvalidDefinition))

	created, err := svc.Create(context.Background(), branching("true"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Nil(t, created.LastRunAt)
}

func TestService_RunStampsLastRunAndRecords(t *testing.T) {
	ctx := context.Background()
	svc, sink := newWorkflowService()

	created, err := svc.Create(ctx, branching("[nodes.a.success] == false"))
	require.NoError(t, err)

	before := time.Now().UTC().Add(-time.Second)
	res, err := svc.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, res.WorkflowID)
	assert.Len(t, res.NodeResults, 4)

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRunAt)
	assert.True(t, stored.LastRunAt.After(before))

	require.Len(t, sink.entries, 1)
	assert.Equal(t, activity.KindWorkflowRun, sink.entries[0].Kind)
	assert.Equal(t, created.ID, sink.entries[0].SubjectID)
	assert.True(t, sink.entries[0].Success)
}

func TestService_RunStampsLastRunOnNodeFailure(t *testing.T) {
	ctx := context.Background()
	svc, sink := newWorkflowService()

	wf := branching("true")
	wf.Nodes[1].Config.AgentID = "nobody"
	created, err := svc.Create(ctx, wf)
	require.NoError(t, err)

	res, err := svc.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed())

	stored, _ := svc.Get(ctx, created.ID)
	assert.NotNil(t, stored.LastRunAt)
	require.Len(t, sink.entries, 1)
	assert.False(t, sink.entries[0].Success)
}

func TestService_NotFound(t *testing.T) {
	svc, _ := newWorkflowService()
	_, err := svc.Run(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, workflow.ErrNotFound))

	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

func TestService_Import(t *testing.T) {
	svc, _ := newWorkflowService()
	doc := []byte(`{
		"name": "imported",
		"nodes": [
			{"id": "t", "type": "trigger"},
			{"id": "d", "type": "delay", "config": {"delay": "10m"}}
		],
		"edges": [{"from": "t", "to": "d"}]
	}`)
	wf, err := svc.Import(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "imported", wf.Name)

	list, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Import(context.Background(), []byte(`not json`))
	assert.True(t, errors.Is(err, workflow.ErrInvalidDefinition))
}

func TestService_StoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := workflowMocks.NewMockRepository(ctrl)
	h := newHarness()
	sink := &sinkSpy{}
	svc := NewService(repo, h.graph, sink, zerolog.Nop())
	ctx := context.Background()
	boom := errors.New("db down")

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(boom)
	_, err := svc.Create(ctx, branching("true"))
	assert.ErrorIs(t, err, boom)

	repo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(nil, boom)
	_, err = svc.Run(ctx, uuid.New())
	assert.ErrorIs(t, err, boom)

	wf := branching("true")
	wf.ID = uuid.New()
	repo.EXPECT().GetByID(gomock.Any(), wf.ID).Return(wf, nil)
	repo.EXPECT().UpdateLastRun(gomock.Any(), wf.ID, gomock.Any()).Return(boom)
	res, err := svc.Run(ctx, wf.ID)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Len(t, res.NodeResults, 4)
	assert.Empty(t, sink.entries)
}
