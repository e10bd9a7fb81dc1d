package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agentdesk/agentdesk/internal/application/router"
	"github.com/agentdesk/agentdesk/internal/domain/agent"
	"github.com/agentdesk/agentdesk/internal/domain/task"
	taskMocks "github.com/agentdesk/agentdesk/internal/domain/task/mocks"
	"github.com/agentdesk/agentdesk/internal/infrastructure/memory"
)

func newService() (*Service, *memory.TaskRepository) {
	repo := memory.NewTaskRepository()
	return NewService(repo, router.NewDefault(), zerolog.Nop()), repo
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("routes and trims", func(t *testing.T) {
		svc, repo := newService()
		created, err := svc.Create(ctx, CreateRequest{Title: "  Fix the login bug  "})
		require.NoError(t, err)

		assert.Equal(t, "Fix the login bug", created.Title)
		assert.Equal(t, task.StatusPending, created.Status)
		assert.Equal(t, task.PriorityMedium, created.Priority)
		assert.Equal(t, agent.IDBuilder, created.AssignedAgent)

		stored, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, stored.ID)
	})

	t.Run("explicit agent skips router", func(t *testing.T) {
		svc, _ := newService()
		created, err := svc.Create(ctx, CreateRequest{Title: "Fix the login bug", AssignedAgent: agent.IDWriter, Priority: task.PriorityHigh})
		require.NoError(t, err)
		assert.Equal(t, agent.IDWriter, created.AssignedAgent)
		assert.Equal(t, task.PriorityHigh, created.Priority)
	})

	t.Run("validation rejects before any write", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := taskMocks.NewMockRepository(ctrl)
		svc := NewService(repo, router.NewDefault(), zerolog.Nop())

		for _, req := range []CreateRequest{
			{Title: ""},
			{Title: "   "},
			{Title: "ok", Priority: "URGENT"},
			{Title: strings.Repeat("x", 501)},
		} {
			_, err := svc.Create(ctx, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, task.ErrValidation), "%+v: %v", req, err)
		}
	})

	t.Run("repository error propagates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := taskMocks.NewMockRepository(ctrl)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

		svc := NewService(repo, router.NewDefault(), zerolog.Nop())
		_, err := svc.Create(ctx, CreateRequest{Title: "Fix it"})
		assert.EqualError(t, err, "db down")
	})
}

func TestService_CreateClaimed(t *testing.T) {
	svc, repo := newService()
	created, err := svc.CreateClaimed(context.Background(), CreateRequest{Title: "Workflow step", AssignedAgent: agent.IDResearcher})
	require.NoError(t, err)
	assert.Equal(t, task.StatusProcessing, created.Status)

	claimed, err := repo.ClaimNextPending(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestService_LifecycleAndRetry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	created, err := svc.Create(ctx, CreateRequest{Title: "Research competitor pricing"})
	require.NoError(t, err)

	claimed, err := svc.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, created.ID, claimed.ID)

	require.NoError(t, svc.Fail(ctx, claimed, "upstream timeout"))
	require.NoError(t, claimed.CheckInvariant())

	again, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, again.Status)
	assert.Equal(t, "upstream timeout", *again.Error)

	retried, err := svc.Retry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, retried.Status)
	assert.Nil(t, retried.Error)
	assert.Equal(t, created.CreatedAt, retried.CreatedAt)

	_, err = svc.Retry(ctx, created.ID)
	assert.True(t, errors.Is(err, task.ErrInvalidState))

	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Pending: 1}, counts)
}

func TestService_RetryStaleTaskLeavesCallerCopyUntouched(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	msg := "boom"
	failed := &task.Task{ID: uuid.New(), Title: "x", Status: task.StatusFailed, Error: &msg}
	repo := taskMocks.NewMockRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), failed.ID).Return(failed, nil)
	repo.EXPECT().Transition(gomock.Any(), gomock.Any(), task.StatusFailed).Return(task.ErrInvalidState)

	svc := NewService(repo, router.NewDefault(), zerolog.Nop())
	_, err := svc.Retry(ctx, failed.ID)
	assert.True(t, errors.Is(err, task.ErrInvalidState))
	assert.Equal(t, task.StatusFailed, failed.Status)
	assert.NotNil(t, failed.Error)
}

func TestService_GetNotFound(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, task.ErrNotFound))

	_, err = svc.Retry(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, task.ErrNotFound))
}

func TestService_EnsureAgent(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService()

	tk := &task.Task{ID: uuid.New(), Title: "draft the newsletter", Status: task.StatusPending, Priority: task.PriorityLow, CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, tk))
	claimed, err := svc.Claim(ctx)
	require.NoError(t, err)
	require.Empty(t, claimed.AssignedAgent)

	require.NoError(t, svc.EnsureAgent(ctx, claimed))
	assert.Equal(t, agent.IDWriter, claimed.AssignedAgent)

	stored, _ := repo.GetByID(ctx, tk.ID)
	assert.Equal(t, agent.IDWriter, stored.AssignedAgent)
	assert.Equal(t, task.StatusProcessing, stored.Status)
}

func TestService_ReapStale(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := "claim expired: not finalized within 3m0s"
	reaped := &task.Task{ID: uuid.New(), Status: task.StatusFailed, Error: &msg}

	repo := taskMocks.NewMockRepository(ctrl)
	repo.EXPECT().FailStale(gomock.Any(), now.Add(-3*time.Minute), msg, now).Return([]*task.Task{reaped}, nil)
	svc := NewService(repo, router.NewDefault(), zerolog.Nop()).WithClock(func() time.Time { return now })

	got, err := svc.ReapStale(context.Background(), 3*time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, reaped.ID, got[0].ID)

	repo.EXPECT().FailStale(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
	_, err = svc.ReapStale(context.Background(), time.Minute)
	assert.EqualError(t, err, "db down")
}
