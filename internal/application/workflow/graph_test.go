package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdesk/agentdesk/internal/application/dispatcher"
	"github.com/agentdesk/agentdesk/internal/application/executor"
	"github.com/agentdesk/agentdesk/internal/application/router"
	appTask "github.com/agentdesk/agentdesk/internal/application/task"
	"github.com/agentdesk/agentdesk/internal/domain/agent"
	"github.com/agentdesk/agentdesk/internal/domain/task"
	"github.com/agentdesk/agentdesk/internal/domain/workflow"
	"github.com/agentdesk/agentdesk/internal/infrastructure/memory"
)

type memContent struct{}

func (memContent) Write(_ context.Context, relPath string, _ []byte) (string, error) {
	return "mem://" + relPath, nil
}

type captureNotifier struct {
	sent []executor.Message
	err  error
}

func (n *captureNotifier) Notify(_ context.Context, msg executor.Message) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

type harness struct {
	tasksRepo *memory.TaskRepository
	tasks     *appTask.Service
	registry  *executor.Registry
	notifier  *captureNotifier
	graph     *GraphExecutor
}

func newHarness() *harness {
	repo := memory.NewTaskRepository()
	tasks := appTask.NewService(repo, router.NewDefault(), zerolog.Nop())
	notifier := &captureNotifier{}
	registry := executor.NewBuiltinRegistry(executor.Ports{Content: memContent{}, Notifier: notifier}, zerolog.Nop())
	disp := dispatcher.New(tasks, registry, nil, zerolog.Nop())
	graph := NewGraphExecutor(tasks, disp, GovaluateEvaluator{}, DefaultActions(notifier, zerolog.Nop()), zerolog.Nop())
	return &harness{tasksRepo: repo, tasks: tasks, registry: registry, notifier: notifier, graph: graph}
}

func visitedIDs(r *workflow.RunResult) []string {
	ids := make([]string, 0, len(r.NodeResults))
	for _, nr := range r.NodeResults {
		ids = append(ids, nr.NodeID)
	}
	return ids
}

func branching(predicate string) *workflow.Workflow {
	return &workflow.Workflow{
		Name: "triage",
		Nodes: []workflow.Node{
			{ID: "trigger", Type: workflow.NodeTrigger},
			{ID: "a", Type: workflow.NodeAgent, Config: workflow.NodeConfig{AgentID: agent.IDBuilder, Title: "Fix the login bug"}},
			{ID: "cond", Type: workflow.NodeCondition, Config: workflow.NodeConfig{Predicate: predicate}},
			{ID: "x", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "Action X"}},
			{ID: "y", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "Action Y"}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", From: "trigger", To: "a"},
			{ID: "e2", From: "a", To: "cond"},
			{ID: "e3", From: "cond", To: "x", Branch: "true"},
			{ID: "e4", From: "cond", To: "y", Branch: "false"},
		},
	}
}

func TestGraph_FalseBranch(t *testing.T) {
	h := newHarness()
	res, err := h.graph.Run(context.Background(), branching("[nodes.a.success] == false"))
	require.NoError(t, err)

	assert.Equal(t, []string{"trigger", "a", "cond", "y"}, visitedIDs(res))
	_, hasX := res.Result("x")
	assert.False(t, hasX)

	trig, _ := res.Result("trigger")
	assert.Equal(t, "triggered", trig.Output)

	a, _ := res.Result("a")
	assert.True(t, a.Succeeded())
	assert.NotEmpty(t, a.Output)
	require.NotNil(t, a.TaskID)

	cond, _ := res.Result("cond")
	assert.Equal(t, "false", cond.Output)

	y, _ := res.Result("y")
	assert.Equal(t, "Action Y", y.Output)

	stored, err := h.tasks.Get(context.Background(), *a.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, stored.Status)
	assert.Equal(t, agent.IDBuilder, stored.AssignedAgent)
}

func TestGraph_TrueBranch(t *testing.T) {
	h := newHarness()
	res, err := h.graph.Run(context.Background(), branching("last_success && [nodes.a.success]"))
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger", "a", "cond", "x"}, visitedIDs(res))
}

func TestGraph_CycleVisitsOnce(t *testing.T) {
	h := newHarness()
	wf := &workflow.Workflow{
		Name: "loop",
		Nodes: []workflow.Node{
			{ID: "t", Type: workflow.NodeTrigger},
			{ID: "p", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "ping"}},
			{ID: "q", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "pong"}},
		},
		Edges: []workflow.Edge{
			{From: "t", To: "p"},
			{From: "p", To: "q"},
			{From: "q", To: "p"},
			{From: "q", To: "t"},
			{From: "p", To: "p"},
		},
	}
	res, err := h.graph.Run(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "p", "q"}, visitedIDs(res))
}

func TestGraph_BreadthFirstOrder(t *testing.T) {
	h := newHarness()
	wf := &workflow.Workflow{
		Name: "fan",
		Nodes: []workflow.Node{
			{ID: "t", Type: workflow.NodeTrigger},
			{ID: "l1", Type: workflow.NodeAction},
			{ID: "r1", Type: workflow.NodeAction},
			{ID: "l2", Type: workflow.NodeAction},
			{ID: "join", Type: workflow.NodeAction},
		},
		Edges: []workflow.Edge{
			{From: "t", To: "l1"},
			{From: "t", To: "r1"},
			{From: "l1", To: "l2"},
			{From: "r1", To: "join"},
			{From: "l2", To: "join"},
		},
	}
	res, err := h.graph.Run(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "l1", "r1", "l2", "join"}, visitedIDs(res))
}

func TestGraph_TriggerErrors(t *testing.T) {
	h := newHarness()

	none := &workflow.Workflow{Name: "none", Nodes: []workflow.Node{{ID: "a", Type: workflow.NodeAction}}}
	_, err := h.graph.Run(context.Background(), none)
	assert.True(t, errors.Is(err, workflow.ErrNoTriggerNode))

	two := &workflow.Workflow{Name: "two", Nodes: []workflow.Node{{ID: "a", Type: workflow.NodeTrigger}, {ID: "b", Type: workflow.NodeTrigger}}}
	_, err = h.graph.Run(context.Background(), two)
	assert.True(t, errors.Is(err, workflow.ErrNoTriggerNode))
}

func TestGraph_FailedAgentDoesNotStopSiblings(t *testing.T) {
	h := newHarness()
	h.registry.Register(agent.IDWriter, executor.Func(func(context.Context, *task.Task) (*task.Result, error) {
		return nil, errors.New("writer offline")
	}))
	wf := &workflow.Workflow{
		Name: "partial",
		Nodes: []workflow.Node{
			{ID: "t", Type: workflow.NodeTrigger},
			{ID: "w", Type: workflow.NodeAgent, Config: workflow.NodeConfig{AgentID: agent.IDWriter}},
			{ID: "r", Type: workflow.NodeAgent, Label: "Research pricing", Config: workflow.NodeConfig{AgentID: agent.IDResearcher}},
			{ID: "after", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "cleanup"}},
			{ID: "ghost", Type: workflow.NodeAgent, Config: workflow.NodeConfig{AgentID: "nobody"}},
		},
		Edges: []workflow.Edge{
			{From: "t", To: "w"},
			{From: "t", To: "r"},
			{From: "t", To: "ghost"},
			{From: "w", To: "after"},
		},
	}
	res, err := h.graph.Run(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "w", "r", "ghost", "after"}, visitedIDs(res))

	w, _ := res.Result("w")
	assert.False(t, w.Succeeded())
	assert.Equal(t, "writer offline", w.Error)

	r, _ := res.Result("r")
	assert.True(t, r.Succeeded())

	ghost, _ := res.Result("ghost")
	assert.False(t, ghost.Succeeded())
	assert.Contains(t, ghost.Error, "unknown agent")

	after, _ := res.Result("after")
	assert.True(t, after.Succeeded())
	assert.Equal(t, 2, res.Failed())

	stored, err := h.tasks.Get(context.Background(), *w.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, stored.Status)
	assert.Equal(t, "Workflow step w", stored.Title)

	stored, err = h.tasks.Get(context.Background(), *r.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "Research pricing", stored.Title)
}

func TestGraph_AgentTasksAreNotVisibleToDispatcher(t *testing.T) {
	h := newHarness()
	_, err := h.graph.Run(context.Background(), branching("true"))
	require.NoError(t, err)

	claimed, err := h.tasks.Claim(context.Background())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestGraph_ConditionEvaluationError(t *testing.T) {
	h := newHarness()
	res, err := h.graph.Run(context.Background(), branching("undefined_flag > 1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"trigger", "a", "cond"}, visitedIDs(res))
	cond, _ := res.Result("cond")
	assert.False(t, cond.Succeeded())
	assert.NotEmpty(t, cond.Error)
}

func TestGraph_ConditionIgnoresUnlabelledEdges(t *testing.T) {
	h := newHarness()
	wf := branching("true")
	wf.Edges = append(wf.Edges, workflow.Edge{From: "cond", To: "y"})
	wf.Edges[2].Branch = " TRUE "

	res, err := h.graph.Run(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger", "a", "cond", "x"}, visitedIDs(res))
}

func TestGraph_WorkflowVariables(t *testing.T) {
	h := newHarness()
	wf := branching("region == 'eu' && workflow_name == 'triage'")
	wf.Variables = map[string]interface{}{"region": "eu"}

	res, err := h.graph.Run(context.Background(), wf)
	require.NoError(t, err)
	_, hasX := res.Result("x")
	assert.True(t, hasX)
}

func TestGraph_Delay(t *testing.T) {
	h := newHarness()
	wf := &workflow.Workflow{
		Name: "delays",
		Nodes: []workflow.Node{
			{ID: "t", Type: workflow.NodeTrigger},
			{ID: "ok", Type: workflow.NodeDelay, Config: workflow.NodeConfig{Delay: "90s"}},
			{ID: "bad", Type: workflow.NodeDelay, Config: workflow.NodeConfig{Delay: "soon"}},
			{ID: "next", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "continue"}},
		},
		Edges: []workflow.Edge{
			{From: "t", To: "ok"},
			{From: "ok", To: "bad"},
			{From: "bad", To: "next"},
		},
	}
	res, err := h.graph.Run(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "ok", "bad", "next"}, visitedIDs(res))

	ok, _ := res.Result("ok")
	assert.Equal(t, "delay 1m30s recorded (non-blocking)", ok.Output)

	bad, _ := res.Result("bad")
	assert.False(t, bad.Succeeded())
}

func TestGraph_ActionHandlers(t *testing.T) {
	h := newHarness()
	h.graph.actions.Register("explode", func(context.Context, ActionRequest) (string, error) {
		return "", errors.New("kaboom")
	})
	wf := &workflow.Workflow{
		Name: "actions",
		Nodes: []workflow.Node{
			{ID: "t", Type: workflow.NodeTrigger},
			{ID: "n", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "notify: Release is out"}},
			{ID: "l", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "log:checkpoint"}},
			{ID: "e", Type: workflow.NodeAction, Config: workflow.NodeConfig{Action: "explode"}},
		},
		Edges: []workflow.Edge{
			{From: "t", To: "n"},
			{From: "n", To: "l"},
			{From: "l", To: "e"},
		},
	}
	res, err := h.graph.Run(context.Background(), wf)
	require.NoError(t, err)

	n, _ := res.Result("n")
	assert.Equal(t, "notified: Release is out", n.Output)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "Release is out", h.notifier.sent[0].Subject)

	l, _ := res.Result("l")
	assert.Equal(t, "logged: checkpoint", l.Output)

	e, _ := res.Result("e")
	assert.False(t, e.Succeeded())
	assert.Equal(t, "kaboom", e.Error)
}
