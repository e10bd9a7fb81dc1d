package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentdesk/agentdesk/internal/application/dispatcher"
	appTask "github.com/agentdesk/agentdesk/internal/application/task"
	"github.com/agentdesk/agentdesk/internal/domain/task"
	"github.com/agentdesk/agentdesk/internal/domain/workflow"
	"github.com/agentdesk/agentdesk/internal/telemetry"
)

// TaskCreator creates tasks owned by the caller.
type TaskCreator interface {
	CreateClaimed(ctx context.Context, req appTask.CreateRequest) (*task.Task, error)
}

// TaskRunner executes a claimed task to a terminal state.
type TaskRunner interface {
	RunClaimed(ctx context.Context, t *task.Task) (dispatcher.Outcome, error)
}

// GraphExecutor walks a workflow breadth-first from its trigger.
type GraphExecutor struct {
	tasks     TaskCreator
	runner    TaskRunner
	evaluator PredicateEvaluator
	actions   *ActionRegistry
	tracer    trace.Tracer
	now       func() time.Time
	logger    zerolog.Logger
}

func NewGraphExecutor(tasks TaskCreator, runner TaskRunner, evaluator PredicateEvaluator, actions *ActionRegistry, logger zerolog.Logger) *GraphExecutor {
	if evaluator == nil {
		evaluator = GovaluateEvaluator{}
	}
	if actions == nil {
		actions = NewActionRegistry()
	}
	return &GraphExecutor{
		tasks:     tasks,
		runner:    runner,
		evaluator: evaluator,
		actions:   actions,
		tracer:    telemetry.Noop(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("service", "graph").Logger(),
	}
}

// WithTracer sets the tracer used for run and node spans.
func (g *GraphExecutor) WithTracer(t trace.Tracer) *GraphExecutor {
	if t != nil {
		g.tracer = t
	}
	return g
}

// run holds the per-run traversal state.
type run struct {
	wf     *workflow.Workflow
	vars   map[string]interface{}
	result *workflow.RunResult
	ok     int
	failed int
}

func (r *run) record(nr workflow.NodeResult) {
	r.result.NodeResults = append(r.result.NodeResults, nr)
	success := nr.Succeeded()
	if success {
		r.ok++
	} else {
		r.failed++
	}
	r.vars["nodes."+nr.NodeID+".success"] = success
	r.vars["nodes."+nr.NodeID+".output"] = nr.Output
	r.vars["last_success"] = success
	r.vars["last_output"] = nr.Output
	r.vars["succeeded_count"] = r.ok
	r.vars["failed_count"] = r.failed
}

// Run executes wf. Node failures are recorded per node and never stop traversal.
func (g *GraphExecutor) Run(ctx context.Context, wf *workflow.Workflow) (*workflow.RunResult, error) {
	trigger, err := wf.Trigger()
	if err != nil {
		return nil, err
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	r := &run{
		wf:   wf,
		vars: make(map[string]interface{}, len(wf.Variables)+8),
		result: &workflow.RunResult{
			RunID:       uuid.New(),
			WorkflowID:  wf.ID,
			StartedAt:   g.now(),
			NodeResults: []workflow.NodeResult{},
		},
	}
	for k, v := range wf.Variables {
		r.vars[k] = v
	}
	r.vars["workflow_name"] = wf.Name
	r.vars["last_success"] = true
	r.vars["last_output"] = ""
	r.vars["succeeded_count"] = 0
	r.vars["failed_count"] = 0

	ctx, span := g.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String(telemetry.WorkflowIDKey, wf.ID.String()),
		attribute.String(telemetry.RunIDKey, r.result.RunID.String()),
	))
	defer span.End()

	log := g.logger.With().
		Str("workflow_id", wf.ID.String()).
		Str("run_id", r.result.RunID.String()).
		Logger()

	adj := wf.Adjacency()
	visited := make(map[string]bool, len(wf.Nodes))
	queue := []string{trigger.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		node, _ := wf.Node(id)
		nr, next := g.visit(ctx, r, node, adj[id])
		r.record(nr)
		if !nr.Succeeded() {
			log.Warn().Str("node_id", id).Str("node_type", string(node.Type)).Str("error", nr.Error).Msg("workflow node failed")
		}
		for _, to := range next {
			if !visited[to] {
				queue = append(queue, to)
			}
		}
	}

	r.result.FinishedAt = g.now()
	if r.failed > 0 {
		span.SetAttributes(attribute.Int("agentdesk.run.failed_nodes", r.failed))
	}
	log.Info().Int("nodes", len(r.result.NodeResults)).Int("failed", r.failed).Msg("workflow run finished")
	return r.result, nil
}

// visit acts on node and returns its result with the successors to enqueue.
func (g *GraphExecutor) visit(ctx context.Context, r *run, node workflow.Node, out []workflow.Edge) (workflow.NodeResult, []string) {
	ctx, span := g.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String(telemetry.NodeIDKey, node.ID),
		attribute.String(telemetry.NodeTypeKey, string(node.Type)),
	))
	defer span.End()

	nr := workflow.NodeResult{NodeID: node.ID, Type: node.Type}
	all := targets(out)

	switch node.Type {
	case workflow.NodeTrigger:
		nr.Output = "triggered"
		return nr, all

	case workflow.NodeAgent:
		g.runAgent(ctx, r, node, &nr)

	case workflow.NodeCondition:
		ok, err := g.evaluator.Evaluate(node.Config.Predicate, r.vars)
		if err != nil {
			fail(&nr, fmt.Errorf("evaluate predicate: %w", err))
			telemetry.SetError(span, err)
			return nr, nil
		}
		nr.Output = strconv.FormatBool(ok)
		nr.Success = boolPtr(true)
		branch := strconv.FormatBool(ok)
		var next []string
		for _, e := range out {
			if strings.EqualFold(strings.TrimSpace(e.Branch), branch) {
				next = append(next, e.To)
			}
		}
		return nr, next

	case workflow.NodeDelay:
		d, err := parseDelay(node.Config.Delay)
		if err != nil {
			fail(&nr, err)
		} else {
			nr.Output = fmt.Sprintf("delay %s recorded (non-blocking)", d)
			nr.Success = boolPtr(true)
		}

	case workflow.NodeAction:
		g.runAction(ctx, r, node, &nr)

	default:
		fail(&nr, fmt.Errorf("unsupported node type %q", node.Type))
	}

	if !nr.Succeeded() {
		telemetry.SetError(span, fmt.Errorf("%s", nr.Error))
	}
	return nr, all
}

func (g *GraphExecutor) runAgent(ctx context.Context, r *run, node workflow.Node, nr *workflow.NodeResult) {
	title := node.Config.Title
	if title == "" {
		title = node.Label
	}
	if title == "" {
		title = "Workflow step " + node.ID
	}
	description := node.Config.Description
	if description == "" {
		description = fmt.Sprintf("Created by workflow %q", r.wf.Name)
	}

	t, err := g.tasks.CreateClaimed(ctx, appTask.CreateRequest{
		Title:         title,
		Description:   description,
		AssignedAgent: node.Config.AgentID,
	})
	if err != nil {
		fail(nr, err)
		return
	}
	nr.TaskID = &t.ID

	outcome, err := g.runner.RunClaimed(ctx, t)
	if err != nil {
		fail(nr, err)
		return
	}
	if !outcome.Success {
		fail(nr, fmt.Errorf("%s", outcome.Error))
		return
	}
	if t.Result != nil {
		nr.Output = t.Result.Overview
	}
	nr.Success = boolPtr(true)
}

func (g *GraphExecutor) runAction(ctx context.Context, r *run, node workflow.Node, nr *workflow.NodeResult) {
	action := strings.TrimSpace(node.Config.Action)
	h, arg, ok := g.actions.Lookup(action)
	if !ok {
		nr.Output = action
		nr.Success = boolPtr(true)
		return
	}
	out, err := h(ctx, ActionRequest{Workflow: r.wf, Node: node, Arg: arg, Vars: r.vars})
	if err != nil {
		fail(nr, err)
		return
	}
	nr.Output = out
	nr.Success = boolPtr(true)
}

func parseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid delay %q: negative duration", s)
	}
	return d, nil
}

func fail(nr *workflow.NodeResult, err error) {
	nr.Success = boolPtr(false)
	nr.Error = err.Error()
	nr.Output = err.Error()
}

func targets(edges []workflow.Edge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.To)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
