package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentdesk/agentdesk/internal/application/executor"
	appTask "github.com/agentdesk/agentdesk/internal/application/task"
	"github.com/agentdesk/agentdesk/internal/domain/activity"
	"github.com/agentdesk/agentdesk/internal/domain/task"
	"github.com/agentdesk/agentdesk/internal/telemetry"
)

const (
	// DefaultTimeout bounds a single executor invocation.
	DefaultTimeout = 2 * time.Minute
	// DefaultReapMargin is added to the timeout before a processing task counts as abandoned.
	DefaultReapMargin = time.Minute
)

// Outcome reports one dispatch attempt. Found is false when nothing was pending.
type Outcome struct {
	Found   bool      `json:"found"`
	TaskID  uuid.UUID `json:"taskId,omitempty"`
	AgentID string    `json:"agentId,omitempty"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// NoPendingTask is the outcome of a dispatch that found no work.
var NoPendingTask = Outcome{}

// Dispatcher claims pending tasks and runs them through their agent's executor.
type Dispatcher struct {
	tasks    *appTask.Service
	registry *executor.Registry
	sink     activity.Sink
	timeout  time.Duration
	margin   time.Duration
	tracer   trace.Tracer
	logger   zerolog.Logger

	persistTries   uint
	persistBackOff func() backoff.BackOff
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithTimeout(d time.Duration) Option {
	return func(ds *Dispatcher) {
		if d > 0 {
			ds.timeout = d
		}
	}
}

func WithReapMargin(d time.Duration) Option {
	return func(ds *Dispatcher) {
		if d >= 0 {
			ds.margin = d
		}
	}
}

// WithPersistBackOff sets the retry policy for terminal task writes.
func WithPersistBackOff(f func() backoff.BackOff, tries uint) Option {
	return func(ds *Dispatcher) {
		if tries < 1 {
			tries = 1
		}
		ds.persistBackOff = f
		ds.persistTries = tries
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(ds *Dispatcher) {
		if t != nil {
			ds.tracer = t
		}
	}
}

func New(tasks *appTask.Service, registry *executor.Registry, sink activity.Sink, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tasks:    tasks,
		registry: registry,
		sink:     sink,
		timeout:  DefaultTimeout,
		margin:   DefaultReapMargin,
		tracer:   telemetry.Noop(),
		logger:   logger.With().Str("service", "dispatcher").Logger(),

		persistTries: 5,
		persistBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchOne claims the oldest pending task and runs it to a terminal state.
// Executor failures are recorded on the task; only store failures are returned.
func (d *Dispatcher) DispatchOne(ctx context.Context) (Outcome, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch_one")
	defer span.End()

	t, err := d.tasks.Claim(ctx)
	if err != nil {
		telemetry.SetError(span, err)
		return Outcome{}, err
	}
	if t == nil {
		return NoPendingTask, nil
	}
	return d.run(ctx, span, t)
}

// RunClaimed runs a task the caller already holds in processing.
func (d *Dispatcher) RunClaimed(ctx context.Context, t *task.Task) (Outcome, error) {
	if t.Status != task.StatusProcessing {
		return Outcome{}, fmt.Errorf("%w: task %s is %s", task.ErrInvalidState, t.ID, t.Status)
	}
	ctx, span := d.tracer.Start(ctx, "dispatcher.run_claimed")
	defer span.End()
	return d.run(ctx, span, t)
}

// Drain dispatches until the queue is empty, max tasks ran, or ctx ends. A max of zero means no limit.
func (d *Dispatcher) Drain(ctx context.Context, max int) ([]Outcome, error) {
	var outcomes []Outcome
	for max <= 0 || len(outcomes) < max {
		if ctx.Err() != nil {
			return outcomes, nil
		}
		o, err := d.DispatchOne(ctx)
		if err != nil {
			return outcomes, err
		}
		if !o.Found {
			break
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (d *Dispatcher) run(ctx context.Context, span trace.Span, t *task.Task) (Outcome, error) {
	// terminal writes must land even if the caller gives up
	persist := context.WithoutCancel(ctx)

	if err := d.persist(persist, t, "assign", d.tasks.EnsureAgent); err != nil {
		telemetry.SetError(span, err)
		return Outcome{Found: true, TaskID: t.ID}, err
	}
	out := Outcome{Found: true, TaskID: t.ID, AgentID: t.AssignedAgent}
	span.SetAttributes(
		attribute.String(telemetry.TaskIDKey, t.ID.String()),
		attribute.String(telemetry.AgentIDKey, t.AssignedAgent),
	)
	log := d.logger.With().Str("task_id", t.ID.String()).Str("agent_id", t.AssignedAgent).Logger()

	started := time.Now()
	result, execErr := d.execute(ctx, t)
	if execErr != nil {
		out.Error = execErr.Error()
		telemetry.SetError(span, execErr)
		fail := func(ctx context.Context, t *task.Task) error { return d.tasks.Fail(ctx, t, out.Error) }
		if err := d.persist(persist, t, "fail", fail); err != nil {
			return out, err
		}
		log.Warn().Err(execErr).Dur("elapsed", time.Since(started)).Msg("task failed")
		d.record(persist, activity.KindTaskFailed, t, out.Error, false)
		return out, nil
	}

	complete := func(ctx context.Context, t *task.Task) error { return d.tasks.Complete(ctx, t, result) }
	if err := d.persist(persist, t, "complete", complete); err != nil {
		telemetry.SetError(span, err)
		return out, err
	}
	out.Success = true
	log.Info().Dur("elapsed", time.Since(started)).Msg("task completed")
	d.record(persist, activity.KindTaskCompleted, t, result.Overview, true)
	return out, nil
}

// persist retries a task write. A stale status or a missing row is final.
// A write that still fails leaves the task to ReapStale.
func (d *Dispatcher) persist(ctx context.Context, t *task.Task, op string, write func(context.Context, *task.Task) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := write(ctx, t)
		if errors.Is(err, task.ErrInvalidState) || errors.Is(err, task.ErrNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(d.persistBackOff()), backoff.WithMaxTries(d.persistTries))
	if err != nil {
		d.logger.Error().Err(err).Str("task_id", t.ID.String()).Str("op", op).Int("attempts", attempt).Msg("failed to persist task")
	}
	return err
}

// ReapStale fails processing tasks whose claim outlived the dispatch timeout plus the
// reap margin, such as tasks stranded by a crash or a lost terminal write.
func (d *Dispatcher) ReapStale(ctx context.Context) (int, error) {
	reaped, err := d.tasks.ReapStale(ctx, d.timeout+d.margin)
	if err != nil {
		return 0, err
	}
	for _, t := range reaped {
		msg := ""
		if t.Error != nil {
			msg = *t.Error
		}
		d.record(ctx, activity.KindTaskFailed, t, msg, false)
	}
	return len(reaped), nil
}

type execResult struct {
	result *task.Result
	err    error
}

// execute runs the executor under the dispatch deadline. The returned error is always an *executor.ExecutionError.
func (d *Dispatcher) execute(ctx context.Context, t *task.Task) (*task.Result, error) {
	agentID := t.AssignedAgent
	exec, err := d.registry.Get(agentID)
	if err != nil {
		return nil, &executor.ExecutionError{AgentID: agentID, Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan execResult, 1)
	snapshot := t.Clone()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("executor panicked: %v", r)}
			}
		}()
		res, err := exec.Execute(runCtx, snapshot)
		done <- execResult{result: res, err: err}
	}()
	return d.await(ctx, runCtx, t, done)
}

// await waits for the executor result or the deadline, whichever comes first.
func (d *Dispatcher) await(ctx, runCtx context.Context, t *task.Task, done <-chan execResult) (*task.Result, error) {
	agentID := t.AssignedAgent
	select {
	case r := <-done:
		return d.collect(ctx, runCtx, t, r)
	case <-runCtx.Done():
		// a result that landed together with the deadline still counts
		select {
		case r := <-done:
			return d.collect(ctx, runCtx, t, r)
		default:
		}
		if ctx.Err() != nil {
			return nil, &executor.ExecutionError{AgentID: agentID, Err: fmt.Errorf("execution cancelled: %w", ctx.Err())}
		}
		return nil, &executor.ExecutionError{AgentID: agentID, Err: d.timeoutError()}
	}
}

func (d *Dispatcher) collect(ctx, runCtx context.Context, t *task.Task, r execResult) (*task.Result, error) {
	agentID := t.AssignedAgent
	if r.err != nil {
		if errors.Is(r.err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			r.err = d.timeoutError()
		}
		return nil, &executor.ExecutionError{AgentID: agentID, Err: r.err}
	}
	res := r.result
	if res == nil {
		res = &task.Result{}
	}
	if res.Overview == "" {
		res.Overview = fmt.Sprintf("%s finished %q", agentID, t.Title)
	}
	return res, nil
}

func (d *Dispatcher) timeoutError() error {
	return fmt.Errorf("execution timed out after %s", d.timeout)
}

func (d *Dispatcher) record(ctx context.Context, kind activity.Kind, t *task.Task, message string, success bool) {
	if d.sink == nil {
		return
	}
	err := d.sink.Record(ctx, activity.Entry{
		Kind:      kind,
		SubjectID: t.ID,
		AgentID:   t.AssignedAgent,
		Message:   message,
		Success:   success,
	})
	if err != nil {
		d.logger.Warn().Err(err).Str("task_id", t.ID.String()).Msg("failed to record activity")
	}
}
