package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents task status.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Priority is informational; scheduling is FIFO by creation time.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrInvalidState = errors.New("invalid task state")
	ErrNotFound     = errors.New("task not found")
)

// Result is the structured report an executor returns.
type Result struct {
	Overview string         `json:"overview"`
	Actions  []string       `json:"actions"`
	Results  []string       `json:"results"`
	Files    []string       `json:"files,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Task represents a unit of work routed to an agent.
type Task struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        Status     `json:"status"`
	Priority      Priority   `json:"priority"`
	AssignedAgent string     `json:"assignedAgent,omitempty"`
	Result        *Result    `json:"result,omitempty"`
	Error         *string    `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// ParsePriority normalizes a priority string; empty maps to medium.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
	}
}

// CanTransitionTo validates task status transition.
func (t *Task) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:    {StatusProcessing},
		StatusProcessing: {StatusCompleted, StatusFailed},
		StatusCompleted:  {},
		StatusFailed:     {StatusPending},
	}
	for _, s := range transitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (t *Task) transition(target Status, now time.Time) error {
	if !t.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, t.Status, target)
	}
	t.Status = target
	t.UpdatedAt = now
	return nil
}

// Claim moves a pending task into processing.
func (t *Task) Claim(now time.Time) error {
	return t.transition(StatusProcessing, now)
}

// AssignAgent records the routed agent. An existing assignment is never replaced.
func (t *Task) AssignAgent(agentID string, now time.Time) bool {
	if t.AssignedAgent != "" {
		return false
	}
	t.AssignedAgent = agentID
	t.UpdatedAt = now
	return true
}

// Complete sets task to completed with its result.
func (t *Task) Complete(result *Result, now time.Time) error {
	if result == nil {
		result = &Result{}
	}
	if err := t.transition(StatusCompleted, now); err != nil {
		return err
	}
	t.Result = result
	t.Error = nil
	t.markFinished(now)
	return nil
}

// Fail sets task to failed with the error message.
func (t *Task) Fail(message string, now time.Time) error {
	if err := t.transition(StatusFailed, now); err != nil {
		return err
	}
	t.Error = &message
	t.Result = nil
	t.markFinished(now)
	return nil
}

// Retry moves a failed task back to pending.
func (t *Task) Retry(now time.Time) error {
	if t.Status != StatusFailed {
		return fmt.Errorf("%w: retry requires %s, task is %s", ErrInvalidState, StatusFailed, t.Status)
	}
	if err := t.transition(StatusPending, now); err != nil {
		return err
	}
	t.Error = nil
	t.Result = nil
	return nil
}

// completedAt is written once, on the first terminal transition.
func (t *Task) markFinished(now time.Time) {
	if t.CompletedAt == nil {
		ts := now
		t.CompletedAt = &ts
	}
}

// CheckInvariant reports whether result/error presence matches the status.
func (t *Task) CheckInvariant() error {
	switch t.Status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if (t.Result != nil) != (t.Status == StatusCompleted) {
		return fmt.Errorf("result presence does not match status %s", t.Status)
	}
	if (t.Error != nil) != (t.Status == StatusFailed) {
		return fmt.Errorf("error presence does not match status %s", t.Status)
	}
	return nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Result != nil {
		r := *t.Result
		r.Actions = append([]string(nil), t.Result.Actions...)
		r.Results = append([]string(nil), t.Result.Results...)
		r.Files = append([]string(nil), t.Result.Files...)
		if t.Result.Metadata != nil {
			r.Metadata = make(map[string]any, len(t.Result.Metadata))
			for k, v := range t.Result.Metadata {
				r.Metadata[k] = v
			}
		}
		c.Result = &r
	}
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}
