package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// NodeType is the closed set of workflow node kinds.
type NodeType string

const (
	NodeTrigger   NodeType = "trigger"
	NodeAgent     NodeType = "agent"
	NodeCondition NodeType = "condition"
	NodeDelay     NodeType = "delay"
	NodeAction    NodeType = "action"
)

var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrNoTriggerNode     = errors.New("workflow must have exactly one trigger node")
	ErrNotFound          = errors.New("workflow not found")
)

// Workflow is a directed graph of typed nodes.
type Workflow struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Nodes       []Node         `json:"nodes" validate:"required,min=1,dive"`
	Edges       []Edge         `json:"edges" validate:"dive"`
	Variables   map[string]any `json:"variables,omitempty"`
	LastRunAt   *time.Time     `json:"lastRunAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Node is a single workflow step.
type Node struct {
	ID     string     `json:"id" validate:"required"`
	Label  string     `json:"label,omitempty"`
	Type   NodeType   `json:"type" validate:"required,oneof=trigger agent condition delay action"`
	Config NodeConfig `json:"config"`
}

// NodeConfig carries the type-specific settings of a node.
type NodeConfig struct {
	AgentID     string `json:"agentId,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Predicate   string `json:"predicate,omitempty"`
	Delay       string `json:"delay,omitempty"`
	Action      string `json:"action,omitempty"`
}

// Edge connects two nodes. Branch selects the edge from a condition node.
type Edge struct {
	ID     string `json:"id,omitempty"`
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	Branch string `json:"branch,omitempty"`
}

// NodeResult is the recorded outcome of one visited node.
type NodeResult struct {
	NodeID  string     `json:"nodeId"`
	Type    NodeType   `json:"type"`
	Output  string     `json:"output"`
	Success *bool      `json:"success,omitempty"`
	TaskID  *uuid.UUID `json:"taskId,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// Succeeded reports the node outcome; nodes without an explicit flag count as succeeded.
func (r NodeResult) Succeeded() bool {
	return r.Success == nil || *r.Success
}

// RunResult holds every visited node in visit order.
type RunResult struct {
	RunID       uuid.UUID    `json:"runId"`
	WorkflowID  uuid.UUID    `json:"workflowId"`
	StartedAt   time.Time    `json:"startedAt"`
	FinishedAt  time.Time    `json:"finishedAt"`
	NodeResults []NodeResult `json:"nodeResults"`
}

// Result returns the result recorded for nodeID.
func (r *RunResult) Result(nodeID string) (NodeResult, bool) {
	for _, nr := range r.NodeResults {
		if nr.NodeID == nodeID {
			return nr, true
		}
	}
	return NodeResult{}, false
}

// Failed counts nodes that reported failure.
func (r *RunResult) Failed() int {
	n := 0
	for _, nr := range r.NodeResults {
		if !nr.Succeeded() {
			n++
		}
	}
	return n
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes a workflow definition document.
func Parse(data []byte) (*Workflow, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: definition is empty", ErrInvalidDefinition)
	}
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return &wf, nil
}

// Validate checks structural soundness of the graph.
func (w *Workflow) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	seen := make(map[string]struct{}, len(w.Nodes))
	for _, n := range w.Nodes {
		if _, ok := seen[n.ID]; ok {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidDefinition, n.ID)
		}
		seen[n.ID] = struct{}{}
		if n.Type == NodeAgent && strings.TrimSpace(n.Config.AgentID) == "" {
			return fmt.Errorf("%w: agent node %s requires agentId", ErrInvalidDefinition, n.ID)
		}
	}
	for _, e := range w.Edges {
		if _, ok := seen[e.From]; !ok {
			return fmt.Errorf("%w: edge references unknown node %s", ErrInvalidDefinition, e.From)
		}
		if _, ok := seen[e.To]; !ok {
			return fmt.Errorf("%w: edge references unknown node %s", ErrInvalidDefinition, e.To)
		}
	}
	_, err := w.Trigger()
	return err
}

// Trigger returns the single trigger node.
func (w *Workflow) Trigger() (Node, error) {
	var found []Node
	for _, n := range w.Nodes {
		if n.Type == NodeTrigger {
			found = append(found, n)
		}
	}
	if len(found) != 1 {
		return Node{}, fmt.Errorf("%w: found %d", ErrNoTriggerNode, len(found))
	}
	return found[0], nil
}

// Node looks a node up by id.
func (w *Workflow) Node(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Adjacency maps each node to its outgoing edges, in edge order.
func (w *Workflow) Adjacency() map[string][]Edge {
	adj := make(map[string][]Edge)
	for _, e := range w.Edges {
		adj[e.From] = append(adj[e.From], e)
	}
	return adj
}
