package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentdesk/agentdesk/internal/application/executor"
	"github.com/agentdesk/agentdesk/internal/domain/workflow"
)

// ActionRequest is what an action handler sees of the running workflow.
type ActionRequest struct {
	Workflow *workflow.Workflow
	Node     workflow.Node
	// Arg is the text after the first ':' in the node's action string.
	Arg  string
	Vars map[string]interface{}
}

// ActionHandler performs an action node's side effect and returns its output.
type ActionHandler func(ctx context.Context, req ActionRequest) (string, error)

// ActionRegistry maps action names to handlers.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{handlers: make(map[string]ActionHandler)}
}

func (r *ActionRegistry) Register(name string, h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = h
}

// Lookup splits "name:arg" and returns the handler registered for name.
func (r *ActionRegistry) Lookup(action string) (ActionHandler, string, bool) {
	name, arg, _ := strings.Cut(action, ":")
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(strings.TrimSpace(name))]
	return h, strings.TrimSpace(arg), ok
}

func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultActions registers "log" and, when a notifier is given, "notify".
func DefaultActions(notifier executor.Notifier, logger zerolog.Logger) *ActionRegistry {
	r := NewActionRegistry()
	log := logger.With().Str("service", "workflow_actions").Logger()

	r.Register("log", func(_ context.Context, req ActionRequest) (string, error) {
		log.Info().
			Str("workflow_id", req.Workflow.ID.String()).
			Str("node_id", req.Node.ID).
			Msg(req.Arg)
		return "logged: " + req.Arg, nil
	})

	if notifier != nil {
		r.Register("notify", func(ctx context.Context, req ActionRequest) (string, error) {
			subject := req.Arg
			if subject == "" {
				subject = fmt.Sprintf("Workflow %s reached %s", req.Workflow.Name, req.Node.ID)
			}
			msg := executor.Message{
				Channel: "workflow",
				Subject: subject,
				Body:    fmt.Sprintf("last output: %v", req.Vars["last_output"]),
			}
			if err := notifier.Notify(ctx, msg); err != nil {
				return "", err
			}
			return "notified: " + subject, nil
		})
	}
	return r
}
