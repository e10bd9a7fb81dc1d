package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentdesk/agentdesk/internal/domain/agent"
	"github.com/agentdesk/agentdesk/internal/domain/task"
)

// NewBuiltinRegistry registers an executor for every catalog agent.
func NewBuiltinRegistry(ports Ports, logger zerolog.Logger) *Registry {
	b := &builtins{ports: ports, logger: logger.With().Str("service", "executor").Logger()}
	r := NewRegistry()
	r.Register(agent.IDBuilder, Func(b.build))
	r.Register(agent.IDResearcher, Func(b.research))
	r.Register(agent.IDWriter, Func(b.write))
	r.Register(agent.IDOutreach, Func(b.outreach))
	r.Register(agent.IDAssistant, Func(b.assist))
	return r
}

type builtins struct {
	ports  Ports
	logger zerolog.Logger
}

// report accumulates actions and results in the order they happen.
type report struct {
	res task.Result
}

func (r *report) step(action, result string) {
	r.res.Actions = append(r.res.Actions, action)
	r.res.Results = append(r.res.Results, result)
}

func (r *report) meta(key string, value any) {
	if r.res.Metadata == nil {
		r.res.Metadata = map[string]any{}
	}
	r.res.Metadata[key] = value
}

func (b *builtins) store(ctx context.Context, rep *report, relPath string, body string) error {
	if b.ports.Content == nil {
		return fmt.Errorf("content writer is not configured")
	}
	loc, err := b.ports.Content.Write(ctx, relPath, []byte(body))
	if err != nil {
		return err
	}
	rep.step("wrote "+relPath, "saved to "+loc)
	rep.res.Files = append(rep.res.Files, loc)
	return nil
}

func (b *builtins) build(ctx context.Context, t *task.Task) (*task.Result, error) {
	rep := &report{}
	steps := planSteps(t)
	rep.step("analyzed request", fmt.Sprintf("identified %d implementation steps", len(steps)))

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Implementation plan: %s\n\n", t.Title)
	if d := strings.TrimSpace(t.Description); d != "" {
		fmt.Fprintf(&sb, "%s\n\n", d)
	}
	for i, s := range steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	if err := b.store(ctx, rep, fmt.Sprintf("builds/%s.md", t.ID), sb.String()); err != nil {
		return nil, err
	}
	rep.meta("steps", len(steps))
	rep.res.Overview = fmt.Sprintf("Prepared a %d-step implementation plan for %q.", len(steps), t.Title)
	b.logger.Debug().Str("task_id", t.ID.String()).Int("steps", len(steps)).Msg("build plan written")
	return &rep.res, nil
}

func planSteps(t *task.Task) []string {
	steps := []string{"Reproduce the current behavior of: " + t.Title}
	lowered := strings.ToLower(t.Title + " " + t.Description)
	if strings.Contains(lowered, "bug") || strings.Contains(lowered, "fix") || strings.Contains(lowered, "debug") {
		steps = append(steps, "Write a failing test that captures the defect")
	}
	steps = append(steps, "Implement the change", "Run the test suite")
	if strings.Contains(lowered, "deploy") {
		steps = append(steps, "Roll out to staging and verify")
	}
	return append(steps, "Summarize the change for review")
}

func (b *builtins) research(ctx context.Context, t *task.Task) (*task.Result, error) {
	rep := &report{}
	subject := strings.TrimSpace(t.Title)
	questions := []string{
		"What is the current state of " + subject + "?",
		"Who are the main actors involved?",
		"What evidence supports each option?",
		"What are the open risks and unknowns?",
	}
	rep.step("framed research questions", fmt.Sprintf("%d questions", len(questions)))

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research brief: %s\n\n", subject)
	if d := strings.TrimSpace(t.Description); d != "" {
		fmt.Fprintf(&sb, "Context: %s\n\n", d)
	}
	sb.WriteString("## Questions\n")
	for _, q := range questions {
		fmt.Fprintf(&sb, "- %s\n", q)
	}
	if err := b.store(ctx, rep, fmt.Sprintf("research/%s.md", t.ID), sb.String()); err != nil {
		return nil, err
	}
	rep.meta("questions", questions)
	rep.res.Overview = fmt.Sprintf("Drafted a research brief on %q with %d guiding questions.", subject, len(questions))
	return &rep.res, nil
}

func (b *builtins) write(ctx context.Context, t *task.Task) (*task.Result, error) {
	rep := &report{}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", t.Title)
	if d := strings.TrimSpace(t.Description); d != "" {
		fmt.Fprintf(&sb, "%s\n\n", d)
	}
	sb.WriteString("## Outline\n- Hook\n- Key points\n- Call to action\n")
	draft := sb.String()
	words := len(strings.Fields(draft))
	rep.step("outlined draft", fmt.Sprintf("%d words", words))

	if err := b.store(ctx, rep, fmt.Sprintf("drafts/%s.md", t.ID), draft); err != nil {
		return nil, err
	}
	rep.meta("words", words)
	rep.res.Overview = fmt.Sprintf("Wrote a %d-word draft for %q.", words, t.Title)
	return &rep.res, nil
}

func (b *builtins) outreach(ctx context.Context, t *task.Task) (*task.Result, error) {
	rep := &report{}
	if b.ports.Notifier == nil {
		return nil, fmt.Errorf("notifier is not configured")
	}
	body := fmt.Sprintf("Hi,\n\n%s\n\n%s\n", t.Title, strings.TrimSpace(t.Description))
	msg := Message{Channel: "email", Subject: t.Title, Body: body, TaskID: t.ID.String()}
	rep.step("composed message", "subject: "+msg.Subject)

	if err := b.ports.Notifier.Notify(ctx, msg); err != nil {
		return nil, err
	}
	rep.step("sent message", "delivered via "+msg.Channel)

	if err := b.store(ctx, rep, fmt.Sprintf("outreach/%s.txt", t.ID), body); err != nil {
		return nil, err
	}
	rep.meta("channel", msg.Channel)
	rep.res.Overview = fmt.Sprintf("Sent outreach message %q.", msg.Subject)
	return &rep.res, nil
}

func (b *builtins) assist(_ context.Context, t *task.Task) (*task.Result, error) {
	rep := &report{}
	rep.step("reviewed request", "no specialised agent matched")
	rep.res.Overview = fmt.Sprintf("Acknowledged %q; no specialised agent was required.", t.Title)
	return &rep.res, nil
}
