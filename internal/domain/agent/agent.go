package agent

import (
	"errors"
	"fmt"
)

// Built-in agent identifiers.
const (
	IDBuilder    = "builder"
	IDResearcher = "researcher"
	IDWriter     = "writer"
	IDOutreach   = "outreach"
	IDAssistant  = "assistant"

	// DefaultAgentID receives tasks no capability keyword matches.
	DefaultAgentID = IDAssistant
)

var ErrUnknownAgent = errors.New("unknown agent")

// Agent describes a fixed-capability executor identity.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

// catalog order is routing precedence: build, research, writing, outreach, default.
var catalog = []Agent{
	{
		ID:           IDBuilder,
		Name:         "Builder",
		Description:  "Plans and ships code changes, fixes and deployments.",
		Capabilities: []string{"build", "fix", "bug", "implement", "code", "deploy", "refactor", "debug", "setup"},
	},
	{
		ID:           IDResearcher,
		Name:         "Researcher",
		Description:  "Investigates questions and produces research briefs.",
		Capabilities: []string{"research", "analyze", "analyse", "investigate", "compare", "study", "audit"},
	},
	{
		ID:           IDWriter,
		Name:         "Writer",
		Description:  "Drafts articles, posts, copy and documentation.",
		Capabilities: []string{"write", "draft", "blog", "article", "post", "copy", "document", "content"},
	},
	{
		ID:           IDOutreach,
		Name:         "Outreach",
		Description:  "Composes and sends outreach messages to contacts and leads.",
		Capabilities: []string{"outreach", "email", "reach out", "follow up", "contact", "lead", "pitch"},
	},
	{
		ID:          IDAssistant,
		Name:        "Assistant",
		Description: "General-purpose agent for everything else.",
	},
}

// Catalog returns the built-in agents in routing precedence order.
func Catalog() []Agent {
	out := make([]Agent, len(catalog))
	for i, a := range catalog {
		a.Capabilities = append([]string(nil), a.Capabilities...)
		out[i] = a
	}
	return out
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Agent, error) {
	for _, a := range catalog {
		if a.ID == id {
			a.Capabilities = append([]string(nil), a.Capabilities...)
			return a, nil
		}
	}
	return Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
}
