package router

import (
	"strings"

	"github.com/agentdesk/agentdesk/internal/domain/agent"
)

// Rule maps a keyword set to the agent that owns it.
type Rule struct {
	AgentID  string
	Keywords []string
}

// Router selects an agent for a task title. Rule order is precedence.
type Router struct {
	rules        []Rule
	defaultAgent string
}

// DefaultRules derives the rule table from the agent catalog, in catalog order.
func DefaultRules() []Rule {
	var rules []Rule
	for _, a := range agent.Catalog() {
		if len(a.Capabilities) == 0 {
			continue
		}
		rules = append(rules, Rule{AgentID: a.ID, Keywords: a.Capabilities})
	}
	return rules
}

// New creates a router over rules; titles that match nothing go to defaultAgent.
func New(rules []Rule, defaultAgent string) *Router {
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				kw = append(kw, k)
			}
		}
		normalized = append(normalized, Rule{AgentID: r.AgentID, Keywords: kw})
	}
	return &Router{rules: normalized, defaultAgent: defaultAgent}
}

// NewDefault returns the router over the built-in catalog.
func NewDefault() *Router {
	return New(DefaultRules(), agent.DefaultAgentID)
}

// Route returns the agent for title.
func (r *Router) Route(title string) string {
	id, _ := r.Explain(title)
	return id
}

// Explain returns the agent for title and the keyword that selected it.
// The keyword is empty when the default agent was chosen.
func (r *Router) Explain(title string) (string, string) {
	lowered := strings.ToLower(title)
	for _, rule := range r.rules {
		for _, k := range rule.Keywords {
			if strings.Contains(lowered, k) {
				return rule.AgentID, k
			}
		}
	}
	return r.defaultAgent, ""
}

// Rules returns a copy of the normalized rule table.
func (r *Router) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = Rule{AgentID: rule.AgentID, Keywords: append([]string(nil), rule.Keywords...)}
	}
	return out
}
