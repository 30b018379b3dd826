package orchestrator

import (
	"fmt"
	"sync"

	"github.com/creator-match/negotiation-multi-agent/agents"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// Registry maps task kinds to the agents that claim them. It is an
// explicit object, constructed once at process start and passed into the
// orchestrator; there is no ambient global registry.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]agents.Agent
	byKind map[types.TaskKind]agents.Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]agents.Agent),
		byKind: make(map[types.TaskKind]agents.Agent),
	}
}

// Register adds an agent. Task kinds are non-overlapping: a second agent
// claiming an already-registered kind is a configuration error.
func (r *Registry) Register(a agents.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID()]; exists {
		return fmt.Errorf("agent %q already registered", a.ID())
	}
	for _, kind := range a.SupportedTasks() {
		if owner, exists := r.byKind[kind]; exists {
			return fmt.Errorf("task kind %q already claimed by agent %q", kind, owner.ID())
		}
	}

	r.agents[a.ID()] = a
	for _, kind := range a.SupportedTasks() {
		r.byKind[kind] = a
	}
	return nil
}

// ForKind returns the agent claiming a task kind. Agents are optional:
// a missing kind is skipped by the orchestrator, not an error.
func (r *Registry) ForKind(kind types.TaskKind) (agents.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byKind[kind]
	return a, ok
}

// Agents returns all registered agents.
func (r *Registry) Agents() []agents.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agents.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}
