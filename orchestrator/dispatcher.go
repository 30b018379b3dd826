package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/creator-match/negotiation-multi-agent/agents"
	"github.com/creator-match/negotiation-multi-agent/logger"
	"github.com/creator-match/negotiation-multi-agent/resilience"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// Dispatcher fans task requests out to agents and joins on all of them.
// The join is a gather, not a race: a failing or slow agent degrades its
// phase's aggregate confidence but never cancels siblings and never
// blocks the join past the per-call deadline.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	log      *logger.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewDispatcher creates a dispatcher with a per-call deadline.
func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		log:      logger.New("dispatcher"),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// Dispatch sends each request to the agent claiming its task kind,
// concurrently, and waits for all of them. The returned slice is index-
// aligned with reqs; every entry is non-nil (a TaskResult or an
// ErrorReport). State is read-only during the fan-out; mutations happen
// only after the join, so no agent observes a sibling's partial update.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []*types.AgentMessage, state *types.NegotiationState) []*types.AgentMessage {
	results := make([]*types.AgentMessage, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *types.AgentMessage) {
			defer wg.Done()
			results[i] = d.dispatchOne(ctx, req, state)
		}(i, req)
	}
	wg.Wait()

	return results
}

// dispatchOne runs a single request under the per-agent circuit breaker
// and the per-call deadline.
func (d *Dispatcher) dispatchOne(ctx context.Context, req *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	agent, ok := d.registry.ForKind(req.TaskKind)
	if !ok {
		terr := types.NewTaskError(types.ErrCodeOrchestration, req.TaskKind, "no agent registered for task", nil)
		return types.NewErrorReport("dispatcher", req.SenderID, terr, req.ID, req.CorrelationID)
	}

	breaker := d.breakerFor(agent.ID())

	var result *types.AgentMessage
	err := breaker.Execute(func() error {
		result = d.callWithDeadline(ctx, agent, req, state)
		if result.Type == types.MessageErrorReport {
			return result.Error
		}
		return nil
	})

	if err != nil && result == nil {
		// Breaker open: the agent was not called at all.
		terr := types.NewTaskError(types.ErrCodeCircuitOpen, req.TaskKind, "agent circuit open", err)
		result = types.NewErrorReport(agent.ID(), req.SenderID, terr, req.ID, req.CorrelationID)
	}
	return result
}

// callWithDeadline invokes agent.Handle with a bounded wait. A timed-out
// agent surfaces as a zero-confidence ErrorReport; the goroutine running
// the straggler is left to finish and its late result is discarded.
func (d *Dispatcher) callWithDeadline(ctx context.Context, agent agents.Agent, req *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan *types.AgentMessage, 1)
	go func() {
		done <- agent.Handle(callCtx, req, state)
	}()

	select {
	case res := <-done:
		if res == nil {
			terr := types.NewTaskError(types.ErrCodeAgentTask, req.TaskKind, "agent returned no message", nil)
			res = types.NewErrorReport(agent.ID(), req.SenderID, terr, req.ID, req.CorrelationID)
		}
		return res
	case <-callCtx.Done():
		d.log.Warnf("agent %s timed out on task %s", agent.ID(), req.TaskKind)
		terr := types.NewTaskError(types.ErrCodeAgentTimeout, req.TaskKind, "agent call exceeded deadline", callCtx.Err())
		terr.ElapsedMs = d.timeout.Milliseconds()
		return types.NewErrorReport(agent.ID(), req.SenderID, terr, req.ID, req.CorrelationID)
	}
}

func (d *Dispatcher) breakerFor(agentID string) *resilience.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.breakers[agentID]; ok {
		return b
	}
	b := resilience.NewCircuitBreaker(3, 30*time.Second)
	b.SetOnStateChange(func(from, to resilience.State) {
		d.log.Warnf("circuit breaker for %s: %s -> %s", agentID, from, to)
	})
	d.breakers[agentID] = b
	return b
}
