// Package agents contains the specialized negotiation agents and the
// contract they share. Each agent is a deterministic policy over the task
// payload combined with an optional completion-service call whose
// schema-validated output, when parseable, overrides the fallback.
package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creator-match/negotiation-multi-agent/llm"
	"github.com/creator-match/negotiation-multi-agent/logger"
	"github.com/creator-match/negotiation-multi-agent/resilience"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// Agent is the contract every specialized agent implements. Handle never
// panics and never returns nil: any execution failure becomes an
// ErrorReport envelope.
type Agent interface {
	ID() string
	SupportedTasks() []types.TaskKind
	Handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage
	Performance() Performance
}

// Performance holds an agent's rolling counters. Agent-local; each agent
// instance is only invoked by the single orchestration run that owns it,
// so a plain mutex suffices for observers.
type Performance struct {
	Tasks         int     `json:"tasks"`
	Failures      int     `json:"failures"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// SuccessRate returns the fraction of handled tasks that produced results.
func (p Performance) SuccessRate() float64 {
	if p.Tasks == 0 {
		return 0
	}
	return float64(p.Tasks-p.Failures) / float64(p.Tasks)
}

// execFunc is a concrete agent's task implementation. It must not mutate
// state; it returns a payload and a confidence score.
type execFunc func(ctx context.Context, kind types.TaskKind, in *types.TaskInput, state *types.NegotiationState) (types.TaskPayload, float64, error)

// base carries the bookkeeping shared by all agents.
type base struct {
	id     string
	client llm.Client // nil when the completion service is unavailable
	log    *logger.Logger

	mu   sync.Mutex
	perf Performance
}

func newBase(id string, client llm.Client) base {
	return base{
		id:     id,
		client: client,
		log:    logger.New(id),
	}
}

// ID returns the agent identifier.
func (b *base) ID() string { return b.id }

// Performance returns a snapshot of the rolling counters.
func (b *base) Performance() Performance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perf
}

// handle measures wall-clock latency, runs exec, updates the rolling
// counters and wraps the outcome as a TaskResult or ErrorReport. Errors
// never propagate past this point.
func (b *base) handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState, supported []types.TaskKind, exec execFunc) (out *types.AgentMessage) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			elapsed := time.Since(start).Milliseconds()
			terr := types.NewTaskError(types.ErrCodeAgentTask, msg.TaskKind,
				fmt.Sprintf("panic during task execution: %v", r), nil)
			terr.ElapsedMs = elapsed
			b.record(0, elapsed, false)
			b.log.Errorf("task %s panicked: %v", msg.TaskKind, r)
			out = types.NewErrorReport(b.id, msg.SenderID, terr, msg.ID, msg.CorrelationID)
		}
	}()

	if msg.Type != types.MessageTaskRequest && msg.Type != types.MessageEvaluationRequest {
		elapsed := time.Since(start).Milliseconds()
		terr := types.NewTaskError(types.ErrCodeProtocolViolation, msg.TaskKind,
			fmt.Sprintf("agent %s received message of type %q", b.id, msg.Type), nil)
		terr.ElapsedMs = elapsed
		b.record(0, elapsed, false)
		return types.NewErrorReport(b.id, msg.SenderID, terr, msg.ID, msg.CorrelationID)
	}

	if !kindSupported(msg.TaskKind, supported) {
		elapsed := time.Since(start).Milliseconds()
		terr := types.NewUnsupportedTaskError(b.id, msg.TaskKind)
		terr.ElapsedMs = elapsed
		b.record(0, elapsed, false)
		return types.NewErrorReport(b.id, msg.SenderID, terr, msg.ID, msg.CorrelationID)
	}

	in, _ := msg.Payload.(*types.TaskInput)
	if in == nil {
		in = &types.TaskInput{}
	}

	payload, confidence, err := exec(ctx, msg.TaskKind, in, state)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		terr, ok := err.(*types.TaskError)
		if !ok {
			terr = types.NewTaskError(types.ErrCodeAgentTask, msg.TaskKind, "task execution failed", err)
		}
		terr.ElapsedMs = elapsed
		b.record(0, elapsed, false)
		b.log.Error(fmt.Sprintf("task %s failed", msg.TaskKind), err)
		return types.NewErrorReport(b.id, msg.SenderID, terr, msg.ID, msg.CorrelationID)
	}

	confidence = types.ClampConfidence(confidence)
	b.record(confidence, elapsed, true)
	return types.NewTaskResult(b.id, msg.SenderID, msg.TaskKind, payload, confidence, msg.ID, msg.CorrelationID, elapsed)
}

// record folds one task into the running averages.
func (b *base) record(confidence float64, latencyMs int64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.perf.Tasks++
	if !success {
		b.perf.Failures++
	}
	n := float64(b.perf.Tasks)
	b.perf.AvgConfidence += (confidence - b.perf.AvgConfidence) / n
	b.perf.AvgLatencyMs += (float64(latencyMs) - b.perf.AvgLatencyMs) / n
}

func kindSupported(kind types.TaskKind, supported []types.TaskKind) bool {
	for _, k := range supported {
		if k == kind {
			return true
		}
	}
	return false
}

// complete runs one completion call with retry, returning the raw text.
// A nil client or a failed call returns an empty string; callers treat
// that as "use the fallback", never as an error.
func (b *base) complete(ctx context.Context, system, user string) string {
	if b.client == nil {
		return ""
	}
	cfg := &resilience.RetryConfig{
		MaxAttempts:     2,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         resilience.IsRetryable,
	}
	var out string
	err := resilience.RetryWithConfig(ctx, cfg, func() error {
		resp, err := b.client.Chat(ctx, system, user)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		b.log.Warnf("completion call failed, using fallback: %v", err)
		return ""
	}
	return out
}
