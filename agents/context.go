package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/creator-match/negotiation-multi-agent/llm"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// ContextAgent summarizes the conversation so far and characterizes the
// relationship with the counterparty.
type ContextAgent struct {
	base
}

// NewContextAgent creates a context agent. client may be nil.
func NewContextAgent(client llm.Client) *ContextAgent {
	return &ContextAgent{base: newBase("context-agent", client)}
}

// SupportedTasks implements the Agent interface.
func (a *ContextAgent) SupportedTasks() []types.TaskKind {
	return []types.TaskKind{types.TaskAnalyzeContext}
}

// Handle implements the Agent interface.
func (a *ContextAgent) Handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	return a.handle(ctx, msg, state, a.SupportedTasks(), a.execute)
}

func (a *ContextAgent) execute(ctx context.Context, kind types.TaskKind, in *types.TaskInput, state *types.NegotiationState) (types.TaskPayload, float64, error) {
	result := a.fallbackContext(in)
	confidence := 0.6

	if raw := a.complete(ctx, contextSystemPrompt, a.contextUserPrompt(in)); raw != "" {
		summary := strings.TrimSpace(raw)
		if summary != "" {
			result.Summary = summary
			result.FallbackUsed = false
			confidence = 0.85
		}
	}

	return result, confidence, nil
}

const contextSystemPrompt = "You summarize a business negotiation between a company and a video creator. " +
	"Write a short factual summary of the conversation so far in at most three sentences. Output plain text only."

func (a *ContextAgent) contextUserPrompt(in *types.TaskInput) string {
	var sb strings.Builder
	for _, m := range in.History {
		fmt.Fprintf(&sb, "[%s] %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&sb, "[counterparty] %s\n", in.Message)
	return sb.String()
}

// fallbackContext builds a deterministic summary from the history alone.
func (a *ContextAgent) fallbackContext(in *types.TaskInput) *types.ContextResult {
	exchanges := len(in.History)
	relationship := "new"
	if exchanges >= 6 {
		relationship = "established"
	} else if exchanges >= 2 {
		relationship = "developing"
	}

	latest := strings.TrimSpace(in.Message)
	if len([]rune(latest)) > 120 {
		latest = string([]rune(latest)[:120]) + "..."
	}

	var points []string
	if in.Counterparty.Name != "" {
		points = append(points, fmt.Sprintf("counterparty: %s", in.Counterparty.Name))
	}
	if in.Counterparty.AudienceSize > 0 {
		points = append(points, fmt.Sprintf("audience size: %d", in.Counterparty.AudienceSize))
	}
	points = append(points, fmt.Sprintf("exchanges so far: %d", exchanges))

	return &types.ContextResult{
		Summary:      fmt.Sprintf("%d prior messages in thread. Latest from counterparty: %s", exchanges, latest),
		KeyPoints:    points,
		Relationship: relationship,
		FallbackUsed: true,
	}
}
