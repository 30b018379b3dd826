package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/creator-match/negotiation-multi-agent/llm"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// StrategyAgent plans the approach for the next reply from the Phase-1
// analysis, the conversation history and the operator constraints.
type StrategyAgent struct {
	base
}

// NewStrategyAgent creates a strategy agent. client may be nil.
func NewStrategyAgent(client llm.Client) *StrategyAgent {
	return &StrategyAgent{base: newBase("strategy-agent", client)}
}

// SupportedTasks implements the Agent interface.
func (a *StrategyAgent) SupportedTasks() []types.TaskKind {
	return []types.TaskKind{types.TaskPlanStrategy}
}

// Handle implements the Agent interface.
func (a *StrategyAgent) Handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	return a.handle(ctx, msg, state, a.SupportedTasks(), a.execute)
}

const strategySchema = `{
	"type": "object",
	"required": ["approach"],
	"properties": {
		"approach": {"type": "string"},
		"key_messages": {"type": "array", "items": {"type": "string"}},
		"tone": {"type": "string"}
	}
}`

const strategySystemPrompt = "You plan the next move in a sponsorship negotiation between a company and a video creator. " +
	"Respond with a single JSON object: {\"approach\": string, \"key_messages\": [string], \"tone\": string}. No prose."

type strategyCompletion struct {
	Approach    string   `json:"approach"`
	KeyMessages []string `json:"key_messages"`
	Tone        string   `json:"tone"`
}

func (a *StrategyAgent) execute(ctx context.Context, kind types.TaskKind, in *types.TaskInput, state *types.NegotiationState) (types.TaskPayload, float64, error) {
	result := a.fallbackStrategy(in, state)
	confidence := 0.6

	raw := a.complete(ctx, strategySystemPrompt, a.strategyUserPrompt(in, state))
	decoded := llm.Decode(raw, strategySchema, strategyCompletion{})
	if raw != "" && !decoded.FallbackUsed && decoded.Value.Approach != "" {
		c := decoded.Value
		result = &types.StrategyResult{
			Approach:     c.Approach,
			KeyMessages:  c.KeyMessages,
			Tone:         c.Tone,
			FallbackUsed: false,
		}
		confidence = 0.85
	}

	return result, confidence, nil
}

func (a *StrategyAgent) strategyUserPrompt(in *types.TaskInput, state *types.NegotiationState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stage: %s\n", state.Stage)
	if in.Analysis != nil {
		fmt.Fprintf(&sb, "Sentiment: %s (score %.2f), urgency %.2f, intent %s\n",
			in.Analysis.Sentiment, in.Analysis.SentimentScore, in.Analysis.Urgency, in.Analysis.Intent)
	}
	if in.Risk != nil {
		fmt.Fprintf(&sb, "Risk: %s (%s)\n", in.Risk.Level, strings.Join(in.Risk.Factors, ", "))
	}
	if in.Instructions != "" {
		fmt.Fprintf(&sb, "Operator instructions: %s\n", in.Instructions)
	}
	fmt.Fprintf(&sb, "Latest message: %s\n", in.Message)
	return sb.String()
}

// fallbackStrategy maps sentiment, risk and stage onto a fixed approach
// table.
func (a *StrategyAgent) fallbackStrategy(in *types.TaskInput, state *types.NegotiationState) *types.StrategyResult {
	approach := "collaborative"
	tone := "friendly_professional"

	sentiment := types.SentimentNeutral
	if in.Analysis != nil {
		sentiment = in.Analysis.Sentiment
	}

	switch {
	case sentiment == types.SentimentHostile:
		approach = "de_escalate"
		tone = "calm_formal"
	case sentiment == types.SentimentNegative || sentiment == types.SentimentVeryNegative:
		approach = "address_concerns"
		tone = "empathetic"
	case state.Stage == types.StagePriceNegotiation || state.Stage == types.StageTermsAdjustment:
		approach = "value_justification"
		tone = "confident"
	case state.Stage == types.StageInitialContact || state.Stage == types.StageInterestDiscovery:
		approach = "build_rapport"
	}

	if in.Risk != nil && (in.Risk.Level == types.RiskHigh || in.Risk.Level == types.RiskCritical) {
		approach = "de_escalate"
		tone = "calm_formal"
	}

	messages := []string{
		fmt.Sprintf("Acknowledge the creator's latest message about %s", firstTopic(in)),
	}
	if in.Instructions != "" {
		messages = append(messages, "Honor the operator instructions: "+in.Instructions)
	}
	messages = append(messages, "Propose a concrete next step")

	return &types.StrategyResult{
		Approach:     approach,
		KeyMessages:  messages,
		Tone:         tone,
		FallbackUsed: true,
	}
}

func firstTopic(in *types.TaskInput) string {
	if in.Analysis != nil && len(in.Analysis.Topics) > 0 {
		return in.Analysis.Topics[0]
	}
	if in.Analysis != nil && in.Analysis.Intent != "" {
		return in.Analysis.Intent
	}
	return "the collaboration"
}
