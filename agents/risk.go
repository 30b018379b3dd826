package agents

import (
	"context"
	"strings"

	"github.com/creator-match/negotiation-multi-agent/llm"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// RiskAgent assesses negotiation risk from the latest message and the
// accumulated history.
type RiskAgent struct {
	base
}

// NewRiskAgent creates a risk agent. client may be nil.
func NewRiskAgent(client llm.Client) *RiskAgent {
	return &RiskAgent{base: newBase("risk-agent", client)}
}

// SupportedTasks implements the Agent interface.
func (a *RiskAgent) SupportedTasks() []types.TaskKind {
	return []types.TaskKind{types.TaskAssessRisks}
}

// Handle implements the Agent interface.
func (a *RiskAgent) Handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	return a.handle(ctx, msg, state, a.SupportedTasks(), a.execute)
}

const riskSchema = `{
	"type": "object",
	"required": ["score"],
	"properties": {
		"score": {"type": "number", "minimum": 0, "maximum": 1},
		"factors": {"type": "array", "items": {"type": "string"}}
	}
}`

const riskSystemPrompt = "You assess the risk in a sponsorship negotiation message. " +
	"Respond with a single JSON object: {\"score\": number in [0,1], \"factors\": [string]}. No prose."

type riskCompletion struct {
	Score   float64  `json:"score"`
	Factors []string `json:"factors"`
}

func (a *RiskAgent) execute(ctx context.Context, kind types.TaskKind, in *types.TaskInput, state *types.NegotiationState) (types.TaskPayload, float64, error) {
	result := a.fallbackRisk(in.Message)
	confidence := 0.6

	raw := a.complete(ctx, riskSystemPrompt, in.Message)
	decoded := llm.Decode(raw, riskSchema, riskCompletion{})
	if raw != "" && !decoded.FallbackUsed {
		c := decoded.Value
		result = &types.RiskResult{
			Level:        riskLevelFromScore(c.Score),
			Score:        types.ClampConfidence(c.Score),
			Factors:      c.Factors,
			FallbackUsed: false,
		}
		confidence = 0.85
	}

	return result, confidence, nil
}

// Risk keyword classes for the deterministic path. Each detected class
// contributes one factor and a fixed score increment.
var riskClasses = []struct {
	name     string
	weight   float64
	keywords []string
}{
	{"legal", 0.5, []string{"lawsuit", "lawyer", "legal", "sue", "訴訟", "弁護士", "法的"}},
	{"cancellation", 0.35, []string{"cancel", "terminate", "withdraw", "キャンセル", "解約", "辞退"}},
	{"complaint", 0.25, []string{"complaint", "disappointed", "unacceptable", "クレーム", "不満", "失望"}},
	{"competitor", 0.15, []string{"competitor", "other company", "other offer", "他社", "別の会社", "他のオファー"}},
	{"deadline_pressure", 0.1, []string{"urgent", "deadline", "asap", "至急", "締め切り"}},
}

func (a *RiskAgent) fallbackRisk(message string) *types.RiskResult {
	lower := strings.ToLower(message)

	score := 0.0
	var factors []string
	for _, class := range riskClasses {
		if countMatches(lower, class.keywords) > 0 {
			score += class.weight
			factors = append(factors, class.name)
		}
	}
	if score > 1 {
		score = 1
	}

	return &types.RiskResult{
		Level:        riskLevelFromScore(score),
		Score:        score,
		Factors:      factors,
		FallbackUsed: true,
	}
}

func riskLevelFromScore(score float64) types.RiskLevel {
	switch {
	case score >= 0.7:
		return types.RiskCritical
	case score >= 0.45:
		return types.RiskHigh
	case score >= 0.2:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}
