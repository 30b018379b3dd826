package agents

import (
	"context"
	"strings"

	"github.com/creator-match/negotiation-multi-agent/llm"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// AnalysisAgent reads the counterparty's latest message: intent,
// sentiment and urgency.
type AnalysisAgent struct {
	base
}

// NewAnalysisAgent creates an analysis agent. client may be nil.
func NewAnalysisAgent(client llm.Client) *AnalysisAgent {
	return &AnalysisAgent{base: newBase("analysis-agent", client)}
}

// SupportedTasks implements the Agent interface.
func (a *AnalysisAgent) SupportedTasks() []types.TaskKind {
	return []types.TaskKind{
		types.TaskAnalyzeMessage,
		types.TaskSentimentAnalysis,
		types.TaskUrgencyAssessment,
	}
}

// Handle implements the Agent interface.
func (a *AnalysisAgent) Handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	return a.handle(ctx, msg, state, a.SupportedTasks(), a.execute)
}

const analysisSchema = `{
	"type": "object",
	"required": ["intent", "sentiment_score", "urgency"],
	"properties": {
		"intent": {"type": "string"},
		"sentiment_score": {"type": "number", "minimum": -1, "maximum": 1},
		"urgency": {"type": "number", "minimum": 0, "maximum": 1},
		"topics": {"type": "array", "items": {"type": "string"}}
	}
}`

const analysisSystemPrompt = "You analyze one message from a video creator in a sponsorship negotiation. " +
	"Respond with a single JSON object: {\"intent\": string, \"sentiment_score\": number in [-1,1], " +
	"\"urgency\": number in [0,1], \"topics\": [string]}. No prose."

type analysisCompletion struct {
	Intent         string   `json:"intent"`
	SentimentScore float64  `json:"sentiment_score"`
	Urgency        float64  `json:"urgency"`
	Topics         []string `json:"topics"`
}

func (a *AnalysisAgent) execute(ctx context.Context, kind types.TaskKind, in *types.TaskInput, state *types.NegotiationState) (types.TaskPayload, float64, error) {
	result := a.fallbackAnalysis(in.Message)
	confidence := 0.6

	raw := a.complete(ctx, analysisSystemPrompt, in.Message)
	decoded := llm.Decode(raw, analysisSchema, analysisCompletion{})
	if raw != "" && !decoded.FallbackUsed {
		c := decoded.Value
		result = &types.AnalysisResult{
			Intent:         c.Intent,
			Sentiment:      sentimentFromScore(c.SentimentScore, result.Sentiment == types.SentimentHostile),
			SentimentScore: c.SentimentScore,
			Urgency:        types.ClampConfidence(c.Urgency),
			Topics:         c.Topics,
			FallbackUsed:   false,
		}
		confidence = 0.85
	}

	switch kind {
	case types.TaskSentimentAnalysis, types.TaskUrgencyAssessment, types.TaskAnalyzeMessage:
		return result, confidence, nil
	default:
		return nil, 0, types.NewUnsupportedTaskError(a.id, kind)
	}
}

var (
	positiveKeywords = []string{
		"thank", "great", "love", "excited", "interested", "happy", "perfect", "sounds good",
		"ありがとう", "嬉しい", "楽しみ", "興味", "ぜひ", "よろしく", "素晴らしい",
	}
	negativeKeywords = []string{
		"unfortunately", "decline", "problem", "disappointed", "cancel", "concern", "difficult",
		"残念", "難しい", "problem", "不満", "キャンセル", "お断り", "懸念",
	}
	hostileKeywords = []string{
		"lawsuit", "lawyer", "legal action", "sue", "fraud", "scam",
		"訴訟", "弁護士", "法的", "詐欺",
	}
	urgentKeywords = []string{
		"urgent", "asap", "immediately", "today", "deadline", "right away",
		"至急", "今すぐ", "急ぎ", "本日中", "締め切り", "今日中",
	}
)

// fallbackAnalysis is the deterministic keyword-count path used when the
// completion service is unavailable or returns unusable output.
func (a *AnalysisAgent) fallbackAnalysis(message string) *types.AnalysisResult {
	lower := strings.ToLower(message)

	pos := countMatches(lower, positiveKeywords)
	neg := countMatches(lower, negativeKeywords)
	hostile := countMatches(lower, hostileKeywords)
	urgent := countMatches(lower, urgentKeywords)

	score := 0.0
	if pos+neg > 0 {
		score = float64(pos-neg) / float64(pos+neg)
	}
	if hostile > 0 {
		score = -1
	}

	urgency := float64(urgent) * 0.34
	if urgency > 1 {
		urgency = 1
	}

	intent := "general_reply"
	switch {
	case strings.Contains(lower, "price") || strings.Contains(lower, "見積") || strings.Contains(lower, "料金") || strings.Contains(lower, "費用"):
		intent = "pricing_inquiry"
	case pos > 0 && neg == 0:
		intent = "positive_response"
	case neg > 0:
		intent = "objection"
	}

	return &types.AnalysisResult{
		Intent:         intent,
		Sentiment:      sentimentFromScore(score, hostile > 0),
		SentimentScore: score,
		Urgency:        urgency,
		FallbackUsed:   true,
	}
}

func sentimentFromScore(score float64, hostile bool) types.Sentiment {
	if hostile {
		return types.SentimentHostile
	}
	switch {
	case score >= 0.6:
		return types.SentimentVeryPositive
	case score >= 0.2:
		return types.SentimentPositive
	case score > -0.2:
		return types.SentimentNeutral
	case score > -0.6:
		return types.SentimentNegative
	default:
		return types.SentimentVeryNegative
	}
}

func countMatches(lower string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			n++
		}
	}
	return n
}
