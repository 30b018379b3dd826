package orchestrator

import (
	"strings"

	"github.com/creator-match/negotiation-multi-agent/agents"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// Quality gate flags attached to a run's output.
const (
	FlagImproved   = "improved"
	FlagLowQuality = "low_quality"
)

// QualityGate scores a candidate reply and decides accept vs. revise.
// It never discards a draft: the negotiation must make progress, so the
// worst outcome is a flagged draft, not a missing one.
type QualityGate struct {
	AcceptThreshold float64 // accept as-is at or above this
	RepairThreshold float64 // below this even after repair: low_quality
	MinLength       int     // runes; shorter drafts are penalized
	MaxLength       int     // runes; longer drafts are penalized
}

// NewQualityGate returns a gate with the default thresholds.
func NewQualityGate() *QualityGate {
	return &QualityGate{
		AcceptThreshold: 0.75,
		RepairThreshold: 0.60,
		MinLength:       80,
		MaxLength:       2400,
	}
}

// Score combines length adequacy, the communication agent's own
// confidence, and presence of the closing attribution into [0,1].
func (g *QualityGate) Score(draft string, agentConfidence float64, state *types.NegotiationState) float64 {
	const (
		confidenceWeight = 0.5
		lengthWeight     = 0.3
		structureWeight  = 0.2
	)

	score := confidenceWeight * types.ClampConfidence(agentConfidence)
	score += lengthWeight * g.lengthAdequacy(draft)
	if g.hasClosing(draft, state) {
		score += structureWeight
	}
	return types.ClampConfidence(score)
}

// Repair applies the one bounded local fix: ensure a closing signature
// and pad clearly undersized content. It is called at most once per run.
func (g *QualityGate) Repair(draft string, state *types.NegotiationState) string {
	repaired := agents.EnsureSignature(draft, state.CompanyInfo)
	if len([]rune(repaired)) < g.MinLength {
		body := strings.TrimRight(draft, "\n ")
		padded := body + "\n\nいただいた内容を確認し、前向きに検討しております。ご不明な点があればお知らせください。\n"
		repaired = agents.EnsureSignature(padded, state.CompanyInfo)
	}
	return repaired
}

func (g *QualityGate) lengthAdequacy(draft string) float64 {
	n := len([]rune(strings.TrimSpace(draft)))
	switch {
	case n == 0:
		return 0
	case n < g.MinLength:
		return float64(n) / float64(g.MinLength)
	case n > g.MaxLength:
		over := float64(n-g.MaxLength) / float64(g.MaxLength)
		if over > 1 {
			over = 1
		}
		return 1 - 0.5*over
	default:
		return 1
	}
}

// hasClosing checks for a closing attribution near the end of the draft.
func (g *QualityGate) hasClosing(draft string, state *types.NegotiationState) bool {
	trimmed := strings.TrimRight(draft, "\n ")
	tail := trimmed
	if r := []rune(tail); len(r) > 200 {
		tail = string(r[len(r)-200:])
	}
	if state.CompanyInfo.Name != "" && strings.Contains(tail, state.CompanyInfo.Name) {
		return true
	}
	if state.CompanyInfo.SenderName != "" && strings.Contains(tail, state.CompanyInfo.SenderName) {
		return true
	}
	for _, marker := range []string{"よろしくお願い", "regards", "sincerely", "――"} {
		if strings.Contains(strings.ToLower(tail), marker) {
			return true
		}
	}
	return false
}
