package orchestrator

import (
	"strings"
	"testing"

	"github.com/creator-match/negotiation-multi-agent/types"
)

func qualityState() *types.NegotiationState {
	state := types.NewNegotiationState("t")
	state.CompanyInfo = types.CompanyInfo{Name: "株式会社テスト", SenderName: "山田"}
	return state
}

func TestQualityGate_ShortDraftScoresBelowAccept(t *testing.T) {
	g := NewQualityGate()
	state := qualityState()

	// High agent confidence cannot rescue a ten-character draft.
	score := g.Score("ありがとうございます。", 0.9, state)
	if score >= g.AcceptThreshold {
		t.Fatalf("Expected score below accept threshold %.2f, got %.2f", g.AcceptThreshold, score)
	}
}

func TestQualityGate_RepairRaisesScore(t *testing.T) {
	g := NewQualityGate()
	state := qualityState()
	draft := "ありがとうございます。"

	before := g.Score(draft, 0.9, state)
	repaired := g.Repair(draft, state)
	after := g.Score(repaired, 0.9, state)

	if after <= before {
		t.Fatalf("Expected repair to raise the score, before %.2f after %.2f", before, after)
	}
	if !strings.Contains(repaired, "株式会社テスト") {
		t.Error("Expected repaired draft to carry the company signature")
	}
}

func TestQualityGate_GoodDraftAccepted(t *testing.T) {
	g := NewQualityGate()
	state := qualityState()

	draft := strings.Repeat("ご提案の内容について社内で確認いたしました。", 5) +
		"\n\n――\n株式会社テスト 山田"
	score := g.Score(draft, 0.85, state)
	if score < g.AcceptThreshold {
		t.Fatalf("Expected well-formed draft to pass, got %.2f", score)
	}
}

func TestQualityGate_OverlongDraftPenalized(t *testing.T) {
	g := NewQualityGate()
	state := qualityState()

	long := strings.Repeat("あ", g.MaxLength*2) + "\n――\n株式会社テスト"
	penalized := g.Score(long, 0.9, state)
	normal := g.Score(strings.Repeat("あ", g.MaxLength/2)+"\n――\n株式会社テスト", 0.9, state)
	if penalized >= normal {
		t.Errorf("Expected overlong draft to score lower: %.2f vs %.2f", penalized, normal)
	}
}

func TestQualityGate_MissingClosingPenalized(t *testing.T) {
	g := NewQualityGate()
	state := qualityState()

	body := strings.Repeat("ご提案の内容について社内で確認いたしました。", 5)
	without := g.Score(body, 0.9, state)
	with := g.Score(body+"\n\n――\n株式会社テスト 山田", 0.9, state)
	if with <= without {
		t.Errorf("Expected closing attribution to raise the score: %.2f vs %.2f", with, without)
	}
}
