package orchestrator

import (
	"strings"

	"github.com/creator-match/negotiation-multi-agent/types"
)

// canonicalPath is the default forward order of negotiation stages.
var canonicalPath = []types.Stage{
	types.StageInitialContact,
	types.StageInterestDiscovery,
	types.StageRapportBuilding,
	types.StageRequirementGathering,
	types.StageCapabilityPresentation,
	types.StageMutualEvaluation,
	types.StageProposalPreparation,
	types.StageProposalPresentation,
	types.StageClarification,
	types.StageNegotiationActive,
	types.StagePriceNegotiation,
	types.StageTermsAdjustment,
	types.StageFinalAdjustment,
	types.StageDecisionPending,
	types.StageContractPreparation,
	types.StageDealClosed,
}

// Lexical jump classes, checked in order of consequence. A matching class
// wins over the default single-step advance.
var (
	agreementKeywords = []string{
		"合意", "契約", "承諾", "締結", "正式に", "お受けし",
		"agreement", "contract", "we accept", "deal", "signed",
	}
	priceKeywords = []string{
		"価格", "料金", "費用", "見積", "金額", "報酬",
		"price", "pricing", "budget", "cost", "fee", "rate",
	}
	termsKeywords = []string{
		"条件", "条項", "納期", "期間", "回数",
		"terms", "condition", "deliverable", "schedule",
	}
	interestKeywords = []string{
		"興味", "関心", "詳しく", "もっと知りたい",
		"interested", "tell me more", "sounds interesting",
	}
	objectionKeywords = []string{
		"懸念", "不安", "心配", "難しい",
		"concern", "objection", "worried", "hesitant",
	}
	competitorKeywords = []string{
		"他社", "別の会社", "他のオファー",
		"competitor", "other company", "other offer",
	}
)

// NextStage computes the stage after one completed run. Lexical signals
// in the counterparty's latest message are authoritative over the default
// forward advance. Lost and Withdrawn require external re-initiation;
// DealClosed is terminal.
func NextStage(current types.Stage, latestMessage string) types.Stage {
	if current.Terminal() {
		return current
	}

	lower := strings.ToLower(latestMessage)

	if matchesAny(lower, agreementKeywords) {
		if stageIndex(current) >= stageIndex(types.StageDecisionPending) {
			return types.StageDealClosed
		}
		return types.StageFinalAdjustment
	}
	if matchesAny(lower, priceKeywords) && current != types.StagePriceNegotiation {
		return types.StagePriceNegotiation
	}
	if matchesAny(lower, termsKeywords) && current != types.StageTermsAdjustment {
		return types.StageTermsAdjustment
	}
	if matchesAny(lower, competitorKeywords) && current != types.StageCompetitorComparison {
		return types.StageCompetitorComparison
	}
	if matchesAny(lower, objectionKeywords) && current != types.StageObjectionHandling {
		return types.StageObjectionHandling
	}
	if matchesAny(lower, interestKeywords) && stageIndex(current) < stageIndex(types.StageInterestDiscovery) {
		return types.StageInterestDiscovery
	}

	return defaultAdvance(current)
}

// defaultAdvance moves one step forward along the canonical path. A side
// branch returns to active negotiation.
func defaultAdvance(current types.Stage) types.Stage {
	switch current {
	case types.StageStalled, types.StageObjectionHandling, types.StageCompetitorComparison:
		return types.StageNegotiationActive
	}
	idx := stageIndex(current)
	if idx < 0 || idx >= len(canonicalPath)-1 {
		return current
	}
	return canonicalPath[idx+1]
}

func stageIndex(s types.Stage) int {
	for i, st := range canonicalPath {
		if st == s {
			return i
		}
	}
	return -1
}

func matchesAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
