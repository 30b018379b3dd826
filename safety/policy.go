// Package safety decides whether a gated reply may be sent automatically,
// must be queued for human approval, or must escalate. It is independent
// of the orchestrator: it sees only the generated content, its confidence
// and the negotiation state.
package safety

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/creator-match/negotiation-multi-agent/types"
)

// DecisionKind is the outcome of the safety evaluation.
type DecisionKind string

const (
	AutoSend         DecisionKind = "auto_send"
	QueueForApproval DecisionKind = "queue_for_approval"
	Escalate         DecisionKind = "escalate"
)

// Decision is the policy's verdict with its reasoning.
type Decision struct {
	Kind        DecisionKind       `json:"kind"`
	Reason      string             `json:"reason"`
	SafetyScore float64            `json:"safety_score"`
	CheckScores map[string]float64 `json:"check_scores"`
}

// Config holds the operator-configured thresholds.
type Config struct {
	MaxRounds                int
	AutoApprovalConfidence   float64
	BudgetFlexibilityPercent float64
	WorkingHoursStart        int
	WorkingHoursEnd          int
	MaxDailyAutoSends        int
	AmountCeiling            int64
	ContentLengthCap         int
}

// Policy evaluates the ordered safety checks.
type Policy struct {
	cfg Config
	now func() time.Time
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock injects the time source used by the working-hours check.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// NewPolicy creates a safety policy.
func NewPolicy(cfg Config, opts ...Option) *Policy {
	p := &Policy{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the checks in order; the first failing check wins.
// Irreversible conditions (rounds exhausted, large amounts, hostile
// language) are checked before the softer heuristics so a hard stop can
// never be masked by an otherwise-high confidence score.
func (p *Policy) Evaluate(content string, confidence float64, state *types.NegotiationState) Decision {
	scores := make(map[string]float64)

	// 1. Round budget exhausted.
	round := state.Metrics.RoundNumber
	roundScore := 1.0
	if p.cfg.MaxRounds > 0 {
		roundScore = 1 - float64(round)/float64(p.cfg.MaxRounds)
		if roundScore < 0 {
			roundScore = 0
		}
	}
	scores["rounds"] = roundScore
	if p.cfg.MaxRounds > 0 && round >= p.cfg.MaxRounds {
		return Decision{Kind: Escalate, Reason: "max rounds reached", SafetyScore: 0, CheckScores: scores}
	}

	// 2. Monetary amount above the ceiling, widened by the operator's
	// budget flexibility.
	amountScore := 1.0
	if p.cfg.AmountCeiling > 0 {
		ceiling := p.effectiveCeiling()
		if amt, over := maxAmountOver(content, ceiling); over {
			scores["amount"] = 0.2
			return Decision{
				Kind:        QueueForApproval,
				Reason:      fmt.Sprintf("detected amount %d exceeds ceiling %d", amt, ceiling),
				SafetyScore: 0.2,
				CheckScores: scores,
			}
		}
	}
	scores["amount"] = amountScore

	// Daily auto-send cap, with the hard stops. The counter is per
	// calendar day; a date rollover resets it before the check.
	if p.cfg.MaxDailyAutoSends > 0 {
		today := p.now().Format("2006-01-02")
		if state.Metrics.AutoSendDate != today {
			state.Metrics.AutoSendsToday = 0
			state.Metrics.AutoSendDate = today
		}
		if state.Metrics.AutoSendsToday >= p.cfg.MaxDailyAutoSends {
			scores["daily_cap"] = 0.3
			return Decision{Kind: QueueForApproval, Reason: "daily auto-send cap reached", SafetyScore: 0.3, CheckScores: scores}
		}
	}
	scores["daily_cap"] = 1.0

	// 3. Emergency lexical signals in the most recent messages.
	signals := emergencySignalCount(recentMessages(state, 3))
	signalScore := 1.0 - 0.4*float64(signals)
	if signalScore < 0 {
		signalScore = 0
	}
	scores["signals"] = signalScore
	if signals >= 2 {
		return Decision{Kind: Escalate, Reason: "negative or emergency signals in recent messages", SafetyScore: signalScore, CheckScores: scores}
	}

	// 4. Confidence below the auto-approval threshold.
	scores["confidence"] = confidence
	if confidence < p.cfg.AutoApprovalConfidence {
		return Decision{
			Kind:        QueueForApproval,
			Reason:      fmt.Sprintf("confidence %.2f below auto-approval threshold %.2f", confidence, p.cfg.AutoApprovalConfidence),
			SafetyScore: confidence,
			CheckScores: scores,
		}
	}

	// 5. Outside working hours.
	hourScore := 1.0
	if !p.withinWorkingHours() {
		hourScore = 0.3
	}
	scores["working_hours"] = hourScore
	if hourScore < 1 {
		return Decision{Kind: QueueForApproval, Reason: "outside working hours", SafetyScore: hourScore, CheckScores: scores}
	}

	// 6. Stage-specific base safety. Consequential stages score low by
	// construction and always go to a human.
	stageScore := stageBaseScore(state.Stage)
	scores["stage"] = stageScore
	if stageScore < 0.5 {
		return Decision{
			Kind:        QueueForApproval,
			Reason:      fmt.Sprintf("stage %s requires human review", state.Stage),
			SafetyScore: stageScore,
			CheckScores: scores,
		}
	}

	// 7. Content length cap.
	lengthScore := 1.0
	if p.cfg.ContentLengthCap > 0 && len([]rune(content)) > p.cfg.ContentLengthCap {
		lengthScore = 0.4
	}
	scores["length"] = lengthScore
	if lengthScore < 1 {
		return Decision{Kind: QueueForApproval, Reason: "content exceeds length cap", SafetyScore: lengthScore, CheckScores: scores}
	}

	// 8. All checks passed.
	min := 1.0
	for _, s := range scores {
		if s < min {
			min = s
		}
	}
	return Decision{Kind: AutoSend, Reason: "all safety checks passed", SafetyScore: min, CheckScores: scores}
}

// effectiveCeiling inflates the configured ceiling by the budget
// flexibility percentage.
func (p *Policy) effectiveCeiling() int64 {
	ceiling := p.cfg.AmountCeiling
	if p.cfg.BudgetFlexibilityPercent > 0 {
		ceiling += int64(float64(ceiling) * p.cfg.BudgetFlexibilityPercent / 100)
	}
	return ceiling
}

func (p *Policy) withinWorkingHours() bool {
	start, end := p.cfg.WorkingHoursStart, p.cfg.WorkingHoursEnd
	if start == end {
		return true // no window configured
	}
	h := p.now().Hour()
	if start < end {
		return h >= start && h < end
	}
	// Window wraps midnight.
	return h >= start || h < end
}

// stageBaseScore assigns lower base safety to consequential stages.
func stageBaseScore(s types.Stage) float64 {
	switch s {
	case types.StageFinalAdjustment, types.StageContractPreparation, types.StageDealClosed:
		return 0.3
	case types.StageDecisionPending, types.StageTermsAdjustment:
		return 0.45
	case types.StagePriceNegotiation:
		return 0.6
	case types.StageLost, types.StageWithdrawn:
		return 0.2
	default:
		return 0.8
	}
}

var emergencyKeywords = []string{
	"cancel", "complaint", "lawsuit", "lawyer", "legal", "refund", "unacceptable",
	"キャンセル", "解約", "クレーム", "訴訟", "弁護士", "法的", "返金",
}

func emergencySignalCount(messages []string) int {
	n := 0
	for _, m := range messages {
		lower := strings.ToLower(m)
		for _, k := range emergencyKeywords {
			if strings.Contains(lower, k) {
				n++
			}
		}
	}
	return n
}

func recentMessages(state *types.NegotiationState, n int) []string {
	h := state.ConversationHistory
	if len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]string, 0, n)
	for _, m := range h {
		out = append(out, m.Content)
	}
	return out
}

// amountPattern matches monetary mentions such as "1,500,000円",
// "¥300000", "$5,000" and "150万円".
var amountPattern = regexp.MustCompile(`(?:[¥$]\s*)?([0-9][0-9,]*)(\s*万)?\s*(円|JPY|yen|USD|ドル)?`)

// maxAmountOver scans content for monetary amounts, returning the largest
// one that exceeds the ceiling.
func maxAmountOver(content string, ceiling int64) (int64, bool) {
	var max int64
	over := false
	for _, m := range amountPattern.FindAllStringSubmatch(content, -1) {
		// Require either a currency marker or a 万 multiplier, so bare
		// numbers (dates, counts) are not treated as money.
		hasCurrency := strings.Contains(m[0], "¥") || strings.Contains(m[0], "$") || m[3] != ""
		if !hasCurrency && m[2] == "" {
			continue
		}
		digits := strings.ReplaceAll(m[1], ",", "")
		v, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			continue
		}
		if strings.TrimSpace(m[2]) == "万" {
			v *= 10_000
		}
		if v > ceiling && v > max {
			max = v
			over = true
		}
	}
	return max, over
}
