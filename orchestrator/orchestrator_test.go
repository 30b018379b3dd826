package orchestrator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/creator-match/negotiation-multi-agent/agents"
	"github.com/creator-match/negotiation-multi-agent/safety"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// stubAgent returns a fixed payload and confidence, or fails, optionally
// after a delay. The last task input it handled is kept for assertions.
type stubAgent struct {
	id         string
	kinds      []types.TaskKind
	payload    types.TaskPayload
	confidence float64
	fail       bool
	delay      time.Duration
	seen       *types.TaskInput
}

func (s *stubAgent) ID() string                      { return s.id }
func (s *stubAgent) SupportedTasks() []types.TaskKind { return s.kinds }
func (s *stubAgent) Performance() agents.Performance  { return agents.Performance{} }

func (s *stubAgent) Handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if in, ok := msg.Payload.(*types.TaskInput); ok {
		s.seen = in
	}
	if s.fail {
		terr := types.NewTaskError(types.ErrCodeAgentTask, msg.TaskKind, "stub failure", nil)
		return types.NewErrorReport(s.id, msg.SenderID, terr, msg.ID, msg.CorrelationID)
	}
	return types.NewTaskResult(s.id, msg.SenderID, msg.TaskKind, s.payload, s.confidence, msg.ID, msg.CorrelationID, 1)
}

func testInput() Input {
	return Input{
		ThreadID: "thread-1",
		Message:  "ご提案について詳しく教えてください",
		Company:  types.CompanyInfo{Name: "株式会社テスト", SenderName: "山田"},
		Counterparty: types.CounterpartyInfo{
			Name:         "Creator Taro",
			AudienceSize: 120_000,
		},
		Constraints: types.Constraints{Currency: "JPY"},
	}
}

func TestOrchestrate_PhaseOneMeanIncludesFailures(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, &stubAgent{
		id: "context-agent", kinds: []types.TaskKind{types.TaskAnalyzeContext},
		payload: &types.ContextResult{Summary: "two messages so far"}, confidence: 0.9,
	})
	mustRegister(t, registry, &stubAgent{
		id: "analysis-agent", kinds: []types.TaskKind{types.TaskAnalyzeMessage},
		payload: &types.AnalysisResult{Intent: "general_reply", Sentiment: types.SentimentNeutral}, confidence: 0.8,
	})
	mustRegister(t, registry, &stubAgent{
		id: "risk-agent", kinds: []types.TaskKind{types.TaskAssessRisks}, fail: true,
	})

	o := New(registry)
	out := o.Orchestrate(context.Background(), testInput())

	// Mean over all three canonical tasks: (0.9 + 0.8 + 0) / 3.
	want := (0.9 + 0.8 + 0.0) / 3.0
	if math.Abs(out.PhaseConfidence[1]-want) > 1e-9 {
		t.Errorf("Expected phase-1 confidence %.4f, got %.4f", want, out.PhaseConfidence[1])
	}
	if !out.Success {
		t.Error("Expected run to complete despite the failed risk agent")
	}
}

func TestOrchestrate_MissingAgentCountsAsZero(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, &stubAgent{
		id: "analysis-agent", kinds: []types.TaskKind{types.TaskAnalyzeMessage},
		payload: &types.AnalysisResult{Sentiment: types.SentimentNeutral}, confidence: 0.9,
	})

	o := New(registry)
	out := o.Orchestrate(context.Background(), testInput())

	want := 0.9 / 3.0
	if math.Abs(out.PhaseConfidence[1]-want) > 1e-9 {
		t.Errorf("Expected phase-1 confidence %.4f with two absent agents, got %.4f", want, out.PhaseConfidence[1])
	}
}

func TestOrchestrate_EmptyRegistryStillProducesReply(t *testing.T) {
	o := New(NewRegistry())
	out := o.Orchestrate(context.Background(), testInput())

	if !out.Success {
		t.Fatal("Expected degraded success with no agents at all")
	}
	if out.Content == "" {
		t.Fatal("Expected a templated fallback reply")
	}
	if out.QualityScore >= 0.75 {
		t.Errorf("Expected low quality score for the fallback path, got %.2f", out.QualityScore)
	}
	if out.Repairs != 1 {
		t.Errorf("Expected exactly one repair attempt, got %d", out.Repairs)
	}
	if !containsFlag(out.Flags, FlagLowQuality) {
		t.Errorf("Expected low_quality flag, got %v", out.Flags)
	}
}

func TestOrchestrate_Deterministic(t *testing.T) {
	build := func() *Orchestrator {
		registry := NewRegistry()
		mustRegister(t, registry, &stubAgent{
			id: "communication-agent", kinds: []types.TaskKind{types.TaskGenerateResponse},
			payload: &types.ResponseResult{
				Content: "ご連絡ありがとうございます。詳細をお送りしますので、ご確認のほどよろしくお願いいたします。内容にご不明点があればいつでもお知らせください。\n\n――\n株式会社テスト 山田",
			},
			confidence: 0.85,
		})
		return New(registry)
	}

	first := build().Orchestrate(context.Background(), testInput())
	second := build().Orchestrate(context.Background(), testInput())

	if first.Content != second.Content {
		t.Error("Expected identical content for identical inputs")
	}
	if first.Stage != second.Stage {
		t.Errorf("Expected identical stage, got %s vs %s", first.Stage, second.Stage)
	}
	if first.QualityScore != second.QualityScore {
		t.Errorf("Expected identical quality score, got %f vs %f", first.QualityScore, second.QualityScore)
	}
}

func TestOrchestrate_AgreementJumpsStage(t *testing.T) {
	o := New(NewRegistry())

	in := testInput()
	in.Message = "内容に合意します。ぜひ進めましょう。"
	out := o.Orchestrate(context.Background(), in)

	if out.Stage != types.StageFinalAdjustment {
		t.Errorf("Expected jump to final_adjustment on agreement language, got %s", out.Stage)
	}

	// From a late stage the same signal closes the deal.
	state := types.NewNegotiationState("thread-2")
	state.Stage = types.StageDecisionPending
	in.State = state
	out = o.Orchestrate(context.Background(), in)
	if out.Stage != types.StageDealClosed {
		t.Errorf("Expected deal_closed from decision_pending, got %s", out.Stage)
	}
}

func TestOrchestrate_StateAccumulates(t *testing.T) {
	o := New(NewRegistry())

	out := o.Orchestrate(context.Background(), testInput())
	if out.State.Metrics.RoundNumber != 1 || out.State.Metrics.CompletedRuns != 1 {
		t.Fatalf("Expected first run counters, got %+v", out.State.Metrics)
	}

	in := testInput()
	in.Message = "ありがとうございます、検討します"
	in.State = out.State
	out2 := o.Orchestrate(context.Background(), in)

	if out2.State.Metrics.RoundNumber != 2 {
		t.Errorf("Expected round 2, got %d", out2.State.Metrics.RoundNumber)
	}
	if len(out2.State.ConversationHistory) != 2 {
		t.Errorf("Expected 2 recorded inbound messages, got %d", len(out2.State.ConversationHistory))
	}
	if out2.State.NegotiationID != out.State.NegotiationID {
		t.Error("Expected the same negotiation id across runs of one thread")
	}
}

func TestOrchestrate_SafetyPolicyEvaluated(t *testing.T) {
	policy := safety.NewPolicy(safety.Config{
		MaxRounds:              3,
		AutoApprovalConfidence: 0.75,
	})
	o := New(NewRegistry(), WithSafetyPolicy(policy))

	state := types.NewNegotiationState("thread-3")
	state.Metrics.RoundNumber = 2 // becomes 3 during the run

	in := testInput()
	in.State = state
	out := o.Orchestrate(context.Background(), in)

	if out.Safety == nil {
		t.Fatal("Expected a safety decision")
	}
	if out.Safety.Kind != safety.Escalate {
		t.Errorf("Expected escalate at the round budget, got %s (%s)", out.Safety.Kind, out.Safety.Reason)
	}
}

func TestOrchestrate_GoodQualityThresholdGatesVariants(t *testing.T) {
	build := func(opts ...Option) *Orchestrator {
		registry := NewRegistry()
		mustRegister(t, registry, &stubAgent{
			id: "communication-agent", kinds: []types.TaskKind{types.TaskGenerateResponse},
			payload:    &types.ResponseResult{Content: "ご提案の詳細をお送りします。\n\n――\n株式会社テスト 山田"},
			confidence: 0.7,
		})
		mustRegister(t, registry, &stubAgent{
			id: "variations-agent", kinds: []types.TaskKind{types.TaskCreateVariations},
			payload:    &types.VariationsResult{Variants: []string{"案A", "案B", "案C"}},
			confidence: 0.7,
		})
		return New(registry, opts...)
	}

	// At the default 0.75 threshold a 0.7 draft gets no variants.
	out := build().Orchestrate(context.Background(), testInput())
	if len(out.Variants) != 0 {
		t.Fatalf("Expected no variants at the default threshold, got %v", out.Variants)
	}

	// Lowering the threshold via the option enables them, capped at two.
	out = build(WithGoodQualityThreshold(0.6)).Orchestrate(context.Background(), testInput())
	if len(out.Variants) != 2 {
		t.Fatalf("Expected 2 variants at the lowered threshold, got %v", out.Variants)
	}
}

func TestOrchestrate_RiskResultReachesStrategyAgent(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, &stubAgent{
		id: "threat-agent", kinds: []types.TaskKind{types.TaskAssessRisks},
		payload: &types.RiskResult{Level: types.RiskHigh, Score: 0.8, Factors: []string{"cancellation"}}, confidence: 0.9,
	})
	strategy := &stubAgent{
		id: "strategy-agent", kinds: []types.TaskKind{types.TaskPlanStrategy},
		payload: &types.StrategyResult{Approach: "de_escalate", Tone: "calm"}, confidence: 0.8,
	}
	mustRegister(t, registry, strategy)

	o := New(registry)
	o.Orchestrate(context.Background(), testInput())

	// The assessment must reach strategy planning regardless of which
	// agent id produced it.
	if strategy.seen == nil || strategy.seen.Risk == nil {
		t.Fatal("Expected the strategy agent to receive the risk assessment")
	}
	if strategy.seen.Risk.Level != types.RiskHigh {
		t.Errorf("Expected risk level high, got %s", strategy.seen.Risk.Level)
	}
}

func TestOrchestrate_SafetyUsesGatedQualityScore(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, &stubAgent{
		id: "communication-agent", kinds: []types.TaskKind{types.TaskGenerateResponse},
		payload: &types.ResponseResult{
			Content: "ご連絡いただきありがとうございます。ご提案いただいた内容を社内で確認のうえ、詳細な資料をお送りいたしますので、今しばらくお待ちいただけますと幸いです。ご不明な点がございましたらいつでもお知らせください。\n\n――\n株式会社テスト 山田",
		},
		confidence: 0.85,
	})

	policy := safety.NewPolicy(safety.Config{
		MaxRounds:              10,
		AutoApprovalConfidence: 0.75,
	})
	o := New(registry, WithSafetyPolicy(policy))
	out := o.Orchestrate(context.Background(), testInput())

	// With only the communication agent running, the blended run
	// confidence sits well below the approval threshold. The policy
	// judges the outgoing reply by its gated quality score instead.
	if out.Confidence >= 0.75 {
		t.Fatalf("Expected blended confidence below 0.75, got %.4f", out.Confidence)
	}
	if out.QualityScore < 0.75 {
		t.Fatalf("Expected quality score at or above 0.75, got %.4f", out.QualityScore)
	}
	if out.Safety == nil || out.Safety.Kind != safety.AutoSend {
		t.Errorf("Expected auto_send on the quality score, got %+v", out.Safety)
	}
}

func TestDispatcher_TimeoutBecomesErrorReport(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, &stubAgent{
		id: "slow-agent", kinds: []types.TaskKind{types.TaskAssessRisks},
		payload: &types.RiskResult{}, confidence: 0.9, delay: 200 * time.Millisecond,
	})
	d := NewDispatcher(registry, 20*time.Millisecond)

	req := types.NewTaskRequest("orchestrator", "", types.TaskAssessRisks, &types.TaskInput{}, types.PriorityHigh, "")
	start := time.Now()
	results := d.Dispatch(context.Background(), []*types.AgentMessage{req}, types.NewNegotiationState("t"))
	elapsed := time.Since(start)

	if len(results) != 1 || results[0] == nil {
		t.Fatalf("Expected one non-nil result, got %v", results)
	}
	res := results[0]
	if res.IsResult() {
		t.Fatal("Expected error report for a timed-out agent")
	}
	if res.Error == nil || res.Error.Code != types.ErrCodeAgentTimeout {
		t.Errorf("Expected timeout code, got %+v", res.Error)
	}
	if res.Confidence != 0 {
		t.Errorf("Expected zero confidence, got %f", res.Confidence)
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("Expected join to return at the deadline, took %v", elapsed)
	}
}

func TestDispatcher_FanOutJoinsAll(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, &stubAgent{
		id: "a1", kinds: []types.TaskKind{types.TaskAnalyzeContext},
		payload: &types.ContextResult{}, confidence: 0.9,
	})
	mustRegister(t, registry, &stubAgent{
		id: "a2", kinds: []types.TaskKind{types.TaskAnalyzeMessage}, fail: true,
	})
	d := NewDispatcher(registry, time.Second)

	reqs := []*types.AgentMessage{
		types.NewTaskRequest("orchestrator", "", types.TaskAnalyzeContext, &types.TaskInput{}, types.PriorityHigh, ""),
		types.NewTaskRequest("orchestrator", "", types.TaskAnalyzeMessage, &types.TaskInput{}, types.PriorityHigh, ""),
		types.NewTaskRequest("orchestrator", "", types.TaskPlanStrategy, &types.TaskInput{}, types.PriorityHigh, ""),
	}
	results := d.Dispatch(context.Background(), reqs, types.NewNegotiationState("t"))

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if !results[0].IsResult() {
		t.Error("Expected success from a1")
	}
	if results[1].IsResult() {
		t.Error("Expected failure from a2")
	}
	// No agent claims plan_strategy.
	if results[2].IsResult() || results[2].Error == nil || results[2].Error.Code != types.ErrCodeOrchestration {
		t.Errorf("Expected orchestration error for unclaimed kind, got %+v", results[2].Error)
	}
}

func TestRegistry_RejectsKindCollisions(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, &stubAgent{id: "a1", kinds: []types.TaskKind{types.TaskAssessRisks}})

	err := registry.Register(&stubAgent{id: "a2", kinds: []types.TaskKind{types.TaskAssessRisks}})
	if err == nil {
		t.Fatal("Expected error for a task kind claimed twice")
	}

	err = registry.Register(&stubAgent{id: "a1", kinds: []types.TaskKind{types.TaskPlanStrategy}})
	if err == nil {
		t.Fatal("Expected error for a duplicate agent id")
	}
}

func mustRegister(t *testing.T, r *Registry, a agents.Agent) {
	t.Helper()
	if err := r.Register(a); err != nil {
		t.Fatalf("Failed to register %s: %v", a.ID(), err)
	}
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
