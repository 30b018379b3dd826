package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/creator-match/negotiation-multi-agent/types"
)

// stubClient returns a canned completion, or an error.
type stubClient struct {
	resp string
	err  error
}

func (s *stubClient) Chat(ctx context.Context, system, user string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.resp, nil
}

func newInput(message string) *types.TaskInput {
	return &types.TaskInput{
		Message: message,
		Company: types.CompanyInfo{Name: "株式会社テスト", SenderName: "山田"},
		Counterparty: types.CounterpartyInfo{
			Name:         "Creator Taro",
			AudienceSize: 120_000,
		},
		Constraints: types.Constraints{Currency: "JPY"},
	}
}

func request(kind types.TaskKind, in *types.TaskInput) *types.AgentMessage {
	return types.NewTaskRequest("orchestrator", "", kind, in, types.PriorityHigh, "")
}

func TestAnalysisAgent_FallbackSentiment(t *testing.T) {
	agent := NewAnalysisAgent(nil)
	state := types.NewNegotiationState("t")

	tests := []struct {
		name    string
		message string
		want    types.Sentiment
	}{
		{"positive japanese", "ご提案ありがとうございます。ぜひ楽しみにしています。", types.SentimentVeryPositive},
		{"negative english", "Unfortunately this is difficult and I have a concern.", types.SentimentVeryNegative},
		{"hostile", "I will contact my lawyer about this scam.", types.SentimentHostile},
		{"neutral", "来週の月曜に打ち合わせをしましょう。", types.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := agent.Handle(context.Background(), request(types.TaskAnalyzeMessage, newInput(tt.message)), state)
			if !res.IsResult() {
				t.Fatalf("Expected result, got error report: %v", res.Error)
			}
			a, ok := res.Payload.(*types.AnalysisResult)
			if !ok {
				t.Fatalf("Expected *AnalysisResult payload, got %T", res.Payload)
			}
			if !a.FallbackUsed {
				t.Error("Expected fallback path with nil client")
			}
			if a.Sentiment != tt.want {
				t.Errorf("Expected sentiment %q, got %q (score %f)", tt.want, a.Sentiment, a.SentimentScore)
			}
		})
	}
}

func TestAnalysisAgent_FallbackUrgency(t *testing.T) {
	agent := NewAnalysisAgent(nil)
	state := types.NewNegotiationState("t")

	res := agent.Handle(context.Background(), request(types.TaskUrgencyAssessment, newInput("至急、本日中にご返信ください。deadline is today.")), state)
	a := res.Payload.(*types.AnalysisResult)
	if a.Urgency < 0.9 {
		t.Errorf("Expected high urgency for multiple urgent signals, got %f", a.Urgency)
	}

	res = agent.Handle(context.Background(), request(types.TaskUrgencyAssessment, newInput("いつでも大丈夫です。")), state)
	a = res.Payload.(*types.AnalysisResult)
	if a.Urgency != 0 {
		t.Errorf("Expected zero urgency, got %f", a.Urgency)
	}
}

func TestAnalysisAgent_CompletionOverridesFallback(t *testing.T) {
	client := &stubClient{resp: `{"intent": "pricing_inquiry", "sentiment_score": 0.9, "urgency": 0.2, "topics": ["price"]}`}
	agent := NewAnalysisAgent(client)
	state := types.NewNegotiationState("t")

	res := agent.Handle(context.Background(), request(types.TaskAnalyzeMessage, newInput("料金について教えてください")), state)
	if !res.IsResult() {
		t.Fatalf("Expected result, got: %v", res.Error)
	}
	a := res.Payload.(*types.AnalysisResult)
	if a.FallbackUsed {
		t.Error("Expected completion output, not fallback")
	}
	if a.Intent != "pricing_inquiry" {
		t.Errorf("Expected intent from completion, got %q", a.Intent)
	}
	if a.Sentiment != types.SentimentVeryPositive {
		t.Errorf("Expected very_positive from score 0.9, got %q", a.Sentiment)
	}
	if res.Confidence != 0.85 {
		t.Errorf("Expected confidence 0.85 on completion path, got %f", res.Confidence)
	}
}

func TestAnalysisAgent_BadCompletionFallsBack(t *testing.T) {
	client := &stubClient{resp: "I think the creator sounds happy!"}
	agent := NewAnalysisAgent(client)
	state := types.NewNegotiationState("t")

	res := agent.Handle(context.Background(), request(types.TaskAnalyzeMessage, newInput("ありがとうございます")), state)
	a := res.Payload.(*types.AnalysisResult)
	if !a.FallbackUsed {
		t.Error("Expected fallback when completion is not parseable JSON")
	}
	if res.Confidence != 0.6 {
		t.Errorf("Expected fallback confidence 0.6, got %f", res.Confidence)
	}
}

func TestAgent_UnsupportedKind(t *testing.T) {
	agent := NewAnalysisAgent(nil)
	state := types.NewNegotiationState("t")

	res := agent.Handle(context.Background(), request(types.TaskCalculatePricing, newInput("x")), state)
	if res.IsResult() {
		t.Fatal("Expected error report for unsupported kind")
	}
	if res.Confidence != 0 {
		t.Errorf("Expected zero confidence, got %f", res.Confidence)
	}
	if res.Error == nil || res.Error.Code != types.ErrCodeUnsupportedTask {
		t.Errorf("Expected code %s, got %+v", types.ErrCodeUnsupportedTask, res.Error)
	}
}

func TestAgent_ProtocolViolation(t *testing.T) {
	agent := NewRiskAgent(nil)
	state := types.NewNegotiationState("t")

	// A result envelope is not a valid inbound message for an agent.
	msg := types.NewTaskResult("someone", agent.ID(), types.TaskAssessRisks, &types.RiskResult{}, 0.5, "p", "c", 0)
	res := agent.Handle(context.Background(), msg, state)

	if res.IsResult() {
		t.Fatal("Expected error report for protocol violation")
	}
	if res.Error == nil || res.Error.Code != types.ErrCodeProtocolViolation {
		t.Errorf("Expected code %s, got %+v", types.ErrCodeProtocolViolation, res.Error)
	}
}

func TestAgent_CompletionErrorUsesFallback(t *testing.T) {
	client := &stubClient{err: errors.New("upstream unavailable")}
	agent := NewContextAgent(client)
	state := types.NewNegotiationState("t")

	res := agent.Handle(context.Background(), request(types.TaskAnalyzeContext, newInput("こんにちは")), state)
	if !res.IsResult() {
		t.Fatalf("Expected fallback result despite completion failure, got: %v", res.Error)
	}
	c := res.Payload.(*types.ContextResult)
	if !c.FallbackUsed {
		t.Error("Expected fallback context when completion fails")
	}
}

func TestAgent_PerformanceCounters(t *testing.T) {
	agent := NewAnalysisAgent(nil)
	state := types.NewNegotiationState("t")

	agent.Handle(context.Background(), request(types.TaskAnalyzeMessage, newInput("ありがとう")), state)
	agent.Handle(context.Background(), request(types.TaskCalculatePricing, newInput("x")), state)

	perf := agent.Performance()
	if perf.Tasks != 2 || perf.Failures != 1 {
		t.Errorf("Expected 2 tasks / 1 failure, got %d / %d", perf.Tasks, perf.Failures)
	}
	if perf.SuccessRate() != 0.5 {
		t.Errorf("Expected success rate 0.5, got %f", perf.SuccessRate())
	}
}

func TestRiskAgent_FallbackLevels(t *testing.T) {
	agent := NewRiskAgent(nil)
	state := types.NewNegotiationState("t")

	res := agent.Handle(context.Background(), request(types.TaskAssessRisks, newInput("楽しみにしています")), state)
	r := res.Payload.(*types.RiskResult)
	if r.Level != types.RiskLow {
		t.Errorf("Expected low risk for a benign message, got %q", r.Level)
	}

	res = agent.Handle(context.Background(), request(types.TaskAssessRisks, newInput("弁護士に相談してキャンセルも検討します。クレームも入れます。")), state)
	r = res.Payload.(*types.RiskResult)
	if r.Level == types.RiskLow {
		t.Errorf("Expected elevated risk for legal/cancellation signals, got %q (score %f)", r.Level, r.Score)
	}
	if len(r.Factors) == 0 {
		t.Error("Expected at least one risk factor")
	}
}

func TestStrategyAgent_HostileDeEscalates(t *testing.T) {
	agent := NewStrategyAgent(nil)
	state := types.NewNegotiationState("t")

	in := newInput("訴訟も辞さない")
	in.Analysis = &types.AnalysisResult{Sentiment: types.SentimentHostile, SentimentScore: -1}
	res := agent.Handle(context.Background(), request(types.TaskPlanStrategy, in), state)
	s := res.Payload.(*types.StrategyResult)
	if s.Approach != "de_escalate" {
		t.Errorf("Expected de_escalate for hostile sentiment, got %q", s.Approach)
	}
}

func TestPricingAgent_BandsAndBudgetClamp(t *testing.T) {
	agent := NewPricingAgent(nil)
	state := types.NewNegotiationState("t")

	in := newInput("x")
	in.Counterparty.AudienceSize = 5_000
	res := agent.Handle(context.Background(), request(types.TaskCalculatePricing, in), state)
	p := res.Payload.(*types.PricingResult)
	if p.RecommendedAmount != 30_000 {
		t.Errorf("Expected 30000 for a 5k audience, got %d", p.RecommendedAmount)
	}
	if p.FloorAmount != 24_000 || p.CeilingAmount != 36_000 {
		t.Errorf("Expected floor/ceiling 24000/36000, got %d/%d", p.FloorAmount, p.CeilingAmount)
	}

	in = newInput("x")
	in.Counterparty.AudienceSize = 120_000
	in.Constraints.BudgetMax = 350_000
	res = agent.Handle(context.Background(), request(types.TaskCalculatePricing, in), state)
	p = res.Payload.(*types.PricingResult)
	if p.CeilingAmount != 350_000 {
		t.Errorf("Expected ceiling clamped to budget max 350000, got %d", p.CeilingAmount)
	}
	if p.RecommendedAmount > 350_000 {
		t.Errorf("Expected recommendation within budget, got %d", p.RecommendedAmount)
	}
	if p.Currency != "JPY" {
		t.Errorf("Expected currency JPY, got %q", p.Currency)
	}
}

func TestCommunicationAgent_TemplateReplyHasSignature(t *testing.T) {
	agent := NewCommunicationAgent(nil)
	state := types.NewNegotiationState("t")

	in := newInput("ご提案についてもう少し教えてください")
	in.Strategy = &types.IntegratedStrategy{
		Approach:    "build_rapport",
		KeyMessages: []string{"ご質問ありがとうございます"},
		Tone:        "friendly",
	}
	res := agent.Handle(context.Background(), request(types.TaskGenerateResponse, in), state)
	if !res.IsResult() {
		t.Fatalf("Expected result, got: %v", res.Error)
	}
	r := res.Payload.(*types.ResponseResult)
	if !strings.Contains(r.Content, "株式会社テスト") {
		t.Error("Expected company name in the drafted reply")
	}
	if !strings.Contains(r.Content, "Creator Taro様") {
		t.Error("Expected counterparty salutation in the drafted reply")
	}
	if !r.FallbackUsed {
		t.Error("Expected template path with nil client")
	}
}

func TestCommunicationAgent_VariationsRequireDraft(t *testing.T) {
	agent := NewCommunicationAgent(nil)
	state := types.NewNegotiationState("t")

	res := agent.Handle(context.Background(), request(types.TaskCreateVariations, newInput("x")), state)
	if res.IsResult() {
		t.Fatal("Expected error report when no draft is supplied")
	}

	in := newInput("x")
	in.Draft = "ご連絡ありがとうございます。詳細を確認します。\n\nまたご連絡いたします。よろしくお願いします。"
	res = agent.Handle(context.Background(), request(types.TaskCreateVariations, in), state)
	if !res.IsResult() {
		t.Fatalf("Expected variants, got: %v", res.Error)
	}
	v := res.Payload.(*types.VariationsResult)
	if len(v.Variants) != 2 {
		t.Fatalf("Expected 2 variants, got %d", len(v.Variants))
	}
	if !strings.Contains(v.Variants[1], "何卒よろしくお願い申し上げます") {
		t.Errorf("Expected formalized closing in variant, got %q", v.Variants[1])
	}
}

func TestEnsureSignature(t *testing.T) {
	company := types.CompanyInfo{Name: "株式会社テスト", SenderName: "山田"}

	signed := EnsureSignature("本文です。", company)
	if !strings.Contains(signed, "――\n株式会社テスト 山田") {
		t.Errorf("Expected appended signature, got %q", signed)
	}

	// Already signed content is left alone.
	again := EnsureSignature(signed, company)
	if strings.Count(again, "株式会社テスト") != 1 {
		t.Errorf("Expected signature appended once, got %q", again)
	}
}
