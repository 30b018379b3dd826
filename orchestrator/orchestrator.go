// Package orchestrator runs the four-phase negotiation pipeline:
// analyze, strategize, compose, evaluate. It owns all mutations of the
// negotiation state; agents only return results.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/creator-match/negotiation-multi-agent/logger"
	"github.com/creator-match/negotiation-multi-agent/safety"
	"github.com/creator-match/negotiation-multi-agent/types"
)

const orchestratorID = "orchestrator"

// EventSink receives orchestration events. Implementations must not
// block; the websocket event server buffers internally.
type EventSink interface {
	Publish(types.OrchestrationEvent)
}

// Input is one inbound negotiation message plus its context.
type Input struct {
	ThreadID     string
	Message      string
	History      []types.ConversationMessage
	Company      types.CompanyInfo
	Counterparty types.CounterpartyInfo
	Constraints  types.Constraints
	Instructions string

	// State continues a prior run for the same thread. Nil starts fresh.
	// Concurrent runs for the same thread id are the caller's problem to
	// serialize; runs for different ids are fully independent.
	State *types.NegotiationState
}

// Output is the result of one full orchestration run. A run always
// completes: total agent failure degrades quality and confidence rather
// than aborting, so callers check QualityScore and Safety, not errors.
type Output struct {
	Success         bool                   `json:"success"`
	Content         string                 `json:"content"`
	Variants        []string               `json:"variants,omitempty"`
	QualityScore    float64                `json:"quality_score"`
	Confidence      float64                `json:"confidence"`
	Stage           types.Stage            `json:"stage"`
	Flags           []string               `json:"flags,omitempty"`
	DecisionHistory []types.DecisionRecord `json:"decision_history"`
	PhaseConfidence map[int]float64        `json:"phase_confidence"`
	Repairs         int                    `json:"repairs"`
	Safety          *safety.Decision       `json:"safety,omitempty"`
	State           *types.NegotiationState `json:"state"`
}

// Orchestrator coordinates the specialized agents for one negotiation
// thread at a time.
type Orchestrator struct {
	registry   *Registry
	dispatcher *Dispatcher
	gate       *QualityGate
	policy     *safety.Policy
	events     EventSink
	log        *logger.Logger

	goodQuality float64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSafetyPolicy attaches the auto-send policy evaluated after Phase 4.
func WithSafetyPolicy(p *safety.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithEventSink attaches an event stream.
func WithEventSink(s EventSink) Option {
	return func(o *Orchestrator) { o.events = s }
}

// WithAgentTimeout bounds each agent call.
func WithAgentTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.dispatcher = NewDispatcher(o.registry, d) }
}

// WithQualityGate replaces the default gate.
func WithQualityGate(g *QualityGate) Option {
	return func(o *Orchestrator) { o.gate = g }
}

// WithGoodQualityThreshold sets the primary-draft confidence above which
// variants are requested.
func WithGoodQualityThreshold(v float64) Option {
	return func(o *Orchestrator) {
		if v > 0 {
			o.goodQuality = v
		}
	}
}

// New creates an orchestrator over a registry of agents.
func New(registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		dispatcher:  NewDispatcher(registry, 20*time.Second),
		gate:        NewQualityGate(),
		log:         logger.New(orchestratorID),
		goodQuality: 0.75,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate runs the full pipeline for one inbound message and returns
// the drafted reply, the safety decision and the updated state for the
// caller to persist.
func (o *Orchestrator) Orchestrate(ctx context.Context, in Input) *Output {
	state := o.prepareState(in)
	log := o.log.WithField("negotiation_id", state.NegotiationID)

	phaseConf := make(map[int]float64)

	// Phase 1: parallel context + analysis + risk.
	analysis, risk := o.runPhase1(ctx, in, state, phaseConf)

	// Phase 2: parallel strategy + pricing, merged.
	strategy := o.runPhase2(ctx, in, state, analysis, risk, phaseConf)

	// Phase 3: compose the reply, optionally with variants.
	draft, variants, commConf := o.runPhase3(ctx, in, state, analysis, strategy, phaseConf)

	// Phase 4: quality gate with one bounded repair.
	content, quality, flags, repairs := o.runPhase4(draft, commConf, state)
	phaseConf[4] = quality

	confidence := overallConfidence(phaseConf[1], strategy.Confidence, commConf)

	// Fold run metrics and advance the stage.
	previousStage := state.Stage
	state.Stage = NextStage(state.Stage, in.Message)
	state.Metrics.ExchangeCount++
	state.Metrics.RoundNumber++
	state.Metrics.CompletedRuns++
	state.Metrics.LastQualityScore = quality
	n := float64(state.Metrics.CompletedRuns)
	state.Metrics.AvgQualityScore += (quality - state.Metrics.AvgQualityScore) / n
	state.Metrics.AvgConfidence += (confidence - state.Metrics.AvgConfidence) / n
	state.UpdatedAt = time.Now()

	if state.Stage != previousStage {
		state.AppendMemory("stage_history", fmt.Sprintf("%s -> %s", previousStage, state.Stage))
		o.publish(state, types.OrchestrationEvent{
			Type: types.EventStageChanged, Stage: state.Stage,
			Detail: string(previousStage),
		})
	}

	out := &Output{
		Success:         true,
		Content:         content,
		Variants:        variants,
		QualityScore:    quality,
		Confidence:      confidence,
		Stage:           state.Stage,
		Flags:           flags,
		DecisionHistory: state.DecisionHistory,
		PhaseConfidence: phaseConf,
		Repairs:         repairs,
		State:           state,
	}

	if o.policy != nil {
		// The policy checks the gated quality score of the outgoing reply.
		decision := o.policy.Evaluate(content, quality, state)
		out.Safety = &decision
		if decision.Kind == safety.AutoSend {
			state.Metrics.AutoSendsToday++
		}
		o.publish(state, types.OrchestrationEvent{
			Type: types.EventSafetyDecision, Detail: string(decision.Kind), Confidence: decision.SafetyScore,
		})
	}

	log.WithFields(map[string]interface{}{
		"stage":   state.Stage,
		"quality": quality,
	}).Info("orchestration run completed")
	o.publish(state, types.OrchestrationEvent{
		Type: types.EventRunCompleted, Stage: state.Stage, Confidence: confidence,
	})

	return out
}

// prepareState creates or continues the thread state and folds the new
// inbound message into the conversation history.
func (o *Orchestrator) prepareState(in Input) *types.NegotiationState {
	state := in.State
	if state == nil {
		state = types.NewNegotiationState(in.ThreadID)
		state.ConversationHistory = append(state.ConversationHistory, in.History...)
	}
	state.CompanyInfo = in.Company
	state.CounterpartyInfo = in.Counterparty
	state.Constraints = in.Constraints
	state.ConversationHistory = append(state.ConversationHistory, types.ConversationMessage{
		Role:      "counterparty",
		Content:   in.Message,
		Timestamp: time.Now(),
	})
	return state
}

// taskInput assembles the request payload for a phase.
func (o *Orchestrator) taskInput(in Input, state *types.NegotiationState) *types.TaskInput {
	return &types.TaskInput{
		Message:      in.Message,
		History:      state.ConversationHistory,
		Instructions: in.Instructions,
		Company:      in.Company,
		Counterparty: in.Counterparty,
		Constraints:  in.Constraints,
	}
}

// runPhase1 fans analyze_context, analyze_message and assess_risks out in
// parallel. The phase confidence is the arithmetic mean over all three
// canonical tasks: a failed or absent agent contributes a synthetic zero,
// it does not shrink the denominator by aborting the phase.
func (o *Orchestrator) runPhase1(ctx context.Context, in Input, state *types.NegotiationState, phaseConf map[int]float64) (*types.AnalysisResult, *types.RiskResult) {
	o.publish(state, types.OrchestrationEvent{Type: types.EventPhaseStarted, Phase: 1})

	kinds := []types.TaskKind{types.TaskAnalyzeContext, types.TaskAnalyzeMessage, types.TaskAssessRisks}
	payload := o.taskInput(in, state)

	var reqs []*types.AgentMessage
	dispatched := make([]bool, len(kinds))
	for i, kind := range kinds {
		if _, ok := o.registry.ForKind(kind); !ok {
			continue // optional agent, skipped
		}
		dispatched[i] = true
		reqs = append(reqs, types.NewTaskRequest(orchestratorID, "", kind, payload, types.PriorityHigh, ""))
	}

	results := o.dispatcher.Dispatch(ctx, reqs, state)

	total := 0.0
	var analysis *types.AnalysisResult
	var risk *types.RiskResult
	ri := 0
	for i, kind := range kinds {
		if !dispatched[i] {
			continue // synthetic zero entry
		}
		res := results[ri]
		ri++
		state.RecordResult(res)
		if !res.IsResult() {
			continue
		}
		total += res.Confidence
		o.publish(state, types.OrchestrationEvent{
			Type: types.EventAgentResult, Phase: 1, AgentID: res.SenderID, Confidence: res.Confidence,
		})

		switch kind {
		case types.TaskAnalyzeContext:
			if c, ok := res.Payload.(*types.ContextResult); ok {
				state.AppendMemory("context", c.Summary)
			}
		case types.TaskAnalyzeMessage:
			if a, ok := res.Payload.(*types.AnalysisResult); ok {
				analysis = a
				state.Sentiment = a.Sentiment
				state.AppendMemory("sentiment_history", string(a.Sentiment))
				state.AppendMemory("analysis", a.Intent)
			}
		case types.TaskAssessRisks:
			if r, ok := res.Payload.(*types.RiskResult); ok {
				risk = r
				state.RiskLevel = r.Level
				for _, f := range r.Factors {
					state.AppendMemory("risk_history", f)
				}
			}
		}
	}
	phaseConf[1] = total / float64(len(kinds))

	o.publish(state, types.OrchestrationEvent{
		Type: types.EventPhaseCompleted, Phase: 1, Confidence: phaseConf[1],
	})
	return analysis, risk
}

// runPhase2 fans plan_strategy and calculate_pricing out in parallel and
// merges them into one integrated strategy. The merged confidence is the
// minimum of the two, not the mean: either missing piece invalidates the
// combined plan.
func (o *Orchestrator) runPhase2(ctx context.Context, in Input, state *types.NegotiationState, analysis *types.AnalysisResult, risk *types.RiskResult, phaseConf map[int]float64) *types.IntegratedStrategy {
	o.publish(state, types.OrchestrationEvent{Type: types.EventPhaseStarted, Phase: 2})

	payload := o.taskInput(in, state)
	payload.Analysis = analysis
	payload.Risk = risk

	kinds := []types.TaskKind{types.TaskPlanStrategy, types.TaskCalculatePricing}
	var reqs []*types.AgentMessage
	dispatched := make([]bool, len(kinds))
	for i, kind := range kinds {
		if _, ok := o.registry.ForKind(kind); !ok {
			continue
		}
		dispatched[i] = true
		reqs = append(reqs, types.NewTaskRequest(orchestratorID, "", kind, payload, types.PriorityHigh, ""))
	}

	results := o.dispatcher.Dispatch(ctx, reqs, state)

	var strategyRes *types.StrategyResult
	var pricingRes *types.PricingResult
	strategyConf, pricingConf := 0.0, 0.0
	ri := 0
	for i, kind := range kinds {
		if !dispatched[i] {
			continue
		}
		res := results[ri]
		ri++
		state.RecordResult(res)
		if !res.IsResult() {
			continue
		}
		switch kind {
		case types.TaskPlanStrategy:
			if s, ok := res.Payload.(*types.StrategyResult); ok {
				strategyRes = s
				strategyConf = res.Confidence
			}
		case types.TaskCalculatePricing:
			if p, ok := res.Payload.(*types.PricingResult); ok {
				pricingRes = p
				pricingConf = res.Confidence
			}
		}
	}

	merged := &types.IntegratedStrategy{
		Approach:   "collaborative",
		Confidence: minFloat(strategyConf, pricingConf),
		Pricing:    pricingRes,
	}
	if strategyRes != nil {
		merged.Approach = strategyRes.Approach
		merged.KeyMessages = strategyRes.KeyMessages
		merged.Tone = strategyRes.Tone
	}
	phaseConf[2] = merged.Confidence

	reasoning := "strategy and pricing merged; confidence is the minimum of the two"
	if strategyRes == nil {
		reasoning = "strategy agent unavailable; default collaborative approach"
	}
	state.AppendDecision(types.DecisionRecord{
		DecisionPoint:     "integrated_strategy",
		OptionsConsidered: strategyOptions(strategyRes),
		SelectedOption:    merged.Approach,
		Reasoning:         reasoning,
		Confidence:        merged.Confidence,
		MadeBy:            orchestratorID,
	})

	o.publish(state, types.OrchestrationEvent{
		Type: types.EventPhaseCompleted, Phase: 2, Confidence: merged.Confidence,
	})
	return merged
}

// runPhase3 asks the communication agent for the primary draft and, when
// it is already good, up to two stylistic variants. Variant generation is
// best-effort and never blocks delivery of the primary draft.
func (o *Orchestrator) runPhase3(ctx context.Context, in Input, state *types.NegotiationState, analysis *types.AnalysisResult, strategy *types.IntegratedStrategy, phaseConf map[int]float64) (string, []string, float64) {
	o.publish(state, types.OrchestrationEvent{Type: types.EventPhaseStarted, Phase: 3})

	payload := o.taskInput(in, state)
	payload.Analysis = analysis
	payload.Strategy = strategy

	if _, ok := o.registry.ForKind(types.TaskGenerateResponse); !ok {
		phaseConf[3] = 0
		return o.fallbackReply(state), nil, 0
	}

	req := types.NewTaskRequest(orchestratorID, "", types.TaskGenerateResponse, payload, types.PriorityCritical, "")
	results := o.dispatcher.Dispatch(ctx, []*types.AgentMessage{req}, state)
	res := results[0]
	state.RecordResult(res)

	draft := ""
	conf := 0.0
	if res.IsResult() {
		if r, ok := res.Payload.(*types.ResponseResult); ok {
			draft = r.Content
			conf = res.Confidence
		}
	}
	if strings.TrimSpace(draft) == "" {
		draft = o.fallbackReply(state)
		conf = 0.1
	}
	phaseConf[3] = conf

	var variants []string
	if conf >= o.goodQuality {
		variants = o.requestVariants(ctx, payload, draft, state)
	}

	o.publish(state, types.OrchestrationEvent{
		Type: types.EventPhaseCompleted, Phase: 3, Confidence: conf,
	})
	return draft, variants, conf
}

func (o *Orchestrator) requestVariants(ctx context.Context, payload *types.TaskInput, draft string, state *types.NegotiationState) []string {
	if _, ok := o.registry.ForKind(types.TaskCreateVariations); !ok {
		return nil
	}
	vp := *payload
	vp.Draft = draft
	req := types.NewTaskRequest(orchestratorID, "", types.TaskCreateVariations, &vp, types.PriorityLow, "")
	results := o.dispatcher.Dispatch(ctx, []*types.AgentMessage{req}, state)
	res := results[0]
	state.RecordResult(res)
	if !res.IsResult() {
		return nil
	}
	if v, ok := res.Payload.(*types.VariationsResult); ok {
		if len(v.Variants) > 2 {
			return v.Variants[:2]
		}
		return v.Variants
	}
	return nil
}

// runPhase4 scores the draft, applies at most one repair and returns the
// final content with its flags.
func (o *Orchestrator) runPhase4(draft string, commConf float64, state *types.NegotiationState) (string, float64, []string, int) {
	o.publish(state, types.OrchestrationEvent{Type: types.EventPhaseStarted, Phase: 4})

	score := o.gate.Score(draft, commConf, state)
	content := draft
	repairs := 0
	var flags []string

	if score < o.gate.AcceptThreshold {
		content = o.gate.Repair(draft, state)
		repairs = 1
		score = o.gate.Score(content, commConf, state)
		if score >= o.gate.RepairThreshold {
			flags = append(flags, FlagImproved)
		}
	}
	if score < o.gate.RepairThreshold {
		flags = append(flags, FlagLowQuality)
	}

	state.AppendDecision(types.DecisionRecord{
		DecisionPoint:  "quality_gate",
		SelectedOption: fmt.Sprintf("score=%.2f repairs=%d", score, repairs),
		Reasoning:      strings.Join(flags, ","),
		Confidence:     score,
		MadeBy:         orchestratorID,
	})

	o.publish(state, types.OrchestrationEvent{
		Type: types.EventPhaseCompleted, Phase: 4, Confidence: score,
	})
	return content, score, flags, repairs
}

// fallbackReply is the canonical templated reply used when no usable
// draft was produced at all.
func (o *Orchestrator) fallbackReply(state *types.NegotiationState) string {
	name := state.CounterpartyInfo.Name
	if name == "" {
		name = "ご担当者"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s様\n\nご連絡ありがとうございます。", name)
	sb.WriteString("いただいた内容を社内で確認のうえ、担当者よりあらためてご連絡いたします。\n")
	sb.WriteString("お待たせしてしまい恐れ入りますが、どうぞよろしくお願いいたします。\n")
	sig := fmt.Sprintf("\n――\n%s", state.CompanyInfo.Name)
	if state.CompanyInfo.SenderName != "" {
		sig += " " + state.CompanyInfo.SenderName
	}
	sb.WriteString(sig)
	return sb.String()
}

func (o *Orchestrator) publish(state *types.NegotiationState, ev types.OrchestrationEvent) {
	if o.events == nil {
		return
	}
	ev.NegotiationID = state.NegotiationID
	ev.ThreadID = state.ThreadID
	if ev.Stage == "" {
		ev.Stage = state.Stage
	}
	ev.Timestamp = time.Now()
	o.events.Publish(ev)
}

// overallConfidence blends the phase confidences, weighting composition
// highest because it is what the caller ships.
func overallConfidence(phase1, phase2, phase3 float64) float64 {
	return types.ClampConfidence(0.25*phase1 + 0.30*phase2 + 0.45*phase3)
}

func strategyOptions(s *types.StrategyResult) []string {
	opts := []string{"collaborative", "address_concerns", "value_justification", "de_escalate", "build_rapport"}
	if s == nil {
		return opts
	}
	for _, o := range opts {
		if o == s.Approach {
			return opts
		}
	}
	return append(opts, s.Approach)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
