package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/creator-match/negotiation-multi-agent/llm"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// CommunicationAgent drafts the outgoing reply and, on request, stylistic
// variants of it.
type CommunicationAgent struct {
	base
}

// NewCommunicationAgent creates a communication agent. client may be nil.
func NewCommunicationAgent(client llm.Client) *CommunicationAgent {
	return &CommunicationAgent{base: newBase("communication-agent", client)}
}

// SupportedTasks implements the Agent interface.
func (a *CommunicationAgent) SupportedTasks() []types.TaskKind {
	return []types.TaskKind{types.TaskGenerateResponse, types.TaskCreateVariations}
}

// Handle implements the Agent interface.
func (a *CommunicationAgent) Handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	return a.handle(ctx, msg, state, a.SupportedTasks(), a.execute)
}

func (a *CommunicationAgent) execute(ctx context.Context, kind types.TaskKind, in *types.TaskInput, state *types.NegotiationState) (types.TaskPayload, float64, error) {
	switch kind {
	case types.TaskGenerateResponse:
		return a.generateResponse(ctx, in, state)
	case types.TaskCreateVariations:
		return a.createVariations(ctx, in)
	default:
		return nil, 0, types.NewUnsupportedTaskError(a.id, kind)
	}
}

const responseSystemPrompt = "You draft a reply email from a company to a video creator in an ongoing " +
	"sponsorship negotiation. Write only the email body, in the language of the creator's message. " +
	"Keep it courteous and concrete, and end with a signature."

func (a *CommunicationAgent) generateResponse(ctx context.Context, in *types.TaskInput, state *types.NegotiationState) (types.TaskPayload, float64, error) {
	draft := a.templateReply(in, state)
	confidence := 0.6
	fallback := true

	if raw := a.complete(ctx, responseSystemPrompt, a.responsePrompt(in, state)); raw != "" {
		draft = EnsureSignature(raw, in.Company)
		confidence = 0.85
		fallback = false
	}

	return &types.ResponseResult{
		Content:      draft,
		Tone:         toneOf(in),
		FallbackUsed: fallback,
	}, confidence, nil
}

func (a *CommunicationAgent) createVariations(ctx context.Context, in *types.TaskInput) (types.TaskPayload, float64, error) {
	if strings.TrimSpace(in.Draft) == "" {
		return nil, 0, types.NewTaskError(types.ErrCodeAgentTask, types.TaskCreateVariations,
			"no draft supplied for variation", nil)
	}

	variants := []string{
		condense(in.Draft),
		formalize(in.Draft),
	}
	confidence := 0.6
	fallback := true

	if raw := a.complete(ctx,
		"Rewrite the given email once, more concisely, keeping the meaning and the signature. Output only the rewritten email.",
		in.Draft); raw != "" {
		variants[0] = raw
		confidence = 0.8
		fallback = false
	}

	return &types.VariationsResult{Variants: variants, FallbackUsed: fallback}, confidence, nil
}

func (a *CommunicationAgent) responsePrompt(in *types.TaskInput, state *types.NegotiationState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s (%s), sender: %s\n", in.Company.Name, in.Company.ProductName, in.Company.SenderName)
	fmt.Fprintf(&sb, "Creator: %s\n", in.Counterparty.Name)
	fmt.Fprintf(&sb, "Stage: %s\n", state.Stage)
	if in.Strategy != nil {
		fmt.Fprintf(&sb, "Approach: %s, tone: %s\n", in.Strategy.Approach, in.Strategy.Tone)
		for _, m := range in.Strategy.KeyMessages {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
		if in.Strategy.Pricing != nil {
			fmt.Fprintf(&sb, "Price to offer: %d %s\n",
				in.Strategy.Pricing.RecommendedAmount, in.Strategy.Pricing.Currency)
		}
	}
	fmt.Fprintf(&sb, "Creator's latest message:\n%s\n", in.Message)
	return sb.String()
}

// templateReply is the deterministic composition path.
func (a *CommunicationAgent) templateReply(in *types.TaskInput, state *types.NegotiationState) string {
	var sb strings.Builder

	name := in.Counterparty.Name
	if name == "" {
		name = "ご担当者"
	}
	fmt.Fprintf(&sb, "%s様\n\n", name)
	fmt.Fprintf(&sb, "ご連絡ありがとうございます。%sの%sです。\n\n", in.Company.Name, in.Company.SenderName)

	if in.Strategy != nil {
		for _, m := range in.Strategy.KeyMessages {
			fmt.Fprintf(&sb, "%s。\n", strings.TrimRight(m, "。."))
		}
		if in.Strategy.Pricing != nil && priceStage(state.Stage) {
			fmt.Fprintf(&sb, "\nご提案金額としては %d %s を想定しております。ご意見をお聞かせください。\n",
				in.Strategy.Pricing.RecommendedAmount, in.Strategy.Pricing.Currency)
		}
	} else {
		sb.WriteString("いただいた内容を社内で確認のうえ、あらためてご連絡いたします。\n")
	}

	sb.WriteString("\n引き続きどうぞよろしくお願いいたします。\n")
	return EnsureSignature(sb.String(), in.Company)
}

// EnsureSignature appends the company signature block when the draft does
// not already end with one.
func EnsureSignature(draft string, company types.CompanyInfo) string {
	trimmed := strings.TrimRight(draft, "\n ")
	tail := trimmed
	if len([]rune(tail)) > 200 {
		r := []rune(tail)
		tail = string(r[len(r)-200:])
	}
	if company.Name != "" && strings.Contains(tail, company.Name) {
		return trimmed + "\n"
	}
	sig := fmt.Sprintf("\n\n――\n%s", company.Name)
	if company.SenderName != "" {
		sig += " " + company.SenderName
	}
	return trimmed + sig + "\n"
}

func priceStage(s types.Stage) bool {
	switch s {
	case types.StagePriceNegotiation, types.StageProposalPresentation, types.StageProposalPreparation, types.StageTermsAdjustment:
		return true
	}
	return false
}

func toneOf(in *types.TaskInput) string {
	if in.Strategy != nil && in.Strategy.Tone != "" {
		return in.Strategy.Tone
	}
	return "friendly_professional"
}

// condense keeps the first sentence of each paragraph.
func condense(draft string) string {
	paragraphs := strings.Split(draft, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i := strings.IndexAny(p, "。."); i >= 0 {
			_, size := utf8.DecodeRuneInString(p[i:])
			p = p[:i+size]
		}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

// formalize swaps casual closings for formal ones.
func formalize(draft string) string {
	replacer := strings.NewReplacer(
		"よろしくお願いします", "何卒よろしくお願い申し上げます",
		"ありがとうございます", "誠にありがとうございます",
		"Thanks", "Thank you very much",
		"Best,", "Sincerely,",
	)
	return replacer.Replace(draft)
}
