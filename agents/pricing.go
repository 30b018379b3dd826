package agents

import (
	"context"
	"strconv"

	"github.com/creator-match/negotiation-multi-agent/llm"
	"github.com/creator-match/negotiation-multi-agent/types"
)

// PricingAgent recommends a sponsorship amount from the counterparty
// profile and the operator's budget bounds.
type PricingAgent struct {
	base
}

// NewPricingAgent creates a pricing agent. client may be nil; pricing is
// deliberately deterministic-first and only uses the completion service
// for the rationale text.
func NewPricingAgent(client llm.Client) *PricingAgent {
	return &PricingAgent{base: newBase("pricing-agent", client)}
}

// SupportedTasks implements the Agent interface.
func (a *PricingAgent) SupportedTasks() []types.TaskKind {
	return []types.TaskKind{types.TaskCalculatePricing}
}

// Handle implements the Agent interface.
func (a *PricingAgent) Handle(ctx context.Context, msg *types.AgentMessage, state *types.NegotiationState) *types.AgentMessage {
	return a.handle(ctx, msg, state, a.SupportedTasks(), a.execute)
}

// pricingBand is one audience-size tier of the rate table. Amounts are
// per sponsored video, in JPY.
type pricingBand struct {
	maxAudience int64
	base        int64
}

var pricingBands = []pricingBand{
	{10_000, 30_000},
	{50_000, 80_000},
	{100_000, 150_000},
	{500_000, 400_000},
	{1_000_000, 700_000},
}

const pricingBandCeiling int64 = 1_200_000 // above the largest band

func (a *PricingAgent) execute(ctx context.Context, kind types.TaskKind, in *types.TaskInput, state *types.NegotiationState) (types.TaskPayload, float64, error) {
	base := bandAmount(in.Counterparty.AudienceSize)

	floor := base * 8 / 10
	ceiling := base * 12 / 10

	// Budget bounds win over the rate table.
	if in.Constraints.BudgetMax > 0 && ceiling > in.Constraints.BudgetMax {
		ceiling = in.Constraints.BudgetMax
	}
	if in.Constraints.BudgetMin > 0 && floor < in.Constraints.BudgetMin {
		floor = in.Constraints.BudgetMin
	}
	recommended := base
	if recommended > ceiling {
		recommended = ceiling
	}
	if recommended < floor {
		recommended = floor
	}

	currency := in.Constraints.Currency
	if currency == "" {
		currency = "JPY"
	}

	result := &types.PricingResult{
		RecommendedAmount: recommended,
		FloorAmount:       floor,
		CeilingAmount:     ceiling,
		Currency:          currency,
		Rationale:         "rate table by audience size, clamped to budget bounds",
		FallbackUsed:      true,
	}

	confidence := 0.7
	if raw := a.complete(ctx,
		"You write one short sentence justifying a sponsorship price recommendation. Plain text only.",
		a.rationalePrompt(in, recommended, currency)); raw != "" {
		result.Rationale = raw
		result.FallbackUsed = false
		confidence = 0.8
	}

	return result, confidence, nil
}

func (a *PricingAgent) rationalePrompt(in *types.TaskInput, amount int64, currency string) string {
	return "Creator audience: " + strconv.FormatInt(in.Counterparty.AudienceSize, 10) +
		", category: " + in.Counterparty.Category +
		", recommended amount: " + strconv.FormatInt(amount, 10) + " " + currency
}

func bandAmount(audience int64) int64 {
	for _, b := range pricingBands {
		if audience <= b.maxAudience {
			return b.base
		}
	}
	return pricingBandCeiling
}
