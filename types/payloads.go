package types

// TaskPayload is the closed set of structured payloads carried by agent
// messages. Requests carry a TaskInput; each task kind has its own result
// struct so downstream consumers get field-level guarantees instead of
// digging through untyped maps.
type TaskPayload interface {
	taskPayload()
}

// TaskInput is the request payload assembled by the orchestrator for every
// dispatched task. Later phases carry the folded results of earlier ones.
type TaskInput struct {
	Message      string                `json:"message"`
	History      []ConversationMessage `json:"history,omitempty"`
	Instructions string                `json:"instructions,omitempty"`
	Company      CompanyInfo           `json:"company"`
	Counterparty CounterpartyInfo      `json:"counterparty"`
	Constraints  Constraints           `json:"constraints"`

	// Outputs of earlier phases, nil until produced.
	Context  *ContextResult      `json:"context,omitempty"`
	Analysis *AnalysisResult     `json:"analysis,omitempty"`
	Risk     *RiskResult         `json:"risk,omitempty"`
	Strategy *IntegratedStrategy `json:"strategy,omitempty"`
	Draft    string              `json:"draft,omitempty"`
}

// ContextResult summarizes the conversation so far.
type ContextResult struct {
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points,omitempty"`
	Relationship string   `json:"relationship"`
	FallbackUsed bool     `json:"fallback_used"`
}

// AnalysisResult is the Analysis agent's read of the latest message.
type AnalysisResult struct {
	Intent         string    `json:"intent"`
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore float64   `json:"sentiment_score"`
	Urgency        float64   `json:"urgency"`
	Topics         []string  `json:"topics,omitempty"`
	FallbackUsed   bool      `json:"fallback_used"`
}

// RiskResult is the Risk agent's assessment.
type RiskResult struct {
	Level        RiskLevel `json:"level"`
	Score        float64   `json:"score"`
	Factors      []string  `json:"factors,omitempty"`
	FallbackUsed bool      `json:"fallback_used"`
}

// StrategyResult is the Strategy agent's plan for the next reply.
type StrategyResult struct {
	Approach     string   `json:"approach"`
	KeyMessages  []string `json:"key_messages,omitempty"`
	Tone         string   `json:"tone"`
	FallbackUsed bool     `json:"fallback_used"`
}

// PricingResult is the Pricing agent's recommendation.
type PricingResult struct {
	RecommendedAmount int64  `json:"recommended_amount"`
	FloorAmount       int64  `json:"floor_amount"`
	CeilingAmount     int64  `json:"ceiling_amount"`
	Currency          string `json:"currency"`
	Rationale         string `json:"rationale,omitempty"`
	FallbackUsed      bool   `json:"fallback_used"`
}

// ResponseResult is the Communication agent's drafted reply.
type ResponseResult struct {
	Content      string `json:"content"`
	Tone         string `json:"tone,omitempty"`
	FallbackUsed bool   `json:"fallback_used"`
}

// VariationsResult carries stylistic variants of the primary draft.
type VariationsResult struct {
	Variants     []string `json:"variants"`
	FallbackUsed bool     `json:"fallback_used"`
}

// IntegratedStrategy merges strategy and pricing into one plan. Its
// confidence is the minimum of the two inputs: either missing piece
// invalidates the combined plan.
type IntegratedStrategy struct {
	Approach    string         `json:"approach"`
	KeyMessages []string       `json:"key_messages,omitempty"`
	Tone        string         `json:"tone,omitempty"`
	Pricing     *PricingResult `json:"pricing,omitempty"`
	Confidence  float64        `json:"confidence"`
}

func (TaskInput) taskPayload()        {}
func (ContextResult) taskPayload()    {}
func (AnalysisResult) taskPayload()   {}
func (RiskResult) taskPayload()       {}
func (StrategyResult) taskPayload()   {}
func (PricingResult) taskPayload()    {}
func (ResponseResult) taskPayload()   {}
func (VariationsResult) taskPayload() {}
