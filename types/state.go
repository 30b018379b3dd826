package types

import (
	"time"

	"github.com/google/uuid"
)

// Stage is the current point in the negotiation state machine.
type Stage string

const (
	StageInitialContact         Stage = "initial_contact"
	StageInterestDiscovery      Stage = "interest_discovery"
	StageRapportBuilding        Stage = "rapport_building"
	StageRequirementGathering   Stage = "requirement_gathering"
	StageCapabilityPresentation Stage = "capability_presentation"
	StageMutualEvaluation       Stage = "mutual_evaluation"
	StageProposalPreparation    Stage = "proposal_preparation"
	StageProposalPresentation   Stage = "proposal_presentation"
	StageClarification          Stage = "clarification"
	StageNegotiationActive      Stage = "negotiation_active"
	StagePriceNegotiation       Stage = "price_negotiation"
	StageTermsAdjustment        Stage = "terms_adjustment"
	StageFinalAdjustment        Stage = "final_adjustment"
	StageDecisionPending        Stage = "decision_pending"
	StageContractPreparation    Stage = "contract_preparation"
	StageDealClosed             Stage = "deal_closed"

	// Side branches, reachable from any active stage.
	StageStalled              Stage = "stalled"
	StageObjectionHandling    Stage = "objection_handling"
	StageCompetitorComparison Stage = "competitor_comparison"

	// Terminal failure stages. No automatic transition out.
	StageLost      Stage = "lost"
	StageWithdrawn Stage = "withdrawn"
)

// Terminal reports whether the stage ends the negotiation.
func (s Stage) Terminal() bool {
	return s == StageDealClosed || s == StageLost || s == StageWithdrawn
}

// Sentiment classifies the counterparty's tone.
type Sentiment string

const (
	SentimentVeryPositive Sentiment = "very_positive"
	SentimentPositive     Sentiment = "positive"
	SentimentNeutral      Sentiment = "neutral"
	SentimentNegative     Sentiment = "negative"
	SentimentVeryNegative Sentiment = "very_negative"
	SentimentHostile      Sentiment = "hostile"
)

// RiskLevel classifies the overall negotiation risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ConversationMessage is one prior message in the thread.
type ConversationMessage struct {
	Role      string    `json:"role"` // "company" or "counterparty"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CompanyInfo describes the company side of the negotiation.
type CompanyInfo struct {
	Name        string `yaml:"name" json:"name"`
	SenderName  string `yaml:"sender_name" json:"sender_name"`
	ProductName string `yaml:"product_name" json:"product_name"`
	ContactURL  string `yaml:"contact_url" json:"contact_url,omitempty"`
}

// CounterpartyInfo describes the creator being negotiated with.
type CounterpartyInfo struct {
	Name         string `yaml:"name" json:"name"`
	ChannelName  string `yaml:"channel_name" json:"channel_name,omitempty"`
	AudienceSize int64  `yaml:"audience_size" json:"audience_size"`
	Category     string `yaml:"category" json:"category,omitempty"`
	Email        string `yaml:"email" json:"email,omitempty"`
}

// Constraints carries operator instructions and budget bounds.
type Constraints struct {
	Instructions string `yaml:"instructions" json:"instructions,omitempty"`
	BudgetMin    int64  `yaml:"budget_min" json:"budget_min"`
	BudgetMax    int64  `yaml:"budget_max" json:"budget_max"`
	Currency     string `yaml:"currency" json:"currency"`
}

// MemoryEntry is one append-only entry in the context memory scratchpad.
type MemoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Value     string    `json:"value"`
}

// DecisionRecord captures one decision made during orchestration.
// Append-only, used for audit.
type DecisionRecord struct {
	DecisionID        string    `json:"decision_id"`
	DecisionPoint     string    `json:"decision_point"`
	OptionsConsidered []string  `json:"options_considered,omitempty"`
	SelectedOption    string    `json:"selected_option"`
	Reasoning         string    `json:"reasoning,omitempty"`
	Confidence        float64   `json:"confidence"`
	Timestamp         time.Time `json:"timestamp"`
	MadeBy            string    `json:"made_by"`
}

// AgentPerformance is a per-task snapshot used to compute rolling
// success rates and latency averages.
type AgentPerformance struct {
	AgentID    string    `json:"agent_id"`
	TaskKind   TaskKind  `json:"task_kind"`
	Confidence float64   `json:"confidence"`
	LatencyMs  int64     `json:"latency_ms"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
}

// NegotiationMetrics holds counters and running averages for a thread.
type NegotiationMetrics struct {
	ExchangeCount    int     `json:"exchange_count"`
	RoundNumber      int     `json:"round_number"`
	AutoSendsToday   int     `json:"auto_sends_today"`
	AutoSendDate     string  `json:"auto_send_date,omitempty"`
	CompletedRuns    int     `json:"completed_runs"`
	LastQualityScore float64 `json:"last_quality_score"`
	AvgQualityScore  float64 `json:"avg_quality_score"`
	AvgConfidence    float64 `json:"avg_confidence"`
}

// NegotiationState is the mutable record of one negotiation thread.
// It is created at the start of an orchestration run and mutated only by
// the orchestrator; agents return results, which the orchestrator folds in.
type NegotiationState struct {
	NegotiationID string    `json:"negotiation_id"`
	ThreadID      string    `json:"thread_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Stage     Stage     `json:"stage"`
	Sentiment Sentiment `json:"sentiment"`
	RiskLevel RiskLevel `json:"risk_level"`

	CompanyInfo      CompanyInfo      `json:"company_info"`
	CounterpartyInfo CounterpartyInfo `json:"counterparty_info"`
	Constraints      Constraints      `json:"constraints"`

	ContextMemory       map[string][]MemoryEntry `json:"context_memory"`
	ConversationHistory []ConversationMessage    `json:"conversation_history"`
	AgentResults        map[string]*AgentMessage `json:"agent_results"`
	PerformanceHistory  []AgentPerformance       `json:"performance_history"`
	DecisionHistory     []DecisionRecord         `json:"decision_history"`
	Metrics             NegotiationMetrics       `json:"metrics"`
}

// NewNegotiationState creates the state record for a thread.
func NewNegotiationState(threadID string) *NegotiationState {
	now := time.Now()
	return &NegotiationState{
		NegotiationID: uuid.New().String(),
		ThreadID:      threadID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Stage:         StageInitialContact,
		Sentiment:     SentimentNeutral,
		RiskLevel:     RiskLow,
		ContextMemory: make(map[string][]MemoryEntry),
		AgentResults:  make(map[string]*AgentMessage),
	}
}

// AppendMemory appends an entry to a context memory log.
func (s *NegotiationState) AppendMemory(key, value string) {
	if s.ContextMemory == nil {
		s.ContextMemory = make(map[string][]MemoryEntry)
	}
	s.ContextMemory[key] = append(s.ContextMemory[key], MemoryEntry{
		Timestamp: time.Now(),
		Value:     value,
	})
}

// RecordResult stores an agent's latest result and its performance snapshot.
func (s *NegotiationState) RecordResult(msg *AgentMessage) {
	if msg == nil {
		return
	}
	if s.AgentResults == nil {
		s.AgentResults = make(map[string]*AgentMessage)
	}
	s.AgentResults[msg.SenderID] = msg
	s.PerformanceHistory = append(s.PerformanceHistory, AgentPerformance{
		AgentID:    msg.SenderID,
		TaskKind:   msg.TaskKind,
		Confidence: msg.Confidence,
		LatencyMs:  msg.LatencyMs,
		Success:    msg.IsResult(),
		Timestamp:  msg.Timestamp,
	})
}

// AppendDecision appends a decision record.
func (s *NegotiationState) AppendDecision(rec DecisionRecord) {
	if rec.DecisionID == "" {
		rec.DecisionID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.DecisionHistory = append(s.DecisionHistory, rec)
}

// LatestCounterpartyMessage returns the newest counterparty message text.
func (s *NegotiationState) LatestCounterpartyMessage() string {
	for i := len(s.ConversationHistory) - 1; i >= 0; i-- {
		if s.ConversationHistory[i].Role == "counterparty" {
			return s.ConversationHistory[i].Content
		}
	}
	return ""
}
