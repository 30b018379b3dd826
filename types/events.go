package types

import "time"

// Event types published by the orchestrator over the event stream.
const (
	EventPhaseStarted   = "phase_started"
	EventPhaseCompleted = "phase_completed"
	EventAgentResult    = "agent_result"
	EventStageChanged   = "stage_changed"
	EventRunCompleted   = "run_completed"
	EventSafetyDecision = "safety_decision"
)

// OrchestrationEvent is one observable step of an orchestration run,
// broadcast to dashboard clients.
type OrchestrationEvent struct {
	Type          string      `json:"type"`
	NegotiationID string      `json:"negotiation_id"`
	ThreadID      string      `json:"thread_id"`
	Phase         int         `json:"phase,omitempty"`
	Stage         Stage       `json:"stage,omitempty"`
	AgentID       string      `json:"agent_id,omitempty"`
	Detail        string      `json:"detail,omitempty"`
	Confidence    float64     `json:"confidence,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}
