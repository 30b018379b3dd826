// Package config loads environment and YAML configuration for the
// negotiation engine.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/creator-match/negotiation-multi-agent/types"
)

// EnvConfig holds environment variables. The LLM provider credentials
// are read by the llm package directly and are not surfaced here.
type EnvConfig struct {
	WSPort   int
	LogLevel string
}

// LoadEnv loads environment variables, reading .env when present.
func LoadEnv() (*EnvConfig, error) {
	// Ignore error if .env does not exist
	_ = godotenv.Load()

	cfg := &EnvConfig{
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}
	cfg.WSPort = getEnvInt("WS_PORT", 8085)

	return cfg, nil
}

// WorkingHours is the local-time window in which auto-sends are allowed.
type WorkingHours struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// SafetySettings are the operator-configured auto-send thresholds.
type SafetySettings struct {
	MaxRounds                int          `yaml:"max_rounds"`
	AutoApprovalConfidence   float64      `yaml:"auto_approval_confidence"`
	BudgetFlexibilityPercent float64      `yaml:"budget_flexibility_percent"`
	WorkingHours             WorkingHours `yaml:"working_hours"`
	MaxDailyAutoSends        int          `yaml:"max_daily_auto_sends"`
	AmountCeiling            int64        `yaml:"amount_ceiling"`
	ContentLengthCap         int          `yaml:"content_length_cap"`
}

// OrchestratorSettings tune the pipeline itself.
type OrchestratorSettings struct {
	AgentTimeoutSeconds  int     `yaml:"agent_timeout_seconds"`
	GoodQualityThreshold float64 `yaml:"good_quality_threshold"`
}

// Settings is the operator-facing configuration file.
type Settings struct {
	Company      types.CompanyInfo      `yaml:"company"`
	Counterparty types.CounterpartyInfo `yaml:"counterparty"`
	Constraints  types.Constraints      `yaml:"constraints"`
	Safety       SafetySettings         `yaml:"safety"`
	Orchestrator OrchestratorSettings   `yaml:"orchestrator"`
}

// LoadSettings loads a settings file, expanding ${VAR} references from
// the environment before parsing.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = "configs/settings.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var s Settings
	if err := yaml.Unmarshal([]byte(expanded), &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	s.applyDefaults()

	return &s, nil
}

// DefaultSettings returns settings with every threshold at its default.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

func (s *Settings) applyDefaults() {
	if s.Safety.MaxRounds == 0 {
		s.Safety.MaxRounds = 10
	}
	if s.Safety.AutoApprovalConfidence == 0 {
		s.Safety.AutoApprovalConfidence = 0.75
	}
	if s.Safety.BudgetFlexibilityPercent == 0 {
		s.Safety.BudgetFlexibilityPercent = 10
	}
	if s.Safety.WorkingHours.StartHour == 0 && s.Safety.WorkingHours.EndHour == 0 {
		s.Safety.WorkingHours = WorkingHours{StartHour: 9, EndHour: 18}
	}
	if s.Safety.MaxDailyAutoSends == 0 {
		s.Safety.MaxDailyAutoSends = 20
	}
	if s.Safety.AmountCeiling == 0 {
		s.Safety.AmountCeiling = 1_000_000
	}
	if s.Safety.ContentLengthCap == 0 {
		s.Safety.ContentLengthCap = 4000
	}
	if s.Orchestrator.AgentTimeoutSeconds == 0 {
		s.Orchestrator.AgentTimeoutSeconds = 20
	}
	if s.Orchestrator.GoodQualityThreshold == 0 {
		s.Orchestrator.GoodQualityThreshold = 0.75
	}
	if s.Constraints.Currency == "" {
		s.Constraints.Currency = "JPY"
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
