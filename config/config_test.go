package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	// Save original env
	originalPort := os.Getenv("WS_PORT")
	originalLevel := os.Getenv("LOG_LEVEL")
	defer func() {
		os.Setenv("WS_PORT", originalPort)
		os.Setenv("LOG_LEVEL", originalLevel)
	}()

	os.Setenv("WS_PORT", "9099")
	os.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.WSPort != 9099 {
		t.Errorf("Expected WS port 9099, got %d", cfg.WSPort)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("Expected log level DEBUG, got %q", cfg.LogLevel)
	}
}

func TestLoadSettings_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	originalName := os.Getenv("TEST_COUNTERPARTY_NAME")
	defer os.Setenv("TEST_COUNTERPARTY_NAME", originalName)
	os.Setenv("TEST_COUNTERPARTY_NAME", "Creator Taro")

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := `
company:
  name: "Acme"
  sender_name: "Tanaka"
counterparty:
  name: "${TEST_COUNTERPARTY_NAME}"
  audience_size: 120000
constraints:
  budget_max: 800000
safety:
  auto_approval_confidence: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if s.Counterparty.Name != "Creator Taro" {
		t.Errorf("Expected expanded counterparty name, got %q", s.Counterparty.Name)
	}
	if s.Safety.AutoApprovalConfidence != 0.8 {
		t.Errorf("Expected configured confidence 0.8, got %f", s.Safety.AutoApprovalConfidence)
	}

	// Unset values fall back to defaults.
	if s.Safety.MaxRounds != 10 {
		t.Errorf("Expected default max rounds 10, got %d", s.Safety.MaxRounds)
	}
	if s.Safety.AmountCeiling != 1_000_000 {
		t.Errorf("Expected default amount ceiling 1000000, got %d", s.Safety.AmountCeiling)
	}
	if s.Orchestrator.AgentTimeoutSeconds != 20 {
		t.Errorf("Expected default agent timeout 20s, got %d", s.Orchestrator.AgentTimeoutSeconds)
	}
	if s.Constraints.Currency != "JPY" {
		t.Errorf("Expected default currency JPY, got %q", s.Constraints.Currency)
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Expected error for missing settings file")
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Safety.WorkingHours.StartHour != 9 || s.Safety.WorkingHours.EndHour != 18 {
		t.Errorf("Expected default working hours 9-18, got %d-%d",
			s.Safety.WorkingHours.StartHour, s.Safety.WorkingHours.EndHour)
	}
	if s.Safety.MaxDailyAutoSends != 20 {
		t.Errorf("Expected default daily auto-send cap 20, got %d", s.Safety.MaxDailyAutoSends)
	}
	if s.Orchestrator.GoodQualityThreshold != 0.75 {
		t.Errorf("Expected default good-quality threshold 0.75, got %f", s.Orchestrator.GoodQualityThreshold)
	}
}
