// cmd/negotiate/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/creator-match/negotiation-multi-agent/agents"
	"github.com/creator-match/negotiation-multi-agent/config"
	"github.com/creator-match/negotiation-multi-agent/llm"
	"github.com/creator-match/negotiation-multi-agent/logger"
	"github.com/creator-match/negotiation-multi-agent/orchestrator"
	"github.com/creator-match/negotiation-multi-agent/safety"
	"github.com/creator-match/negotiation-multi-agent/types"
	"github.com/creator-match/negotiation-multi-agent/websocket"
)

func main() {
	configPath := flag.String("config", "configs/settings.yaml", "settings file path")
	message := flag.String("message", "", "inbound counterparty message (required)")
	thread := flag.String("thread", "", "thread id; a new negotiation is created when empty")
	statePath := flag.String("state", "", "optional state file to continue and persist the negotiation")
	events := flag.Bool("events", false, "stream orchestration events over websocket")
	wsPort := flag.Int("ws-port", 0, "event stream port (default WS_PORT or 8085)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall run timeout")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *message == "" {
		flag.Usage()
		log.Fatal("[negotiate] -message is required")
	}

	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("[negotiate] env config: %v", err)
	}
	if level, err := logger.ParseLevel(env.LogLevel); err == nil {
		logger.SetDefaultLevel(level)
	}

	settings, err := config.LoadSettings(*configPath)
	if err != nil {
		log.Printf("[negotiate] settings (%s): %v; using defaults", *configPath, err)
		settings = config.DefaultSettings()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := llm.NewFromEnv(ctx)
	if err != nil {
		if !errors.Is(err, llm.ErrLLMDisabled) {
			log.Fatalf("[negotiate] llm client: %v", err)
		}
		log.Print("[negotiate] no LLM credentials, running on deterministic fallbacks")
		client = nil
	}

	registry := orchestrator.NewRegistry()
	for _, agent := range []agents.Agent{
		agents.NewContextAgent(client),
		agents.NewAnalysisAgent(client),
		agents.NewRiskAgent(client),
		agents.NewStrategyAgent(client),
		agents.NewPricingAgent(client),
		agents.NewCommunicationAgent(client),
	} {
		if err := registry.Register(agent); err != nil {
			log.Fatalf("[negotiate] register %s: %v", agent.ID(), err)
		}
	}

	policy := safety.NewPolicy(safety.Config{
		MaxRounds:                settings.Safety.MaxRounds,
		AutoApprovalConfidence:   settings.Safety.AutoApprovalConfidence,
		BudgetFlexibilityPercent: settings.Safety.BudgetFlexibilityPercent,
		WorkingHoursStart:        settings.Safety.WorkingHours.StartHour,
		WorkingHoursEnd:          settings.Safety.WorkingHours.EndHour,
		MaxDailyAutoSends:        settings.Safety.MaxDailyAutoSends,
		AmountCeiling:            settings.Safety.AmountCeiling,
		ContentLengthCap:         settings.Safety.ContentLengthCap,
	})

	opts := []orchestrator.Option{
		orchestrator.WithSafetyPolicy(policy),
		orchestrator.WithAgentTimeout(time.Duration(settings.Orchestrator.AgentTimeoutSeconds) * time.Second),
		orchestrator.WithGoodQualityThreshold(settings.Orchestrator.GoodQualityThreshold),
	}

	if *events {
		port := *wsPort
		if port == 0 {
			port = env.WSPort
		}
		server := websocket.NewEventServer(port)
		if err := server.Start(); err != nil {
			log.Fatalf("[negotiate] event server: %v", err)
		}
		defer server.Stop()
		opts = append(opts, orchestrator.WithEventSink(server))
	}

	in := orchestrator.Input{
		ThreadID:     *thread,
		Message:      *message,
		Company:      settings.Company,
		Counterparty: settings.Counterparty,
		Constraints:  settings.Constraints,
		Instructions: settings.Constraints.Instructions,
	}
	if *statePath != "" {
		if state, err := loadState(*statePath); err == nil {
			in.State = state
		} else if !os.IsNotExist(err) {
			log.Fatalf("[negotiate] state file: %v", err)
		}
	}

	out := orchestrator.New(registry, opts...).Orchestrate(ctx, in)

	if *statePath != "" {
		if err := saveState(*statePath, out); err != nil {
			log.Printf("[negotiate] persist state: %v", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("[negotiate] encode output: %v", err)
	}
}

func loadState(path string) (*types.NegotiationState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state types.NegotiationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &state, nil
}

func saveState(path string, out *orchestrator.Output) error {
	data, err := json.MarshalIndent(out.State, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
