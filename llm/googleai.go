package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GoogleAIClient implements Client on top of langchaingo's Google AI model.
type GoogleAIClient struct {
	model llms.Model
}

// NewGoogleAI creates a Gemini-backed completion client.
func NewGoogleAI(ctx context.Context, apiKey, model string) (*GoogleAIClient, error) {
	m, err := googleai.New(
		ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: initialize googleai model: %w", err)
	}
	return &GoogleAIClient{model: m}, nil
}

// Chat implements the Client interface. Gemini has no dedicated system
// role, so system instructions are prepended to the prompt.
func (c *GoogleAIClient) Chat(ctx context.Context, system, user string) (string, error) {
	prompt := user
	if strings.TrimSpace(system) != "" {
		prompt = fmt.Sprintf("%s\n\n%s", system, user)
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
