// Package llm provides the completion-service clients used by the
// negotiation agents, with sane env defaults. A missing key disables the
// client rather than failing; agents fall back to their deterministic
// policies when no client is available.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var ErrLLMDisabled = errors.New("llm client disabled (missing key)")

// Client is the minimal completion interface the agents consume.
type Client interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// OpenAIClient is an OpenAI-compatible HTTP chat client.
type OpenAIClient struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

type chatReq struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResp struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewFromEnv creates a client from environment configuration.
// LLM_PROVIDER selects the backend: "googleai" (default when
// GOOGLE_API_KEY is set) or "openai" (any OpenAI-compatible endpoint).
// Local endpoints (localhost/127.0.0.1) allow an empty key.
func NewFromEnv(ctx context.Context) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	if provider == "" {
		if os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != "" {
			provider = "googleai"
		} else {
			provider = "openai"
		}
	}

	timeout := 12 * time.Second
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}

	switch provider {
	case "googleai", "gemini":
		key := firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			return nil, ErrLLMDisabled
		}
		model := firstNonEmpty(os.Getenv("LLM_MODEL"), "gemini-1.5-flash")
		return NewGoogleAI(ctx, key, model)

	case "openai":
		base := firstNonEmpty(os.Getenv("LLM_BASE_URL"), "https://api.openai.com/v1")
		key := firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("OPENAI_API_KEY"))
		allowNoKey := strings.EqualFold(os.Getenv("LLM_ALLOW_NO_KEY"), "true") ||
			strings.Contains(base, "localhost") || strings.Contains(base, "127.0.0.1")
		if key == "" && !allowNoKey {
			return nil, ErrLLMDisabled
		}
		model := firstNonEmpty(os.Getenv("LLM_MODEL"), "gpt-4o-mini")
		return &OpenAIClient{
			BaseURL: strings.TrimRight(base, "/"),
			APIKey:  key,
			Model:   model,
			HTTP:    &http.Client{Timeout: timeout},
		}, nil

	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}

// Chat sends a synchronous chat.completions request.
func (c *OpenAIClient) Chat(ctx context.Context, system, user string) (string, error) {
	reqBody := chatReq{
		Model:       c.Model,
		Messages:    []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		MaxTokens:   1024,
		Temperature: 0.7,
	}
	b, _ := json.Marshal(reqBody)

	endpoint := c.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	var out chatResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("llm: decode failed: %w; raw=%s", err, strings.TrimSpace(string(body)))
	}
	if out.Error != nil {
		return "", errors.New(strings.TrimSpace(out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", errors.New("llm: empty choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
