// Package assistant generates replies to incoming messages. A rule
// layer answers known questions directly; everything else goes to the
// configured LLM provider, with canned fallbacks when no provider is
// available or the API call fails.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ConversationEntry is one turn of a conversation.
type ConversationEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Platform  string    `json:"platform,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LLMConfig configures the LLM client.
type LLMConfig struct {
	// BaseURL selects the provider; the API dialect is detected from
	// it. Empty means the OpenAI API.
	BaseURL string

	// Model is the model identifier.
	Model string

	// APIKey authenticates requests.
	APIKey string

	// MaxTokens bounds the reply length.
	MaxTokens int

	// Temperature for sampling.
	Temperature float64
}

// LLMClient talks to an OpenAI- or Anthropic-style chat API.
type LLMClient struct {
	cfg      LLMConfig
	provider string
	client   *http.Client
	logger   *slog.Logger
}

// NewLLMClient creates a client for the configured provider.
func NewLLMClient(cfg LLMConfig, logger *slog.Logger) *LLMClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	return &LLMClient{
		cfg:      cfg,
		provider: detectProvider(cfg.BaseURL),
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger.With("component", "llm"),
	}
}

// detectProvider infers the API dialect from the base URL.
func detectProvider(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "anthropic.com"):
		return "anthropic"
	case strings.Contains(baseURL, "openai.com"):
		return "openai"
	case strings.Contains(baseURL, "localhost:11434"), strings.Contains(baseURL, "ollama"):
		return "ollama"
	default:
		return "openai" // assume OpenAI-compatible
	}
}

// Provider returns the detected provider name.
func (c *LLMClient) Provider() string { return c.provider }

// Available reports whether the client has credentials to work with.
// Local providers need no key.
func (c *LLMClient) Available() bool {
	return c.cfg.APIKey != "" || c.provider == "ollama"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends the conversation to the provider and returns the
// assistant's reply.
func (c *LLMClient) Complete(ctx context.Context, systemPrompt string, history []ConversationEntry, userMessage string) (string, error) {
	if c.provider == "anthropic" {
		return c.completeAnthropic(ctx, systemPrompt, history, userMessage)
	}
	return c.completeOpenAI(ctx, systemPrompt, history, userMessage)
}

func (c *LLMClient) completeOpenAI(ctx context.Context, systemPrompt string, history []ConversationEntry, userMessage string) (string, error) {
	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	for _, entry := range history {
		messages = append(messages, chatMessage{Role: entry.Role, Content: entry.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userMessage})

	body := map[string]any{
		"model":       c.cfg.Model,
		"messages":    messages,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, c.cfg.BaseURL+"/chat/completions", body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *LLMClient) completeAnthropic(ctx context.Context, systemPrompt string, history []ConversationEntry, userMessage string) (string, error) {
	var messages []chatMessage
	for _, entry := range history {
		messages = append(messages, chatMessage{Role: entry.Role, Content: entry.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userMessage})

	body := map[string]any{
		"model":      c.cfg.Model,
		"system":     systemPrompt,
		"messages":   messages,
		"max_tokens": c.cfg.MaxTokens,
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.post(ctx, c.cfg.BaseURL+"/v1/messages", body, &result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(result.Content[0].Text), nil
}

func (c *LLMClient) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.provider == "anthropic" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	} else if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", c.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s API status %d: %s", c.provider, resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
