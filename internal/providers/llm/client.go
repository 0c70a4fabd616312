// Package llm is a minimal chat-completions client for the answer model.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vylinhq/vylin/internal/config"
	obsmetrics "github.com/vylinhq/vylin/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxOutputTokens = 800

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the answer text plus usage accounting.
type Completion struct {
	Text  string
	Usage Usage
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	log     *zap.Logger
	http    *http.Client
	metrics *obsmetrics.Metrics

	baseURL string
	apiKey  string
	model   string
}

type ClientParam struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewClient(p ClientParam) *Client {
	return &Client{
		log:     p.Log.Named("llm"),
		http:    &http.Client{Timeout: 60 * time.Second},
		metrics: p.Metrics,
		baseURL: strings.TrimRight(p.Cfg.LLMBaseURL, "/"),
		apiKey:  p.Cfg.LLMAPIKey,
		model:   p.Cfg.LLMModel,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Complete runs one completion with the given system and user prompts.
// An empty prompt short-circuits without a provider call.
func (c *Client) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		return Completion{}, nil
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return Completion{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.record(ctx, "error")
		return Completion{}, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.record(ctx, "error")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Completion{}, fmt.Errorf("llm request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.record(ctx, "error")
		return Completion{}, fmt.Errorf("llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		c.record(ctx, "error")
		return Completion{}, fmt.Errorf("llm response: no choices")
	}

	c.record(ctx, "ok")
	c.log.Debug("completion finished",
		zap.Int("prompt_tokens", parsed.Usage.PromptTokens),
		zap.Int("completion_tokens", parsed.Usage.CompletionTokens),
	)
	return Completion{Text: parsed.Choices[0].Message.Content, Usage: parsed.Usage}, nil
}

func (c *Client) record(ctx context.Context, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(ctx, "llm", outcome)
	}
}
