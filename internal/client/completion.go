package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// ProviderHuggingFace is the only supported completion backend: the
	// OpenAI-compatible Hugging Face inference router.
	ProviderHuggingFace = "huggingface"

	DefaultHuggingFaceURL   = "https://router.huggingface.co/v1"
	DefaultHuggingFaceModel = "deepseek-ai/DeepSeek-V3.2-Exp:novita"

	// Generation parameters favour short, schema-conformant output.
	completionTemperature = 0.4
	completionMaxTokens   = 500
)

// CompletionClient turns a prompt into raw generated text.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatCompletionClient implements CompletionClient over an OpenAI-style
// /chat/completions endpoint.
type ChatCompletionClient struct {
	provider string
	apiKey   string
	baseURL  string
	model    string
	upstream *upstream
}

// NewChatCompletionClient returns a client for provider. Unsupported providers
// and an empty apiKey are reported on Complete, before any network call.
func NewChatCompletionClient(provider, apiKey, baseURL, model string, timeout time.Duration, bc BreakerConfig) *ChatCompletionClient {
	if baseURL == "" {
		baseURL = DefaultHuggingFaceURL
	}
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	return &ChatCompletionClient{
		provider: strings.ToLower(strings.TrimSpace(provider)),
		apiKey:   apiKey,
		baseURL:  baseURL,
		model:    model,
		upstream: newUpstream("completion", timeout, bc),
	}
}

// CheckConfigured reports the error Complete would fail with before calling
// out, or nil. Used at startup to warn about a misconfigured backend.
func (c *ChatCompletionClient) CheckConfigured() error {
	if c.provider != ProviderHuggingFace {
		return fmt.Errorf("%w: %q (valid: %s)", ErrUnsupportedProvider, c.provider, ProviderHuggingFace)
	}
	if c.apiKey == "" {
		return notConfigured("LLM_API_KEY")
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the first
// choice's content unmodified.
func (c *ChatCompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.CheckConfigured(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: completionTemperature,
		MaxTokens:   completionMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	body, err := c.upstream.do(ctx, req)
	if err != nil {
		return "", err
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", c.upstream.malformed(err)
	}
	if len(cr.Choices) == 0 {
		return "", &UpstreamError{Provider: c.upstream.provider, Err: ErrEmptyCompletion}
	}
	return cr.Choices[0].Message.Content, nil
}

func (c *ChatCompletionClient) endpoint() string {
	base := strings.TrimSuffix(c.baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}
