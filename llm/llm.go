// Package llm implements the "llm" capability provider the Tool Broker
// dispatches to (spec §4.4): text-in/text-out, abstracting model id and
// request-level parameters. An HTTPProvider talks to an OpenAI-compatible
// chat completions endpoint, trimmed to the non-streaming,
// non-function-calling path this core needs; EchoProvider is the
// deterministic double spec §8's round-trip tests call for.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/tool"
)

// HTTPProvider calls an OpenAI-compatible /chat/completions endpoint.
type HTTPProvider struct {
	name   string
	cfg    config.LLMProviderConfig
	client *http.Client
}

var _ tool.Provider = (*HTTPProvider)(nil)

// NewHTTPProvider builds an HTTPProvider for the named, configured model.
func NewHTTPProvider(name string, cfg config.LLMProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke implements tool.Provider by sending req.Text as a single user
// message and returning the model's text reply.
func (p *HTTPProvider) Invoke(ctx context.Context, req tool.Request) (tool.Response, error) {
	temperature := p.cfg.Temperature
	if t, ok := req.Params["temperature"].(float64); ok {
		temperature = t
	}

	body, err := json.Marshal(chatRequest{
		Model:       p.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Text}},
		Temperature: temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return tool.Response{}, orcherr.New(orcherr.ToolUnavailable, "llm", "Invoke", "marshal request", err)
	}

	url := p.cfg.Host + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return tool.Response{}, orcherr.New(orcherr.ToolUnavailable, "llm", "Invoke", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return tool.Response{}, ctx.Err()
		}
		return tool.Response{}, orcherr.New(orcherr.ToolBusy, "llm", "Invoke", "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return tool.Response{}, orcherr.New(orcherr.ToolUnavailable, "llm", "Invoke", "read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return tool.Response{}, orcherr.New(orcherr.ToolBusy, "llm", "Invoke",
			fmt.Sprintf("transient status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return tool.Response{}, orcherr.New(orcherr.ToolUnavailable, "llm", "Invoke",
			fmt.Sprintf("status %d: %s", resp.StatusCode, raw), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return tool.Response{}, orcherr.New(orcherr.ToolUnavailable, "llm", "Invoke", "decode response", err)
	}
	if parsed.Error != nil {
		return tool.Response{}, orcherr.New(orcherr.ToolUnavailable, "llm", "Invoke", parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return tool.Response{}, orcherr.New(orcherr.ParseFailed, "llm", "Invoke", "empty choices", nil)
	}
	return tool.Response{Text: parsed.Choices[0].Message.Content}, nil
}
