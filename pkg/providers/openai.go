package providers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// OpenAI calls an OpenAI-compatible /v1/chat/completions endpoint.
// Groq exposes the same API under https://api.groq.com/openai.
type OpenAI struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

// NewOpenAI creates an OpenAI-compatible caller.
func NewOpenAI(name, url, apiKey string, client *http.Client) *OpenAI {
	if url == "" {
		url = "https://api.openai.com"
	}
	return &OpenAI{name: name, url: url, apiKey: apiKey, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Call implements Caller.
func (o *OpenAI) Call(ctx context.Context, model, prompt string, opts models.CallOptions) (*models.CallResult, error) {
	req := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	body, err := call(ctx, o.client, o.name, o.url, "/v1/chat/completions", headers, req)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(o.name, "decode chat completion: "+err.Error())
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, malformed(o.name, "no completion text")
	}

	out := &models.CallResult{Text: resp.Choices[0].Message.Content}
	if resp.Usage != nil {
		out.InputTokens = resp.Usage.PromptTokens
		out.OutputTokens = resp.Usage.CompletionTokens
	}
	return out, nil
}
