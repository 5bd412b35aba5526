package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 1024
)

// Anthropic calls the Anthropic /v1/messages API.
type Anthropic struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

// NewAnthropic creates an Anthropic caller.
func NewAnthropic(name, url, apiKey string, client *http.Client) *Anthropic {
	if url == "" {
		url = "https://api.anthropic.com"
	}
	return &Anthropic{name: name, url: url, apiKey: apiKey, client: client}
}

type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Call implements Caller.
func (a *Anthropic) Call(ctx context.Context, model, prompt string, opts models.CallOptions) (*models.CallResult, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	req := messagesRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}

	body, err := call(ctx, a.client, a.name, a.url, "/v1/messages", headers, req)
	if err != nil {
		return nil, err
	}

	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(a.name, "decode message: "+err.Error())
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, malformed(a.name, "no text content")
	}

	out := &models.CallResult{Text: text.String()}
	if resp.Usage != nil {
		out.InputTokens = resp.Usage.InputTokens
		out.OutputTokens = resp.Usage.OutputTokens
	}
	return out, nil
}
