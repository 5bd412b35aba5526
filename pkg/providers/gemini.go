package providers

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// Gemini calls Google's Gemini API through the genai SDK.
type Gemini struct {
	name   string
	client *genai.Client
}

// NewGemini creates a Gemini caller. baseURL overrides the API endpoint when set.
func NewGemini(ctx context.Context, name, baseURL, apiKey string, httpClient *http.Client) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrNotConfigured)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{name: name, client: client}, nil
}

// Call implements Caller.
func (g *Gemini) Call(ctx context.Context, model, prompt string, opts models.CallOptions) (*models.CallResult, error) {
	gc := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.TopP != nil {
		gc.TopP = genai.Ptr(float32(*opts.TopP))
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), gc)
	if err != nil {
		msg := err.Error()
		if ctxErr := ctx.Err(); ctxErr != nil {
			msg = ctxErr.Error()
		}
		return nil, &ProviderError{Provider: g.name, Message: msg, Cause: err}
	}

	text := resp.Text()
	if text == "" {
		return nil, malformed(g.name, "no candidate text")
	}

	out := &models.CallResult{Text: text}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	return out, nil
}
