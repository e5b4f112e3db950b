package analyzer

import (
	"context"
	"fmt"
	"os"

	genai "google.golang.org/genai"
)

// GeminiProvider implements Analyzer using the Gemini API
type GeminiProvider struct {
	base
	cli *genai.Client
}

// GeminiOptions configures NewGeminiProvider. Zero values fall back to defaults.
type GeminiOptions struct {
	APIKey   string
	BaseURL  string // overrides the API endpoint, mainly for tests
	Model    string
	Template *Template
	Cache    *Cache
	Retry    *RetryConfig
}

// NewGeminiProvider creates a new Gemini analyzer
func NewGeminiProvider(ctx context.Context, opts GeminiOptions) (*GeminiProvider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvGeminiAPIKey)
	}
	if apiKey == "" {
		apiKey = os.Getenv(EnvGoogleAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvGeminiAPIKey)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		base: newBase(ProviderGemini, opts.Model, DefaultGeminiModel, opts.Template, opts.Cache, opts.Retry),
		cli:  cli,
	}, nil
}

// Analyze implements Analyzer
func (g *GeminiProvider) Analyze(ctx context.Context, req Request) (string, error) {
	return g.run(ctx, req, g.callAPI)
}

func (g *GeminiProvider) callAPI(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidate list", ErrProviderFailed)
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (g *GeminiProvider) Close() error {
	return nil
}
