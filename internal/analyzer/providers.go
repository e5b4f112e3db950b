package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"

	// Default models
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	LocalModel         = "local-noop"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// Environment
	EnvProvider      = "LLMDIAG_PROVIDER"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvGoogleAPIKey  = "GOOGLE_API_KEY"

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 200
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	DefaultCacheSize = 256
	requestTimeout   = 120 * time.Second
)

// OpenAIProvider implements Analyzer using an OpenAI-compatible chat
// completions endpoint
type OpenAIProvider struct {
	base
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// OpenAIOptions configures NewOpenAIProvider. Zero values fall back to defaults.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Template   *Template
	Cache      *Cache
	Retry      *RetryConfig
	HTTPClient *http.Client
}

// NewOpenAIProvider creates a new OpenAI analyzer
func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv(EnvOpenAIBaseURL)
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	return &OpenAIProvider{
		base:       newBase(ProviderOpenAI, opts.Model, DefaultOpenAIModel, opts.Template, opts.Cache, opts.Retry),
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}, nil
}

func newBase(provider, model, defaultModel string, tmpl *Template, cache *Cache, retry *RetryConfig) base {
	if model == "" {
		model = defaultModel
	}
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	rc := DefaultRetryConfig()
	if retry != nil {
		rc = *retry
	}
	return base{provider: provider, model: model, template: tmpl, cache: cache, retry: rc}
}

// Analyze implements Analyzer
func (o *OpenAIProvider) Analyze(ctx context.Context, req Request) (string, error) {
	return o.run(ctx, req, o.callAPI)
}

func (o *OpenAIProvider) callAPI(ctx context.Context, model, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		// 4xx other than rate limiting will not improve on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", permanent(apiErr)
		}
		return "", apiErr
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrProviderFailed)
	}

	return apiResp.Choices[0].Message.Content, nil
}

// ListModels implements ModelLister
func (o *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	models := make([]string, 0, len(apiResp.Data))
	for _, m := range apiResp.Data {
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return models, nil
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider never contacts a model and reports no issues. It keeps the
// pipeline usable offline.
type LocalProvider struct{}

// NewLocalProvider creates a new local analyzer
func NewLocalProvider() (*LocalProvider, error) {
	return &LocalProvider{}, nil
}

// Analyze implements Analyzer
func (l *LocalProvider) Analyze(ctx context.Context, req Request) (string, error) {
	if err := ValidateRequest(req); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "[]", nil
}

// ListModels implements ModelLister
func (l *LocalProvider) ListModels(context.Context) ([]string, error) {
	return []string{LocalModel}, nil
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return LocalModel
}

func (l *LocalProvider) Close() error {
	return nil
}
