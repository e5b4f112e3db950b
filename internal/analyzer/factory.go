package analyzer

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Config holds analyzer configuration
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	CacheSize int // 0 disables the reply cache
	Template  *Template
	Retry     *RetryConfig
}

// NewFromEnv creates an analyzer based on environment variables
// Priority:
// 1. LLMDIAG_PROVIDER (openai, gemini, local)
// 2. Check for API keys: OPENAI_API_KEY, GEMINI_API_KEY / GOOGLE_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv(ctx context.Context, tmpl *Template) (Analyzer, error) {
	return New(ctx, Config{
		Provider:  DetectProvider(),
		CacheSize: DefaultCacheSize,
		Template:  tmpl,
	})
}

// New creates an analyzer with explicit configuration
func New(ctx context.Context, cfg Config) (Analyzer, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Template: cfg.Template,
			Cache:    cache,
			Retry:    cfg.Retry,
		})
	case ProviderGemini:
		return NewGeminiProvider(ctx, GeminiOptions{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Template: cfg.Template,
			Cache:    cache,
			Retry:    cfg.Retry,
		})
	case ProviderLocal:
		return NewLocalProvider()
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvGeminiAPIKey) != "" || os.Getenv(EnvGoogleAPIKey) != "" {
		return ProviderGemini
	}

	return ProviderLocal
}
