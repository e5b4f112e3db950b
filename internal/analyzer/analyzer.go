package analyzer

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/llmdiag/internal/fingerprint"
)

// Common errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderFailed      = errors.New("analysis provider failed")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrNoProviderEnabled   = errors.New("no analysis provider configured")
	ErrNoModels            = errors.New("no models available")
)

// Request asks for one document to be analyzed
type Request struct {
	Text     string
	FileName string // base name shown to the model
	Model    string // Optional: override default model
}

// Analyzer sends a document to a language model and returns its raw answer.
// The answer is untrusted and must go through the validator.
type Analyzer interface {
	// Analyze renders the prompt for req and returns the model's reply
	Analyze(ctx context.Context, req Request) (string, error)

	// Provider returns the provider name
	Provider() string

	// Model returns the default model name
	Model() string

	// Close releases any resources held by the analyzer
	Close() error
}

// ModelLister is implemented by analyzers that can enumerate their models
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Cache provides in-memory LRU caching of model replies by prompt
type Cache struct {
	cache *lru.Cache[uint64, string]
}

// NewCache creates a new reply cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 256
	}
	cache, err := lru.New[uint64, string](maxLen)
	if err != nil {
		cache, _ = lru.New[uint64, string](256)
	}
	return &Cache{cache: cache}
}

// Get returns the cached reply for key
func (c *Cache) Get(key uint64) (string, bool) {
	return c.cache.Get(key)
}

// Set stores a reply with automatic LRU eviction
func (c *Cache) Set(key uint64, reply string) {
	c.cache.Add(key, reply)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// CacheKey identifies a reply by everything that determines it
func CacheKey(provider, model, prompt string) uint64 {
	return fingerprint.CacheKey(provider, model, prompt)
}

// ValidateRequest validates an analysis request
func ValidateRequest(req Request) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	if req.FileName == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	return nil
}

// SelectModel picks configured if available lists it, otherwise the first
// available model. fallback reports that the configured model was not used.
func SelectModel(configured string, available []string) (model string, fallback bool, err error) {
	if len(available) == 0 {
		return "", false, ErrNoModels
	}
	if configured != "" {
		for _, m := range available {
			if m == configured {
				return m, false, nil
			}
		}
	}
	return available[0], true, nil
}

// base holds what every remote provider shares: prompt rendering, reply
// caching and retries around a single call.
type base struct {
	provider string
	model    string
	template *Template
	cache    *Cache
	retry    RetryConfig
}

func (b *base) Provider() string { return b.provider }

func (b *base) Model() string { return b.model }

// run validates req, renders the prompt and calls call with retries.
// Successful replies are cached.
func (b *base) run(ctx context.Context, req Request, call func(ctx context.Context, model, prompt string) (string, error)) (string, error) {
	if err := ValidateRequest(req); err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = b.model
	}
	prompt := b.template.Render(req.Text, req.FileName)

	key := CacheKey(b.provider, model, prompt)
	if b.cache != nil {
		if reply, ok := b.cache.Get(key); ok {
			return reply, nil
		}
	}

	reply, err := retryWithBackoff(ctx, b.retry, func() (string, error) {
		return call(ctx, model, prompt)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, b.retry.MaxRetries, err)
	}

	if b.cache != nil {
		b.cache.Set(key, reply)
	}
	return reply, nil
}
