package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		openaiKey string
		geminiKey string
		expected  string
	}{
		{name: "explicit openai provider", provider: "openai", expected: ProviderOpenAI},
		{name: "explicit provider is lowercased", provider: "Gemini", expected: ProviderGemini},
		{name: "openai key present", openaiKey: "k", expected: ProviderOpenAI},
		{name: "gemini key present", geminiKey: "k", expected: ProviderGemini},
		{name: "openai wins over gemini", openaiKey: "k", geminiKey: "k", expected: ProviderOpenAI},
		{name: "no keys", expected: ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvOpenAIAPIKey, tt.openaiKey)
			t.Setenv(EnvGeminiAPIKey, tt.geminiKey)
			t.Setenv(EnvGoogleAPIKey, "")

			assert.Equal(t, tt.expected, DetectProvider())
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		a, err := New(ctx, Config{Provider: "local"})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, a.Provider())
	})

	t.Run("openai with explicit key", func(t *testing.T) {
		a, err := New(ctx, Config{Provider: "OpenAI", APIKey: "k", Model: "m", CacheSize: 4})
		require.NoError(t, err)
		defer a.Close()
		assert.Equal(t, ProviderOpenAI, a.Provider())
		assert.Equal(t, "m", a.Model())
	})

	t.Run("openai default model", func(t *testing.T) {
		a, err := New(ctx, Config{Provider: "openai", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, DefaultOpenAIModel, a.Model())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(ctx, Config{Provider: "watson"})
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("empty provider detects", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvOpenAIAPIKey, "")
		t.Setenv(EnvGeminiAPIKey, "")
		t.Setenv(EnvGoogleAPIKey, "")
		a, err := New(ctx, Config{})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, a.Provider())
	})
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(EnvProvider, "local")
	a, err := NewFromEnv(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, a.Provider())
}
