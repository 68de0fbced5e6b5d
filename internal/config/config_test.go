package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-router/internal/rules"
)

func TestLoadDefaults(t *testing.T) {
	// Save original env and restore after test
	originalEnv := os.Environ()
	defer func() {
		os.Clearenv()
		for _, env := range originalEnv {
			for i, c := range env {
				if c == '=' {
					os.Setenv(env[:i], env[i+1:])
					break
				}
			}
		}
	}()

	os.Clearenv()

	cfg := Load()

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"Port", cfg.Port, 8080},
		{"LogLevel", cfg.LogLevel, "info"},
		{"RoutingFile", cfg.RoutingFile, "routing.yaml"},
		{"MaxInFlight", cfg.MaxInFlight, 4},
		{"SequentialDispatch", cfg.SequentialDispatch, false},
		{"ProviderTimeout", cfg.ProviderTimeout, 60 * time.Second},
		{"StoreProvider", cfg.StoreProvider, "none"},
		{"QueueProvider", cfg.QueueProvider, "none"},
		{"CacheProvider", cfg.CacheProvider, "none"},
		{"CacheTTL", cfg.CacheTTL, time.Hour},
		{"MaxBodySize", cfg.MaxBodySize, int64(10485760)},
		{"RequestTimeout", cfg.RequestTimeout, 5 * time.Minute},
		{"HealthPort", cfg.HealthPort, 8081},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s=%v, got %v", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_IN_FLIGHT", "16")
	t.Setenv("SEQUENTIAL_DISPATCH", "true")
	t.Setenv("PROVIDER_TIMEOUT", "15s")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 16, cfg.MaxInFlight)
	assert.True(t, cfg.SequentialDispatch)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "sk-ant", cfg.AnthropicKey)
}

func TestLoadRoutingMissingFile(t *testing.T) {
	cfg, err := LoadRouting("/nonexistent/routing.yaml")
	require.NoError(t, err)

	assert.Equal(t, rules.DefaultChunking(), cfg.Defaults.Chunking)
	assert.NotEmpty(t, cfg.Defaults.PromptTemplate)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "content", cfg.Sources[0].Type)
	assert.Empty(t, cfg.BuildRules())
}

func TestLoadRoutingFile(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://router@localhost/docs")
	path := filepath.Join(t.TempDir(), "routing.yaml")
	content := `
defaults:
  system_prompt: "Answer tersely."
  chunking:
    chunk_size: 2000
    overlap: 100
sources:
  - label: warehouse
    type: postgres
    dsn: ${TEST_PG_DSN}
  - label: docs
    type: file
    base_path: ./data
rules:
  - name: sentiment
    prompt_template: "Label the sentiment of: {text}"
    model_config:
      provider: anthropic
      model: claude-3-haiku-20240307
      temperature: 0
      max_tokens: 16
    chunking_config:
      strategy: semantic
      aggregation: majority_vote
  - name: whole
    model_config:
      provider: openai
      model: gpt-4o
    chunking_config:
      enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadRouting(path)
	require.NoError(t, err)

	assert.Equal(t, "Answer tersely.", cfg.Defaults.SystemPrompt)
	assert.Equal(t, "Evaluate the following text: {text}", cfg.Defaults.PromptTemplate)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "postgres://router@localhost/docs", cfg.Sources[0].DSN)

	built := cfg.BuildRules()
	require.Len(t, built, 2)

	sentiment := built[0]
	assert.Equal(t, rules.ProviderAnthropic, sentiment.Model.Provider)
	assert.Equal(t, rules.StrategySemantic, sentiment.Chunking.Strategy)
	assert.Equal(t, rules.AggregationMajorityVote, sentiment.Chunking.Aggregation)
	assert.Equal(t, 2000, sentiment.Chunking.ChunkSize)
	assert.Equal(t, 100, sentiment.Chunking.Overlap)
	assert.True(t, sentiment.Chunking.Enabled)
	assert.NoError(t, sentiment.Validate())

	whole := built[1]
	assert.False(t, whole.Chunking.Enabled)
	assert.Equal(t, rules.StrategyFixedSize, whole.Chunking.Strategy)
	assert.NoError(t, whole.Validate())
}

func TestLoadRoutingRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rulez: []\n"), 0o600))

	_, err := LoadRouting(path)
	assert.Error(t, err)
}

func TestLoadRoutingEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cfg, err := LoadRouting(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultRouting(), cfg)
}
