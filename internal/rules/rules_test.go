package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-router/internal/apperr"
)

func testRule(name string) Rule {
	return Rule{
		Name: name,
		Model: ModelConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   512,
		},
		Chunking: DefaultChunking(),
	}
}

func TestChunkingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChunkingConfig)
		wantErr bool
	}{
		{"defaults", func(c *ChunkingConfig) {}, false},
		{"zero chunk size", func(c *ChunkingConfig) { c.ChunkSize = 0; c.Overlap = 0 }, true},
		{"negative chunk size", func(c *ChunkingConfig) { c.ChunkSize = -5; c.Overlap = 0 }, true},
		{"negative overlap", func(c *ChunkingConfig) { c.Overlap = -1 }, true},
		{"overlap equals size", func(c *ChunkingConfig) { c.ChunkSize = 10; c.Overlap = 10 }, true},
		{"overlap just below size", func(c *ChunkingConfig) { c.ChunkSize = 10; c.Overlap = 9 }, false},
		{"unknown strategy", func(c *ChunkingConfig) { c.Strategy = "paragraphs" }, true},
		{"unknown aggregation", func(c *ChunkingConfig) { c.Aggregation = "median" }, true},
		{"disabled still validated", func(c *ChunkingConfig) { c.Enabled = false; c.ChunkSize = 0; c.Overlap = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultChunking()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrConfig), "want config error, got %v", err)
		})
	}
}

func TestModelConfigValidate(t *testing.T) {
	ok := testRule("x").Model
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Provider = "mistral"
	assert.True(t, apperr.IsConfig(bad.Validate()))

	bad = ok
	bad.Model = ""
	assert.True(t, apperr.IsConfig(bad.Validate()))

	bad = ok
	bad.Temperature = 3
	assert.True(t, apperr.IsConfig(bad.Validate()))
}

func TestRegistryRegisterResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testRule("summarize")))

	got, err := reg.Resolve("summarize")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.Model.Model)

	_, err = reg.Resolve("missing")
	assert.True(t, errors.Is(err, apperr.ErrRuleNotFound))
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testRule("a")))
	assert.ErrorIs(t, reg.Register(testRule("a")), ErrRuleExists)

	invalid := testRule("b")
	invalid.Chunking.ChunkSize = 0
	invalid.Chunking.Overlap = 0
	assert.True(t, apperr.IsConfig(reg.Register(invalid)))

	_, err := reg.Resolve("b")
	assert.True(t, apperr.IsRuleNotFound(err))
}

func TestRegistryListAndRemove(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Register(testRule(name)))
	}

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].Name, list[1].Name, list[2].Name})

	require.NoError(t, reg.Remove("b"))
	assert.Len(t, reg.List(), 2)
	assert.True(t, apperr.IsRuleNotFound(reg.Remove("b")))
}
