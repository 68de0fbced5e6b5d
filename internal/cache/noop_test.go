package cache

import (
	"context"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-router/internal/router"
	"llm-router/internal/rules"
)

// TestNoOpCache verifies that NoOpCache always misses and never fails
func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()
	ctx := context.Background()

	result, err := cache.GetResponse(ctx, "test-key")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result (cache miss), got %v", result)
	}

	err = cache.SetResponse(ctx, "test-key", &router.Response{Result: "cached"}, 1*time.Hour)
	if err != nil {
		t.Errorf("Expected no error on SetResponse, got %v", err)
	}

	result, err = cache.GetResponse(ctx, "test-key")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result (no-op cache doesn't store), got %v", result)
	}

	if err := cache.InvalidateRule(ctx, "summarize"); err != nil {
		t.Errorf("Expected no error on InvalidateRule, got %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Errorf("Expected no error on Close, got %v", err)
	}
}

func testRule(name string) rules.Rule {
	return rules.Rule{
		Name:     name,
		Model:    rules.ModelConfig{Provider: rules.ProviderOpenAI, Model: "gpt-4o-mini"},
		Chunking: rules.DefaultChunking(),
	}
}

func TestKey(t *testing.T) {
	summarize := testRule("summarize")
	k := Key(summarize, "docs", "report.pdf")

	assert.True(t, strings.HasPrefix(k, "summarize:"))
	assert.Len(t, strings.TrimPrefix(k, "summarize:"), 64)
	assert.Equal(t, k, Key(summarize, "docs", "report.pdf"))
	assert.NotEqual(t, k, Key(testRule("classify"), "docs", "report.pdf"))
	assert.NotEqual(t, k, Key(summarize, "docs", "other.pdf"))
	// The separator keeps label and query from bleeding into each other.
	assert.NotEqual(t, Key(summarize, "ab", "c"), Key(summarize, "a", "bc"))

	changed := summarize
	changed.Model.Model = "gpt-4o"
	assert.NotEqual(t, k, Key(changed, "docs", "report.pdf"))
}

func TestKeyPattern(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		key     string
		matches bool
	}{
		{"own entry", "a", Key(testRule("a"), "docs", "q"), true},
		{"longer name with colon", "a", Key(testRule("a:b"), "docs", "q"), false},
		{"longer name", "a", Key(testRule("ab"), "docs", "q"), false},
		{"star is literal", "*", Key(testRule("summarize"), "docs", "q"), false},
		{"star own entry", "*", Key(testRule("*"), "docs", "q"), true},
		{"question mark is literal", "?", Key(testRule("x"), "docs", "q"), false},
		{"brackets are literal", "[ab]", Key(testRule("a"), "docs", "q"), false},
		{"brackets own entry", "[ab]", Key(testRule("[ab]"), "docs", "q"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := path.Match(keyPattern(tt.rule), cacheKeyPrefix+tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, ok)
		})
	}
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache("127.0.0.1:1", "")
	assert.Error(t, err)
}
