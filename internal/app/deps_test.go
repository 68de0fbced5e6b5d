package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-router/internal/cache"
	"llm-router/internal/config"
	"llm-router/internal/datasource"
	"llm-router/internal/dispatcher"
	"llm-router/internal/queue"
	"llm-router/internal/rules"
	"llm-router/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestBuildWith(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0o600))

	routing := config.DefaultRouting()
	routing.Sources = append(routing.Sources, config.SourceSpec{Label: "docs", Type: "file", BasePath: dir})
	routing.Rules = []config.RuleSpec{{
		Name:  "summarize",
		Model: rules.ModelConfig{Provider: rules.ProviderOpenAI, Model: "gpt-4o-mini"},
	}}
	cfg := config.Config{
		OpenAIKey:          "sk-test",
		MaxInFlight:        2,
		SequentialDispatch: true,
		ProviderTimeout:    time.Second,
	}

	deps, err := BuildWith(cfg, routing, discard)
	require.NoError(t, err)
	defer deps.Close()

	assert.Equal(t, []string{"content", "docs"}, deps.Sources.Labels())
	assert.Equal(t, []rules.Provider{rules.ProviderOpenAI}, deps.Providers.Providers())
	assert.Equal(t, dispatcher.ModeSequential, deps.Dispatcher.Mode())
	assert.IsType(t, &cache.NoOpCache{}, deps.Cache)

	rule, err := deps.Rules.Resolve("summarize")
	require.NoError(t, err)
	assert.Equal(t, rules.DefaultChunking(), rule.Chunking)

	text, err := deps.Sources.Fetch(context.Background(), "docs", "note.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestBuildWithInvalidRule(t *testing.T) {
	routing := config.DefaultRouting()
	routing.Rules = []config.RuleSpec{{
		Name:  "bad",
		Model: rules.ModelConfig{Provider: "mistral", Model: "x"},
	}}

	_, err := BuildWith(config.Config{}, routing, discard)
	assert.ErrorContains(t, err, "failed to load rules")
}

func TestBuildSourceErrors(t *testing.T) {
	tests := []struct {
		name string
		spec config.SourceSpec
	}{
		{"unknown type", config.SourceSpec{Label: "x", Type: "s3"}},
		{"postgres without dsn", config.SourceSpec{Label: "x", Type: "postgres"}},
		{"redis without addr", config.SourceSpec{Label: "x", Type: "redis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildSources([]config.SourceSpec{tt.spec}, discard)
			assert.Error(t, err)
		})
	}
}

func TestBuildProvidersSkipsMissingKeys(t *testing.T) {
	reg, err := buildProviders(config.Config{AnthropicKey: "a", GeminiKey: "g"}, discard)
	require.NoError(t, err)
	assert.Equal(t, []rules.Provider{rules.ProviderAnthropic, rules.ProviderGemini}, reg.Providers())
}

func TestBuildOptionalBackends(t *testing.T) {
	st, err := buildStore(config.Config{StoreProvider: "none"}, discard)
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = buildStore(config.Config{StoreProvider: "postgres"}, discard)
	assert.ErrorContains(t, err, "DB_URL is required")

	_, err = buildStore(config.Config{StoreProvider: "mysql"}, discard)
	assert.ErrorContains(t, err, "invalid STORE_PROVIDER")

	q, err := buildQueue(config.Config{QueueProvider: "none"}, discard)
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = buildQueue(config.Config{QueueProvider: "nats"}, discard)
	assert.ErrorContains(t, err, "QUEUE_URL is required")

	c := buildCache(config.Config{CacheProvider: "redis", RedisAddr: "127.0.0.1:1"}, discard)
	assert.IsType(t, &cache.NoOpCache{}, c)
}

type closingQueue struct {
	*queue.MockQueue
	closed bool
}

func (q *closingQueue) Close() error {
	q.closed = true
	return nil
}

func TestDepsCloseReleasesBackends(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	q := &closingQueue{MockQueue: new(queue.MockQueue)}

	deps := Deps{
		Sources: datasource.NewRegistry(),
		Store:   store.NewPostgresWithDB(db),
		Queue:   q,
		Cache:   cache.NewNoOpCache(),
	}
	require.NoError(t, deps.Close())
	assert.True(t, q.closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachBackendsClosesOnFailure(t *testing.T) {
	routing := config.DefaultRouting()
	deps, err := BuildWith(config.Config{}, routing, discard)
	require.NoError(t, err)
	require.NotEmpty(t, deps.Sources.Labels())

	err = attachBackends(&deps, config.Config{StoreProvider: "postgres"}, discard)
	assert.ErrorContains(t, err, "failed to initialize store")
	assert.Empty(t, deps.Sources.Labels())

	deps, err = BuildWith(config.Config{}, routing, discard)
	require.NoError(t, err)
	err = attachBackends(&deps, config.Config{QueueProvider: "kafka"}, discard)
	assert.ErrorContains(t, err, "failed to initialize queue")
	assert.Empty(t, deps.Sources.Labels())
}
