package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration read from the environment.
type Config struct {
	// Server
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	MaxBodySize int64  `env:"MAX_BODY_SIZE" envDefault:"10485760"` // 10MB in bytes
	// Upper bound for one synchronous route request
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5m"`
	// Health endpoint port for the worker
	HealthPort int `env:"HEALTH_PORT" envDefault:"8081"`

	// Rules, data sources and prompt defaults
	RoutingFile string `env:"ROUTING_FILE" envDefault:"routing.yaml"`

	// Dispatch
	MaxInFlight        int           `env:"MAX_IN_FLIGHT" envDefault:"4"`
	SequentialDispatch bool          `env:"SEQUENTIAL_DISPATCH" envDefault:"false"`
	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`

	// Providers; a provider is registered only when its key is set
	OpenAIKey        string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	AnthropicKey     string `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL"`
	GeminiKey        string `env:"GEMINI_API_KEY"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL"`

	// Run store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"none"` // "postgres" or "none"
	DBURL         string `env:"DB_URL"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"none"` // "nats" or "none"
	QueueURL      string `env:"QUEUE_URL"`

	// Response cache
	CacheProvider string        `env:"CACHE_PROVIDER" envDefault:"none"` // "redis" or "none"
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
