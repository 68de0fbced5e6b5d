package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"llm-router/internal/cache"
	"llm-router/internal/config"
	"llm-router/internal/datasource"
	"llm-router/internal/dispatcher"
	"llm-router/internal/logger"
	"llm-router/internal/provider"
	"llm-router/internal/queue"
	"llm-router/internal/router"
	"llm-router/internal/rules"
	"llm-router/internal/store"
)

// Deps bundles common runtime dependencies for services.
// Store and Queue are nil when their provider is "none".
type Deps struct {
	Config     config.Config
	Log        *slog.Logger
	Rules      *rules.Registry
	Sources    *datasource.Registry
	Providers  *provider.Registry
	Dispatcher *dispatcher.Dispatcher
	Router     *router.Router
	Store      store.Store
	Queue      queue.Queue
	Cache      cache.Cache
}

// Build loads env, config, the routing file and shared components.
func Build(service string) (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	log := logger.ForService(logger.New(cfg.LogLevel), service)

	routing, err := config.LoadRouting(cfg.RoutingFile)
	if err != nil {
		return Deps{}, err
	}
	deps, err := BuildWith(cfg, routing, log)
	if err != nil {
		return Deps{}, err
	}

	if err := attachBackends(&deps, cfg, log); err != nil {
		return Deps{}, err
	}
	return deps, nil
}

// attachBackends adds the run store, queue and cache to deps. On failure
// everything deps already holds is closed.
func attachBackends(deps *Deps, cfg config.Config, log *slog.Logger) error {
	var err error
	deps.Store, err = buildStore(cfg, log)
	if err != nil {
		_ = deps.Close()
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	deps.Queue, err = buildQueue(cfg, log)
	if err != nil {
		_ = deps.Close()
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	deps.Cache = buildCache(cfg, log)
	return nil
}

// BuildWith assembles the routing engine from already-loaded configuration.
// It opens data-source connections but no store, queue or cache.
func BuildWith(cfg config.Config, routing *config.Routing, log *slog.Logger) (Deps, error) {
	ruleSet, err := buildRules(routing)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to load rules: %w", err)
	}
	sources, err := buildSources(routing.Sources, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to connect data sources: %w", err)
	}
	providers, err := buildProviders(cfg, log)
	if err != nil {
		_ = sources.Close()
		return Deps{}, fmt.Errorf("failed to initialize providers: %w", err)
	}
	d := dispatcher.New(providers, dispatcher.Options{
		MaxInFlight: cfg.MaxInFlight,
		Sequential:  cfg.SequentialDispatch,
	}, log)
	rt := router.New(ruleSet, sources, d, router.Options{
		PromptTemplate: routing.Defaults.PromptTemplate,
		SystemPrompt:   routing.Defaults.SystemPrompt,
	}, log)

	log.Info("routing engine ready",
		"rules", len(ruleSet.List()),
		"sources", sources.Labels(),
		"providers", providers.Providers(),
		"dispatch_mode", d.Mode(),
	)
	return Deps{
		Config:     cfg,
		Log:        log,
		Rules:      ruleSet,
		Sources:    sources,
		Providers:  providers,
		Dispatcher: d,
		Router:     rt,
		Cache:      cache.NewNoOpCache(),
	}, nil
}

// Close releases data-source, store, queue and cache connections.
func (d Deps) Close() error {
	var errs []error
	if d.Sources != nil {
		errs = append(errs, d.Sources.Close())
	}
	for _, b := range []any{d.Store, d.Queue} {
		if c, ok := b.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	if d.Cache != nil {
		errs = append(errs, d.Cache.Close())
	}
	return errors.Join(errs...)
}

func buildRules(routing *config.Routing) (*rules.Registry, error) {
	reg := rules.NewRegistry()
	for _, r := range routing.BuildRules() {
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildSources(specs []config.SourceSpec, log *slog.Logger) (*datasource.Registry, error) {
	reg := datasource.NewRegistry()
	for _, spec := range specs {
		src, err := buildSource(spec)
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("source %q: %w", spec.Label, err)
		}
		if err := reg.Connect(spec.Label, src); err != nil {
			_ = reg.Close()
			return nil, err
		}
		log.Info("data source connected", "label", spec.Label, "type", spec.Type)
	}
	return reg, nil
}

func buildSource(spec config.SourceSpec) (datasource.Source, error) {
	switch datasource.Kind(spec.Type) {
	case datasource.KindContent:
		return datasource.ContentSource{}, nil
	case datasource.KindFile:
		return datasource.NewFileSource(spec.BasePath), nil
	case datasource.KindPostgres:
		if spec.DSN == "" {
			return nil, fmt.Errorf("dsn is required for postgres sources")
		}
		return datasource.NewPostgresSource(spec.DSN)
	case datasource.KindRedis:
		if spec.Addr == "" {
			return nil, fmt.Errorf("addr is required for redis sources")
		}
		return datasource.NewRedisSource(spec.Addr, spec.Password, spec.DB)
	default:
		return nil, fmt.Errorf("invalid source type: %s (valid options: content, file, postgres, redis)", spec.Type)
	}
}

// buildProviders registers a client for every provider with an API key.
func buildProviders(cfg config.Config, log *slog.Logger) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	specs := []struct {
		name    rules.Provider
		key     string
		baseURL string
		build   func(provider.Options) (provider.Client, error)
	}{
		{rules.ProviderOpenAI, cfg.OpenAIKey, cfg.OpenAIBaseURL, func(o provider.Options) (provider.Client, error) {
			return provider.NewOpenAIClient(o)
		}},
		{rules.ProviderAnthropic, cfg.AnthropicKey, cfg.AnthropicBaseURL, func(o provider.Options) (provider.Client, error) {
			return provider.NewAnthropicClient(o)
		}},
		{rules.ProviderGemini, cfg.GeminiKey, cfg.GeminiBaseURL, func(o provider.Options) (provider.Client, error) {
			return provider.NewGeminiClient(o)
		}},
	}
	for _, s := range specs {
		if s.key == "" {
			continue
		}
		client, err := s.build(provider.Options{APIKey: s.key, BaseURL: s.baseURL, Timeout: cfg.ProviderTimeout})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s client: %w", s.name, err)
		}
		reg.Register(client)
		log.Info("provider configured", "provider", s.name)
	}
	if len(reg.Providers()) == 0 {
		log.Warn("no provider API keys set; every route will fail provider checks")
	}
	return reg, nil
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres run store")
		return db, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: postgres, none)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL, nats.Name("llm-router"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: nats, none)", cfg.QueueProvider)
	}
}

// buildCache falls back to a no-op cache when Redis is unset or unreachable.
func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	if cfg.CacheProvider != "redis" {
		return cache.NewNoOpCache()
	}
	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis cache unavailable, caching disabled", "addr", cfg.RedisAddr, "err", err)
		return cache.NewNoOpCache()
	}
	log.Info("using Redis response cache", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	return c
}
