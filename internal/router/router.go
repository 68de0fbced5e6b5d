package router

import (
	"context"
	"log/slog"

	"llm-router/internal/accumulator"
	"llm-router/internal/aggregator"
	"llm-router/internal/apperr"
	"llm-router/internal/chunker"
	"llm-router/internal/dispatcher"
	"llm-router/internal/rules"
)

const (
	DefaultPromptTemplate = "Evaluate the following text: {text}"
	DefaultSystemPrompt   = "You are a helpful assistant that can answer questions and help with tasks."
)

// Stage names a step of a route call; failures are logged with the stage they hit.
type Stage string

const (
	StageResolveRule  Stage = "resolve_rule"
	StageFetchContent Stage = "fetch_content"
	StageChunk        Stage = "chunk"
	StageDispatch     Stage = "dispatch"
	StageAggregate    Stage = "aggregate"
	StageSummarize    Stage = "summarize"
)

type RuleResolver interface {
	Resolve(name string) (rules.Rule, error)
}

// Snapshot resolves rules captured at some earlier point, independent of
// any registry they came from.
type Snapshot map[string]rules.Rule

func (s Snapshot) Resolve(name string) (rules.Rule, error) {
	rule, ok := s[name]
	if !ok {
		return rules.Rule{}, apperr.RuleNotFound(name)
	}
	return rule, nil
}

type ContentFetcher interface {
	Fetch(ctx context.Context, label, query string) (string, error)
}

type ChunkDispatcher interface {
	Check(cfg rules.ModelConfig) error
	Dispatch(ctx context.Context, chunks []chunker.Chunk, cfg rules.ModelConfig, template string) (dispatcher.Batch, error)
}

// Options are fallbacks for rules that leave prompts unset.
type Options struct {
	PromptTemplate string
	SystemPrompt   string
}

func DefaultOptions() Options {
	return Options{PromptTemplate: DefaultPromptTemplate, SystemPrompt: DefaultSystemPrompt}
}

type Metadata struct {
	accumulator.Summary
	Rule     string         `json:"rule"`
	Provider rules.Provider `json:"provider"`
	Model    string         `json:"model"`
}

// Response is the complete outcome of one route call.
type Response struct {
	Result   any                      `json:"result"`
	Metadata Metadata                 `json:"metadata"`
	Chunks   []dispatcher.ChunkResult `json:"chunks,omitempty"`
}

type routeConfig struct {
	includeChunks bool
}

type RouteOption func(*routeConfig)

// WithChunks attaches per-chunk results to the response.
func WithChunks() RouteOption {
	return func(c *routeConfig) { c.includeChunks = true }
}

type Router struct {
	rules      RuleResolver
	sources    ContentFetcher
	dispatcher ChunkDispatcher
	opts       Options
	log        *slog.Logger
}

func New(rules RuleResolver, sources ContentFetcher, d ChunkDispatcher, opts Options, log *slog.Logger) *Router {
	return &Router{rules: rules, sources: sources, dispatcher: d, opts: opts, log: log}
}

// WithRules returns a copy of r that resolves rules from res.
func (r *Router) WithRules(res RuleResolver) *Router {
	cp := *r
	cp.rules = res
	return &cp
}

// Route resolves ruleName, fetches content from storeLabel, and runs it
// through chunking, dispatch and aggregation. It returns either a complete
// response or a single typed error.
func (r *Router) Route(ctx context.Context, storeLabel, query, ruleName string, opts ...RouteOption) (*Response, error) {
	var cfg routeConfig
	for _, o := range opts {
		o(&cfg)
	}
	log := r.log.With("rule", ruleName, "store_label", storeLabel)
	stage := StageResolveRule
	fail := func(err error) (*Response, error) {
		log.Error("route failed", "stage", stage, "err", err)
		return nil, err
	}

	rule, err := r.rules.Resolve(ruleName)
	if err != nil {
		return fail(err)
	}
	// Configuration problems surface before any network call.
	if err := rule.Chunking.Validate(); err != nil {
		return fail(err)
	}
	if err := r.dispatcher.Check(rule.Model); err != nil {
		return fail(err)
	}

	stage = StageFetchContent
	content, err := r.sources.Fetch(ctx, storeLabel, query)
	if err != nil {
		return fail(err)
	}

	stage = StageChunk
	chunks, err := chunker.Split(content, rule.Chunking)
	if err != nil {
		return fail(err)
	}
	log.Debug("content chunked", "chunks", len(chunks), "strategy", rule.Chunking.Strategy)

	stage = StageDispatch
	model := rule.Model
	if model.SystemPrompt == "" {
		model.SystemPrompt = r.opts.SystemPrompt
	}
	template := rule.PromptTemplate
	if template == "" {
		template = r.opts.PromptTemplate
	}
	batch, err := r.dispatcher.Dispatch(ctx, chunks, model, template)
	if err != nil {
		return fail(err)
	}

	stage = StageAggregate
	result, err := aggregator.Aggregate(batch.Results, rule.Chunking.Aggregation)
	if err != nil {
		return fail(err)
	}

	stage = StageSummarize
	resp := &Response{
		Result: result,
		Metadata: Metadata{
			Summary:  accumulator.Summarize(batch.Results, batch.Mode),
			Rule:     rule.Name,
			Provider: model.Provider,
			Model:    model.Model,
		},
	}
	if cfg.includeChunks {
		resp.Chunks = batch.Results
	}
	log.Info("route completed",
		"chunks_total", resp.Metadata.ChunksTotal,
		"chunks_failed", resp.Metadata.ChunksFailed,
		"total_cost", resp.Metadata.TotalCost,
		"latency_ms", resp.Metadata.LatencyMS,
	)
	return resp, nil
}
