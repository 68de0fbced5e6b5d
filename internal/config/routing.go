package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"llm-router/internal/router"
	"llm-router/internal/rules"
)

// Routing is the routing file: prompt defaults, data-source connections and rules.
type Routing struct {
	Defaults Defaults     `yaml:"defaults"`
	Sources  []SourceSpec `yaml:"sources"`
	Rules    []RuleSpec   `yaml:"rules"`
}

type Defaults struct {
	PromptTemplate string               `yaml:"prompt_template"`
	SystemPrompt   string               `yaml:"system_prompt"`
	Chunking       rules.ChunkingConfig `yaml:"chunking"`
}

// SourceSpec declares one data-source connection. Only the fields of its type are read.
type SourceSpec struct {
	Label    string `yaml:"label"`
	Type     string `yaml:"type"` // content, file, postgres, redis
	BasePath string `yaml:"base_path"`
	DSN      string `yaml:"dsn"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RuleSpec struct {
	Name           string            `yaml:"name"`
	PromptTemplate string            `yaml:"prompt_template"`
	Model          rules.ModelConfig `yaml:"model_config"`
	Chunking       ChunkingSpec      `yaml:"chunking_config"`
}

// ChunkingSpec overrides the default chunking field by field; unset fields inherit.
type ChunkingSpec struct {
	Enabled     *bool             `yaml:"enabled"`
	Strategy    rules.Strategy    `yaml:"strategy"`
	ChunkSize   *int              `yaml:"chunk_size"`
	Overlap     *int              `yaml:"overlap"`
	Aggregation rules.Aggregation `yaml:"aggregation"`
}

// DefaultRouting returns the routing used when no file exists: an inline
// "content" source and no rules.
func DefaultRouting() *Routing {
	return &Routing{
		Defaults: Defaults{
			PromptTemplate: router.DefaultPromptTemplate,
			SystemPrompt:   router.DefaultSystemPrompt,
			Chunking:       rules.DefaultChunking(),
		},
		Sources: []SourceSpec{{Label: "content", Type: "content"}},
	}
}

// LoadRouting reads a YAML routing file. ${VAR} references are expanded from
// the environment. A missing file yields DefaultRouting.
func LoadRouting(path string) (*Routing, error) {
	cfg := DefaultRouting()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read routing file: %w", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse routing file %s: %w", path, err)
	}
	return cfg, nil
}

// BuildRules resolves each rule spec against the default chunking policy.
func (r *Routing) BuildRules() []rules.Rule {
	out := make([]rules.Rule, 0, len(r.Rules))
	for _, spec := range r.Rules {
		out = append(out, rules.Rule{
			Name:           spec.Name,
			Model:          spec.Model,
			Chunking:       spec.Chunking.apply(r.Defaults.Chunking),
			PromptTemplate: spec.PromptTemplate,
		})
	}
	return out
}

func (s ChunkingSpec) apply(base rules.ChunkingConfig) rules.ChunkingConfig {
	if s.Enabled != nil {
		base.Enabled = *s.Enabled
	}
	if s.Strategy != "" {
		base.Strategy = s.Strategy
	}
	if s.ChunkSize != nil {
		base.ChunkSize = *s.ChunkSize
	}
	if s.Overlap != nil {
		base.Overlap = *s.Overlap
	}
	if s.Aggregation != "" {
		base.Aggregation = s.Aggregation
	}
	return base
}
