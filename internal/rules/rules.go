package rules

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"llm-router/internal/apperr"
)

// Provider names an LLM vendor a rule can target.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// Strategy selects how content is split into chunks.
type Strategy string

const (
	StrategyFixedSize     Strategy = "fixed_size"
	StrategySemantic      Strategy = "semantic"
	StrategySlidingWindow Strategy = "sliding_window"
)

// Aggregation selects how per-chunk outputs are combined.
type Aggregation string

const (
	AggregationConcatenate  Aggregation = "concatenate"
	AggregationMajorityVote Aggregation = "majority_vote"
	AggregationAverageScore Aggregation = "average_score"
)

const (
	DefaultChunkSize = 8000
	DefaultOverlap   = 500
)

// ModelConfig describes the target of every chunk call made under a rule.
type ModelConfig struct {
	Provider     Provider `json:"provider" yaml:"provider" validate:"required,oneof=anthropic openai gemini"`
	Model        string   `json:"model" yaml:"model" validate:"required"`
	Temperature  float64  `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int      `json:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// ChunkingConfig controls splitting and recombination. Sizes are in characters.
type ChunkingConfig struct {
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Strategy    Strategy    `json:"strategy" yaml:"strategy" validate:"oneof=fixed_size semantic sliding_window"`
	ChunkSize   int         `json:"chunk_size" yaml:"chunk_size" validate:"gt=0"`
	Overlap     int         `json:"overlap" yaml:"overlap" validate:"gte=0,ltfield=ChunkSize"`
	Aggregation Aggregation `json:"aggregation" yaml:"aggregation" validate:"oneof=concatenate majority_vote average_score"`
}

// Rule binds a name to a model target and a chunking policy.
type Rule struct {
	Name           string         `json:"name" yaml:"name" validate:"required"`
	Model          ModelConfig    `json:"model_config" yaml:"model_config"`
	Chunking       ChunkingConfig `json:"chunking_config" yaml:"chunking_config"`
	PromptTemplate string         `json:"prompt_template,omitempty" yaml:"prompt_template,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json field names so messages match the wire format.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// DefaultChunking returns the chunking policy used when a rule does not declare one.
func DefaultChunking() ChunkingConfig {
	return ChunkingConfig{
		Enabled:     true,
		Strategy:    StrategyFixedSize,
		ChunkSize:   DefaultChunkSize,
		Overlap:     DefaultOverlap,
		Aggregation: AggregationConcatenate,
	}
}

// Validate checks the chunking invariants. The check runs even when chunking is disabled.
func (c ChunkingConfig) Validate() error {
	return check(c)
}

func (m ModelConfig) Validate() error {
	return check(m)
}

// Validate checks the rule and its nested configs.
func (r Rule) Validate() error {
	if err := check(r); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	return nil
}

func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.New(apperr.KindConfig, "validation failed", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.Configf("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s %q must be one of: %s", field, fmt.Sprint(fe.Value()), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	case "ltfield":
		return fmt.Sprintf("%s must be less than %s, got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed on '%s'", field, fe.Tag())
	}
}
