package provider

import "llm-router/internal/rules"

const (
	OpenAIBaseURL    = "https://api.openai.com/v1/"
	AnthropicBaseURL = "https://api.anthropic.com/v1/"
	GeminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta/openai/"

	// Anthropic rejects requests without max_tokens.
	anthropicDefaultMaxTokens = 4096
)

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	compatClient
}

func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	c, err := newCompatClient(rules.ProviderOpenAI, opts, OpenAIBaseURL, OpenAIPrices)
	if err != nil {
		return nil, err
	}
	return &OpenAIClient{compatClient: c}, nil
}

// AnthropicClient calls Claude models through Anthropic's OpenAI-compatible endpoint.
type AnthropicClient struct {
	compatClient
}

func NewAnthropicClient(opts Options) (*AnthropicClient, error) {
	c, err := newCompatClient(rules.ProviderAnthropic, opts, AnthropicBaseURL, AnthropicPrices)
	if err != nil {
		return nil, err
	}
	c.defaultMaxTokens = anthropicDefaultMaxTokens
	return &AnthropicClient{compatClient: c}, nil
}

// GeminiClient calls Gemini models through Google's OpenAI-compatible endpoint.
// Usage is estimated from text length when the endpoint omits it.
type GeminiClient struct {
	compatClient
}

func NewGeminiClient(opts Options) (*GeminiClient, error) {
	c, err := newCompatClient(rules.ProviderGemini, opts, GeminiBaseURL, GeminiPrices)
	if err != nil {
		return nil, err
	}
	c.estimateUsage = true
	return &GeminiClient{compatClient: c}, nil
}
