package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"llm-router/internal/chunker"
	"llm-router/internal/rules"
)

// compatClient speaks the OpenAI chat completions protocol. Anthropic and
// Gemini both expose compatible endpoints, so every vendor shares it.
type compatClient struct {
	provider         rules.Provider
	client           openai.Client
	timeout          time.Duration
	prices           PriceTable
	defaultMaxTokens int
	estimateUsage    bool
}

func newCompatClient(p rules.Provider, opts Options, defaultBaseURL string, prices PriceTable) (compatClient, error) {
	if opts.APIKey == "" {
		return compatClient{}, fmt.Errorf("%s: %w", p, ErrAPIKeyRequired)
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL),
		// One attempt per chunk per route call.
		option.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return compatClient{
		provider: p,
		client:   openai.NewClient(reqOpts...),
		timeout:  timeout,
		prices:   prices,
	}, nil
}

func (c *compatClient) Provider() rules.Provider {
	return c.provider
}

func (c *compatClient) Invoke(ctx context.Context, cfg rules.ModelConfig, prompt string) (Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(cfg.Model),
		Messages:    buildMessages(cfg.SystemPrompt, prompt),
		Temperature: openai.Float(cfg.Temperature),
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.defaultMaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(reqCtx, params)
	out := Response{LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%s %s: %w after %s", c.provider, cfg.Model, ErrTimeout, c.timeout)
		}
		return out, fmt.Errorf("failed to call %s %s: %w", c.provider, cfg.Model, err)
	}

	out.TokensIn = int(resp.Usage.PromptTokens)
	out.TokensOut = int(resp.Usage.CompletionTokens)
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	if c.estimateUsage && out.TokensIn == 0 && out.TokensOut == 0 {
		out.TokensIn = chunker.EstimateTokens(cfg.SystemPrompt) + chunker.EstimateTokens(prompt)
		out.TokensOut = chunker.EstimateTokens(out.Text)
	}
	out.Cost = c.prices.Cost(cfg.Model, out.TokensIn, out.TokensOut)
	if out.Text == "" {
		return out, fmt.Errorf("%s %s: %w", c.provider, cfg.Model, ErrEmptyResponse)
	}
	return out, nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		})
	}
	return append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(user),
			},
		},
	})
}
