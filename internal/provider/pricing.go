package provider

// Price is the USD rate per one million tokens.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// PriceTable holds per-model rates with a fallback for unknown models.
type PriceTable struct {
	Default Price
	Models  map[string]Price
}

func (t PriceTable) Cost(model string, tokensIn, tokensOut int) float64 {
	p, ok := t.Models[model]
	if !ok {
		p = t.Default
	}
	return (float64(tokensIn)*p.InputPerMillion + float64(tokensOut)*p.OutputPerMillion) / 1_000_000
}

var OpenAIPrices = PriceTable{
	Default: Price{2.50, 10.00},
	Models: map[string]Price{
		"gpt-4o":        {2.50, 10.00},
		"gpt-4o-mini":   {0.15, 0.60},
		"gpt-4-turbo":   {10.00, 30.00},
		"gpt-4":         {30.00, 60.00},
		"gpt-3.5-turbo": {0.50, 1.50},
	},
}

var AnthropicPrices = PriceTable{
	Default: Price{3.00, 15.00},
	Models: map[string]Price{
		"claude-3-5-sonnet-20241022": {3.00, 15.00},
		"claude-3-5-sonnet-20240620": {3.00, 15.00},
		"claude-sonnet-4-20250514":   {3.00, 15.00},
		"claude-3-opus-20240229":     {15.00, 75.00},
		"claude-3-haiku-20240307":    {0.25, 1.25},
	},
}

var GeminiPrices = PriceTable{
	Default: Price{1.25, 5.00},
	Models: map[string]Price{
		"gemini-1.5-pro":   {1.25, 5.00},
		"gemini-1.5-flash": {0.075, 0.30},
	},
}
