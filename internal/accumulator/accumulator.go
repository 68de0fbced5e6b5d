package accumulator

import (
	"time"

	"llm-router/internal/dispatcher"
)

// Summary folds usage from every dispatched chunk, failed ones included.
type Summary struct {
	TotalCost       float64 `json:"total_cost"`
	TotalTokens     int     `json:"total_tokens"`
	TokensIn        int     `json:"tokens_in"`
	TokensOut       int     `json:"tokens_out"`
	ChunksTotal     int     `json:"chunks_total"`
	ChunksProcessed int     `json:"chunks_processed"`
	ChunksFailed    int     `json:"chunks_failed"`
	LatencyMS       int64   `json:"latency_ms"`
}

// Summarize is independent of the aggregation strategy. Latency is the
// dispatch wall-clock span in concurrent mode and the sum of call latencies
// in sequential mode.
func Summarize(results []dispatcher.ChunkResult, mode dispatcher.Mode) Summary {
	s := Summary{ChunksTotal: len(results)}
	var first, last time.Time
	for _, r := range results {
		s.TotalCost += r.Metadata.Cost
		s.TokensIn += r.Metadata.TokensIn
		s.TokensOut += r.Metadata.TokensOut
		if r.OK() {
			s.ChunksProcessed++
		} else {
			s.ChunksFailed++
		}

		if mode == dispatcher.ModeSequential {
			s.LatencyMS += r.Metadata.LatencyMS
			continue
		}
		if first.IsZero() || r.StartedAt.Before(first) {
			first = r.StartedAt
		}
		if r.FinishedAt.After(last) {
			last = r.FinishedAt
		}
	}
	s.TotalTokens = s.TokensIn + s.TokensOut
	if mode != dispatcher.ModeSequential && !first.IsZero() {
		s.LatencyMS = last.Sub(first).Milliseconds()
	}
	return s
}
