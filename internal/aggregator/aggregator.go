package aggregator

import (
	"fmt"
	"strconv"
	"strings"

	"llm-router/internal/apperr"
	"llm-router/internal/dispatcher"
	"llm-router/internal/rules"
)

// Separator joins concatenated chunk outputs.
const Separator = "\n\n"

// Aggregate combines ordered chunk results into one value.
//
// A single result is returned as is, whatever the strategy. Otherwise
// concatenate yields a string, majority_vote the winning label, and
// average_score a float64. Failed results never contribute a value.
func Aggregate(results []dispatcher.ChunkResult, strategy rules.Aggregation) (any, error) {
	if len(results) == 1 {
		r := results[0]
		if !r.OK() {
			return nil, apperr.New(apperr.KindAggregation, "the only chunk failed", r.Err)
		}
		return r.Value, nil
	}

	switch strategy {
	case rules.AggregationConcatenate:
		return concatenate(results)
	case rules.AggregationMajorityVote:
		return majorityVote(results)
	case rules.AggregationAverageScore:
		return averageScore(results)
	default:
		return nil, apperr.Configf("unknown aggregation strategy %q", strategy)
	}
}

func okValues(results []dispatcher.ChunkResult) []string {
	var vals []string
	for _, r := range results {
		if r.OK() {
			vals = append(vals, r.Value)
		}
	}
	return vals
}

func concatenate(results []dispatcher.ChunkResult) (any, error) {
	if len(results) == 0 {
		return "", nil
	}
	vals := okValues(results)
	if len(vals) == 0 {
		return nil, apperr.Aggregationf("all %d chunks failed", len(results))
	}
	return strings.Join(vals, Separator), nil
}

// majorityVote returns the most frequent label. Ties go to the label seen first.
func majorityVote(results []dispatcher.ChunkResult) (any, error) {
	vals := okValues(results)
	if len(vals) == 0 {
		return nil, apperr.Aggregationf("no successful chunks to vote on")
	}
	counts := make(map[string]int, len(vals))
	var order []string
	for _, v := range vals {
		label := strings.TrimSpace(v)
		if counts[label] == 0 {
			order = append(order, label)
		}
		counts[label]++
	}
	winner := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[winner] {
			winner = label
		}
	}
	return winner, nil
}

func averageScore(results []dispatcher.ChunkResult) (any, error) {
	var sum float64
	var n int
	for _, r := range results {
		if !r.OK() {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
		if err != nil {
			return nil, apperr.New(apperr.KindAggregation, fmt.Sprintf("chunk %d score %q is not numeric", r.ChunkIndex, r.Value), err)
		}
		sum += f
		n++
	}
	if n == 0 {
		return nil, apperr.Aggregationf("no successful chunks to average")
	}
	return sum / float64(n), nil
}
