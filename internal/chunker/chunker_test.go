package chunker

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-router/internal/apperr"
	"llm-router/internal/rules"
)

func cfg(strategy rules.Strategy, size, overlap int) rules.ChunkingConfig {
	return rules.ChunkingConfig{
		Enabled:     true,
		Strategy:    strategy,
		ChunkSize:   size,
		Overlap:     overlap,
		Aggregation: rules.AggregationConcatenate,
	}
}

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestSplitFixedSizeRoundTrip(t *testing.T) {
	chunks, err := Split("abcdefghij", cfg(rules.StrategyFixedSize, 3, 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"abc", "def", "ghi", "j"}, texts(chunks))
	assert.Equal(t, "abcdefghij", strings.Join(texts(chunks), ""))
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, i*3, c.SourceOffset)
	}
}

func TestSplitFixedSizeOverlap(t *testing.T) {
	chunks, err := Split("abcdefghij", cfg(rules.StrategyFixedSize, 4, 1))
	require.NoError(t, err)

	assert.Equal(t, []string{"abcd", "defg", "ghij"}, texts(chunks))
	assert.Equal(t, []int{0, 3, 6}, []int{chunks[0].SourceOffset, chunks[1].SourceOffset, chunks[2].SourceOffset})
}

func TestSplitFixedSizeWindowLengths(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 5)
	runes := []rune(text)

	for size := 1; size <= 15; size++ {
		for overlap := 0; overlap < size; overlap++ {
			chunks, err := Split(text, cfg(rules.StrategyFixedSize, size, overlap))
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			for i, c := range chunks {
				n := utf8.RuneCountInString(c.Text)
				if i < len(chunks)-1 {
					assert.Equal(t, size, n, "size=%d overlap=%d chunk=%d", size, overlap, i)
				} else {
					assert.LessOrEqual(t, n, size)
				}
				assert.Equal(t, string(runes[c.SourceOffset:c.SourceOffset+n]), c.Text)
			}
			last := chunks[len(chunks)-1]
			assert.Equal(t, len(runes), last.SourceOffset+utf8.RuneCountInString(last.Text))

			if overlap == 0 {
				assert.Equal(t, text, strings.Join(texts(chunks), ""))
			}
		}
	}
}

func TestSplitCountsRunes(t *testing.T) {
	chunks, err := Split("héllo wörld", cfg(rules.StrategyFixedSize, 4, 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"héll", "o wö", "rld"}, texts(chunks))
	assert.Equal(t, 8, chunks[2].SourceOffset)
}

func TestSplitEmptyInput(t *testing.T) {
	for _, s := range []rules.Strategy{rules.StrategyFixedSize, rules.StrategySemantic, rules.StrategySlidingWindow} {
		chunks, err := Split("", cfg(s, 10, 0))
		require.NoError(t, err)
		assert.Empty(t, chunks, string(s))
	}

	disabled := cfg(rules.StrategyFixedSize, 10, 0)
	disabled.Enabled = false
	chunks, err := Split("", disabled)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitSingleChunk(t *testing.T) {
	text := strings.Repeat("word ", 100)

	disabled := cfg(rules.StrategyFixedSize, 10, 2)
	disabled.Enabled = false
	chunks, err := Split(text, disabled)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].SourceOffset)

	chunks, err = Split("short", cfg(rules.StrategySemantic, 5, 0))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0].Text)
}

func TestSplitConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  rules.ChunkingConfig
	}{
		{"zero size", cfg(rules.StrategyFixedSize, 0, 0)},
		{"overlap equals size", cfg(rules.StrategyFixedSize, 5, 5)},
		{"overlap above size", cfg(rules.StrategySlidingWindow, 5, 9)},
		{"negative overlap", cfg(rules.StrategySemantic, 5, -1)},
		{"unknown strategy", cfg("paragraph", 5, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split("some text that is long enough", tt.cfg)
			assert.Nil(t, chunks)
			assert.True(t, apperr.IsConfig(err), "want config error, got %v", err)
		})
	}
}

func TestSplitSlidingWindowKeepsWordsWhole(t *testing.T) {
	// Words are at most three letters, so a space always sits inside the lookback.
	text := strings.Repeat("the cat sat on a mat and ran far ", 6)
	runes := []rune(text)

	chunks, err := Split(text, cfg(rules.StrategySlidingWindow, 40, 0))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks[:len(chunks)-1] {
		n := utf8.RuneCountInString(c.Text)
		assert.LessOrEqual(t, n, 40)
		endsOnSpace := unicode.IsSpace(runes[c.SourceOffset+n-1]) || unicode.IsSpace(runes[c.SourceOffset+n])
		assert.True(t, endsOnSpace, "chunk %d splits a word: %q", i, c.Text)
	}
	assert.Equal(t, text, strings.Join(texts(chunks), ""))
}

func TestSplitSlidingWindowFallsBackToHardEdge(t *testing.T) {
	chunks, err := Split(strings.Repeat("x", 25), cfg(rules.StrategySlidingWindow, 10, 0))
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 5}, []int{len(chunks[0].Text), len(chunks[1].Text), len(chunks[2].Text)})
}

func TestSplitSemanticParagraphBreak(t *testing.T) {
	text := "aaaa aaaa aaaa aaaa\n\nbbbb bbbb bbbb bbbb"

	chunks, err := Split(text, cfg(rules.StrategySemantic, 24, 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"aaaa aaaa aaaa aaaa\n\n", "bbbb bbbb bbbb bbbb"}, texts(chunks))
	assert.Equal(t, 21, chunks[1].SourceOffset)
}

func TestSplitSemanticSentenceEnd(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."

	chunks, err := Split(text, cfg(rules.StrategySemantic, 32, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"One two three. Four five six. ", "Seven eight nine."}, texts(chunks))

	chunks, err = Split(text, cfg(rules.StrategySemantic, 32, 5))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 25, chunks[1].SourceOffset)
	assert.Equal(t, "six. Seven eight nine.", chunks[1].Text)
}

func TestSplitSemanticHardSplitWithoutBoundary(t *testing.T) {
	chunks, err := Split(strings.Repeat("x", 50), cfg(rules.StrategySemantic, 20, 0))
	require.NoError(t, err)

	assert.Equal(t, []int{20, 20, 10}, []int{len(chunks[0].Text), len(chunks[1].Text), len(chunks[2].Text)})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("héé"))
}
