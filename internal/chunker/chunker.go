package chunker

import (
	"unicode"
	"unicode/utf8"

	"llm-router/internal/apperr"
	"llm-router/internal/rules"
)

// Chunk represents a slice of the fetched content. Offsets and sizes count runes.
type Chunk struct {
	Index         int    `json:"index"`
	Text          string `json:"text"`
	SourceOffset  int    `json:"source_offset"`
	TokenEstimate int    `json:"token_estimate"`
}

// EstimateTokens approximates token usage as one token per four characters, rounded up.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// cutFunc may pull a window end back towards start. It is only consulted when
// the window does not already reach the end of the text.
type cutFunc func(runes []rune, start, end int) int

// Split validates cfg and divides text into ordered chunks.
// Empty text yields no chunks. Disabled chunking, or text that already fits,
// yields a single chunk.
func Split(text string, cfg rules.ChunkingConfig) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	runes := []rune(text)
	if !cfg.Enabled || len(runes) <= cfg.ChunkSize {
		return []Chunk{newChunk(0, text, 0)}, nil
	}

	var cut cutFunc
	switch cfg.Strategy {
	case rules.StrategyFixedSize:
		cut = hardCut
	case rules.StrategySlidingWindow:
		cut = whitespaceCut(max(1, cfg.ChunkSize/10))
	case rules.StrategySemantic:
		cut = boundaryCut(max(1, cfg.ChunkSize/5))
	default:
		return nil, apperr.Configf("unknown chunking strategy %q", cfg.Strategy)
	}
	return window(runes, cfg.ChunkSize, cfg.Overlap, cut), nil
}

func window(runes []rune, size, overlap int, cut cutFunc) []Chunk {
	var chunks []Chunk
	n := len(runes)
	start := 0
	for {
		end := min(start+size, n)
		if end < n {
			// A pulled-back end must still leave room to advance past the overlap.
			if c := cut(runes, start, end); c-overlap > start {
				end = c
			}
		}
		chunks = append(chunks, newChunk(len(chunks), string(runes[start:end]), start))
		if end == n {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func newChunk(index int, text string, offset int) Chunk {
	return Chunk{
		Index:         index,
		Text:          text,
		SourceOffset:  offset,
		TokenEstimate: EstimateTokens(text),
	}
}

func hardCut(_ []rune, _, end int) int {
	return end
}

// whitespaceCut ends the window right after the nearest whitespace so words stay whole.
func whitespaceCut(lookback int) cutFunc {
	return func(runes []rune, start, end int) int {
		if unicode.IsSpace(runes[end]) {
			return end
		}
		lo := max(start+1, end-lookback)
		for p := end; p >= lo; p-- {
			if unicode.IsSpace(runes[p-1]) {
				return p
			}
		}
		return end
	}
}

// boundaryCut prefers a paragraph break, then a sentence end, inside the lookback window.
func boundaryCut(lookback int) cutFunc {
	return func(runes []rune, start, end int) int {
		lo := max(start+1, end-lookback)
		for p := end; p >= lo; p-- {
			if p-2 >= start && runes[p-2] == '\n' && runes[p-1] == '\n' {
				return p
			}
		}
		for p := end; p >= lo; p-- {
			if isSentenceEnd(runes, start, p) {
				return p
			}
		}
		return end
	}
}

func isSentenceEnd(runes []rune, start, p int) bool {
	if runes[p-1] == '\n' {
		return true
	}
	if p-2 < start || runes[p-1] != ' ' {
		return false
	}
	switch runes[p-2] {
	case '.', '!', '?':
		return true
	}
	return false
}
