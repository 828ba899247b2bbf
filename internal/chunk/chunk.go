// Package chunk splits source files into bounded, overlapping segments.
//
// Chunks are the unit of retrieval: every lexical index entry and every
// vector record refers back to exactly one chunk. Splitting is deterministic,
// line-oriented, and driven by a cheap token estimate rather than a real
// tokenizer, so it behaves identically for any language or plain text.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk size defaults.
const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 64
)

// Chunk is a contiguous slice of one file's lines.
type Chunk struct {
	// ID is content-addressable: identical path, position, and text always
	// produce the same ID, and any edit to the owning file retires it.
	ID string

	// FilePath is slash-normalized and relative to the indexed root.
	FilePath string

	// StartLine and EndLine are 1-based and inclusive.
	StartLine int
	EndLine   int

	// Text is the raw slice content, line terminators preserved, so the
	// original region can be reconstructed byte for byte.
	Text string

	// TokenEstimate approximates the language-model token count of Text.
	TokenEstimate int
}

// EstimateTokens approximates token count as ceil(len/4). Deterministic and
// language-agnostic; roughly four characters per token for code and prose.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// NewChunkID derives a stable chunk ID from path, position, and content.
func NewChunkID(filePath string, startLine int, text string) string {
	content := sha256.Sum256([]byte(text))
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%s", filePath, startLine, hex.EncodeToString(content[:])))
	return hex.EncodeToString(sum[:8])
}

// Split chunks text into segments of at most maxTokens estimated tokens with
// roughly overlapTokens of trailing context repeated at each seam.
//
// A single line whose estimate exceeds maxTokens is emitted alone as an
// overflow chunk; it is the only case where a chunk exceeds the budget.
// When a function/class definition line falls inside the overlap lookback
// window, the cut prefers that line so definitions start chunks; this is a
// soft preference and the token budget always wins.
//
// Split is deterministic: identical (filePath, text, maxTokens, overlapTokens)
// always yields an identical sequence. An empty text yields nil.
func Split(filePath, text string, maxTokens, overlapTokens int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}

	lines := splitLines(text)
	n := len(lines)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	i := 0
	for i < n {
		start := i

		// Overflow escape: a single line above the budget is its own chunk.
		if EstimateTokens(lines[i]) > maxTokens {
			chunks = append(chunks, newChunk(filePath, lines, start, start+1))
			i = start + 1
			continue
		}

		toks := 0
		for i < n {
			lt := EstimateTokens(lines[i])
			if toks+lt > maxTokens {
				break
			}
			toks += lt
			i++
		}
		cut := i

		// Prefer cutting at a definition line inside the lookback window so
		// the definition opens the next chunk instead of being split mid-body.
		if cut < n {
			wstart := overlapWindowStart(lines, start, cut, overlapTokens)
			for b := cut - 1; b >= wstart && b > start; b-- {
				if IsBoundary(lines[b]) {
					cut = b
					break
				}
			}
		}

		chunks = append(chunks, newChunk(filePath, lines, start, cut))

		if cut >= n {
			break
		}

		// Back up into the finished chunk by the trailing lines whose
		// cumulative estimate stays within overlapTokens. With a nonzero
		// budget at least one line is always repeated, even when that line
		// alone exceeds it.
		next := overlapWindowStart(lines, start, cut, overlapTokens)
		if overlapTokens > 0 && next == cut {
			next = cut - 1
		}
		if next <= start {
			next = start + 1
		}
		i = next
	}

	return chunks
}

// newChunk builds a Chunk covering lines[start:end) (0-based, end exclusive).
func newChunk(filePath string, lines []string, start, end int) Chunk {
	text := strings.Join(lines[start:end], "")
	return Chunk{
		ID:            NewChunkID(filePath, start+1, text),
		FilePath:      filePath,
		StartLine:     start + 1,
		EndLine:       end,
		Text:          text,
		TokenEstimate: EstimateTokens(text),
	}
}

// overlapWindowStart returns the smallest index w in (start, cut] such that
// lines[w:cut] fits within overlapTokens. With overlapTokens 0 it returns cut.
func overlapWindowStart(lines []string, start, cut, overlapTokens int) int {
	w := cut
	acc := 0
	for w > start+1 {
		lt := EstimateTokens(lines[w-1])
		if acc+lt > overlapTokens {
			break
		}
		acc += lt
		w--
	}
	return w
}

// splitLines splits text into lines preserving terminators, so joining the
// pieces reproduces the input exactly.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}

	var lines []string
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			if text != "" {
				lines = append(lines, text)
			}
			break
		}
		lines = append(lines, text[:idx+1])
		text = text[idx+1:]
	}
	return lines
}
