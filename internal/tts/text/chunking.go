package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkChars is the chunk length used when none is configured.
const DefaultMaxChunkChars = 200

const (
	sentenceMarks = ".!?"
	clauseMarks   = ",;:"
)

// SplitIntoChunks splits text into chunks of at most maxChars characters. Sentences are
// accumulated greedily; a sentence longer than maxChars is split on clause punctuation and
// its parts are accumulated under the same rule. A part that still exceeds maxChars is
// emitted on its own. When nothing remains after splitting, the original text is the only
// chunk.
func SplitIntoChunks(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	acc := chunkAccumulator{maxChars: maxChars, chunks: nil, current: ""}

	for _, sentence := range splitAfter(strings.TrimSpace(text), sentenceMarks) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if utf8.RuneCountInString(sentence) <= maxChars {
			acc.add(sentence)

			continue
		}

		for _, part := range splitAfter(sentence, clauseMarks) {
			acc.add(part)
		}
	}

	chunks := acc.finish()
	if len(chunks) == 0 {
		return []string{text}
	}

	return chunks
}

type chunkAccumulator struct {
	maxChars int
	chunks   []string
	current  string
}

func (a *chunkAccumulator) add(part string) {
	if utf8.RuneCountInString(a.current)+utf8.RuneCountInString(part)+1 <= a.maxChars {
		a.current = strings.TrimSpace(a.current + " " + part)

		return
	}

	if a.current != "" {
		a.chunks = append(a.chunks, a.current)
	}

	a.current = part
}

func (a *chunkAccumulator) finish() []string {
	if a.current != "" {
		a.chunks = append(a.chunks, a.current)
		a.current = ""
	}

	return a.chunks
}

// splitAfter splits s at every whitespace run that directly follows one of marks.
// The whitespace is dropped and the mark stays with the preceding part.
func splitAfter(s, marks string) []string {
	runes := []rune(s)

	var parts []string

	start := 0

	for i := 0; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) || i == 0 || !strings.ContainsRune(marks, runes[i-1]) {
			continue
		}

		end := i
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}

		parts = append(parts, string(runes[start:i]))
		start = end
		i = end - 1
	}

	return append(parts, string(runes[start:]))
}
