// Package extract turns raw page text into the ordered speakable
// segments the playback pipeline consumes. Splitting mirrors the
// synthesis server's own heuristics so local and server-side segmentation
// agree: paragraphs break on blank lines and on lines opening a new
// sentence, short fragments are dropped, and long unbroken text is
// chunked at sentence boundaries.
package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pocketreader/readaloud/internal/speech"
)

const (
	// minFragment is the shortest paragraph worth speaking; anything at
	// or below this is noise like page numbers or stray markup.
	minFragment = 10

	// longText is the length above which an unsplittable text is
	// re-chunked by sentence.
	longText = 500

	// chunkTarget is the minimum chunk size when splitting by sentence.
	chunkTarget = 300
)

// Paragraphs splits text into speakable paragraphs. The result is never
// empty for non-blank input; text that resists splitting comes back as a
// single paragraph.
func Paragraphs(text string) []string {
	var result []string
	for _, block := range splitBlocks(text) {
		block = strings.TrimSpace(block)
		if len(block) > minFragment {
			result = append(result, block)
		}
	}

	if len(result) <= 1 && len(text) > longText {
		result = chunkSentences(text, chunkTarget)
	}
	if len(result) == 0 {
		return []string{text}
	}
	return result
}

// Segments wraps paragraphs in speech segments with stable highlight
// references.
func Segments(paragraphs []string) []speech.Segment {
	out := make([]speech.Segment, len(paragraphs))
	for i, p := range paragraphs {
		out[i] = speech.Segment{
			Index:        i,
			Text:         p,
			HighlightRef: fmt.Sprintf("para-%d", i),
		}
	}
	return out
}

// splitBlocks breaks text at blank lines and before lines that open with
// an uppercase letter, which usually marks a fresh sentence in text
// extracted from a page.
func splitBlocks(text string) []string {
	lines := strings.Split(text, "\n")

	var blocks []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if startsUpper(trimmed) {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// chunkSentences splits text at sentence ends and joins sentences into
// chunks of at least target characters.
func chunkSentences(text string, target int) []string {
	sentences := splitSentences(text)

	var chunks []string
	var current []string
	length := 0
	for _, s := range sentences {
		current = append(current, s)
		length += len(s)
		if length >= target {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			length = 0
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// splitSentences breaks text after terminal punctuation followed by
// whitespace.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
