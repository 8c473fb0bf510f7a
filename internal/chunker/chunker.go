// Package chunker splits section text into overlapping, sentence-aligned
// chunks sized in characters.
package chunker

import (
	"fmt"
	"iter"
	"regexp"
	"strings"
	"unicode"
)

// Config controls chunking behavior. Sizes are in characters.
type Config struct {
	ChunkSize    int // Target chunk size
	ChunkOverlap int // Overlap between consecutive chunks, must be < ChunkSize
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    800,
		ChunkOverlap: 100,
	}
}

var spaceRe = regexp.MustCompile(`\s+`)

// Split produces a lazy, restartable sequence of chunks over text. Chunks
// break only at sentence boundaries; a single sentence longer than the target
// size is emitted whole. Each chunk after the first starts with the trailing
// sentences of its predecessor, as many whole sentences as fit within
// ChunkOverlap. Empty text yields nothing.
func Split(text string, cfg Config) iter.Seq[string] {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = DefaultConfig().ChunkOverlap
	}

	return func(yield func(string) bool) {
		sentences := SplitSentences(spaceRe.ReplaceAllString(strings.TrimSpace(text), " "))
		i := 0
		for i < len(sentences) {
			// Greedily pack sentences from position i.
			size := 0
			n := 0
			for j := i; j < len(sentences); j++ {
				add := len(sentences[j])
				if n > 0 {
					add++ // joining space
				}
				if size+add > cfg.ChunkSize && n > 0 {
					break
				}
				size += add
				n++
			}
			if n == 0 {
				i++
				continue
			}
			if !yield(strings.Join(sentences[i:i+n], " ")) {
				return
			}

			// Count backwards how many whole sentences of this chunk fit
			// within the overlap budget; the next chunk starts there.
			overlap := 0
			overlapSize := 0
			for k := i + n - 1; k >= i && cfg.ChunkOverlap > 0; k-- {
				add := len(sentences[k])
				if k < i+n-1 {
					add++
				}
				if overlapSize+add > cfg.ChunkOverlap {
					break
				}
				overlapSize += add
				overlap++
			}
			next := i + n - overlap
			if next <= i {
				next = i + 1 // always make progress
			}
			i = next
		}
	}
}

// SplitAll collects the chunk sequence into a slice.
func SplitAll(text string, cfg Config) []string {
	var out []string
	for chunk := range Split(text, cfg) {
		out = append(out, chunk)
	}
	return out
}

// SplitSentences does sentence splitting on terminal punctuation followed by
// whitespace and an upper-case letter. Lone-capital abbreviations such as
// "J. Smith" do not end a sentence.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if !isTerminal(runes[i]) {
			continue
		}
		if !startsNewSentence(runes, i) {
			continue
		}
		if runes[i] == '.' && isAbbreviation(runes, i) {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
		// Skip the separating whitespace.
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// startsNewSentence reports whether position i is followed by whitespace and
// then an upper-case letter.
func startsNewSentence(runes []rune, i int) bool {
	j := i + 1
	if j >= len(runes) || !unicode.IsSpace(runes[j]) {
		return false
	}
	for j < len(runes) && unicode.IsSpace(runes[j]) {
		j++
	}
	return j < len(runes) && unicode.IsUpper(runes[j])
}

// isAbbreviation guards against initials: a period preceded by a single
// upper-case letter ("J." or "e.g" style runs) is not a sentence end.
func isAbbreviation(runes []rune, i int) bool {
	if i >= 1 && unicode.IsUpper(runes[i-1]) {
		return i < 2 || !unicode.IsLetter(runes[i-2])
	}
	return false
}

// WithContext prefixes a chunk with the fixed-format header identifying its
// owner, so retrieved text is readable without a metadata lookup. The header
// is part of the stored text, not metadata.
func WithContext(docTitle, section, chunk string) string {
	if section == "" {
		return fmt.Sprintf("Paper: %s\n%s", docTitle, chunk)
	}
	return fmt.Sprintf("Paper: %s | Section: %s\n%s", docTitle, section, chunk)
}
