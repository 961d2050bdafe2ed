// Package index chunks page text and ranks chunks against a query, by
// embedding cosine similarity when an embedder is configured and by lexical
// term overlap otherwise.
package index

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sells-group/insight-api/internal/model"
)

const (
	// DefaultChunkSize bounds one chunk, overlap included.
	DefaultChunkSize = 2000
	// DefaultOverlap is the margin repeated from the previous chunk.
	DefaultOverlap = 200

	// minChunkLen drops fragments too short to carry a fact.
	minChunkLen = 40
)

// Splitter cuts page text into retrieval chunks.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a Splitter. Non-positive arguments take the defaults;
// an overlap that would swallow the whole budget is clamped to a tenth of it.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split cuts text into chunks of at most the configured size, preferring
// paragraph boundaries, then sentence boundaries, then hard cuts. Each chunk
// after the first starts with the tail of the previous one so a fact
// straddling a boundary stays retrievable. Fragments shorter than 40
// characters are dropped. Seq increases in document order.
func (s *Splitter) Split(text, sourceURL string) []model.Chunk {
	segments := s.segment(text)

	chunks := make([]model.Chunk, 0, len(segments))
	prev := ""
	for _, seg := range segments {
		body := seg
		if prev != "" && s.overlap > 0 {
			body = tailChars(prev, s.overlap) + "\n" + seg
		}
		chunks = append(chunks, model.Chunk{
			ID:        uuid.NewString(),
			SourceURL: sourceURL,
			Seq:       len(chunks),
			Text:      body,
		})
		prev = seg
	}
	return chunks
}

// segment packs paragraphs, then sentences, into budget-sized pieces. The
// budget leaves room for the overlap prefix and its joining newline so the
// final chunk text stays within size.
func (s *Splitter) segment(text string) []string {
	budget := s.size
	if s.overlap > 0 {
		budget = s.size - s.overlap - 1
	}

	var segments []string
	var current strings.Builder

	flush := func() {
		seg := strings.TrimSpace(current.String())
		current.Reset()
		if len(seg) >= minChunkLen {
			segments = append(segments, seg)
		}
	}

	appendPiece := func(piece, sep string) {
		if current.Len() > 0 && current.Len()+len(sep)+len(piece) > budget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
	}

	for _, para := range splitParagraphs(text) {
		if len(para) <= budget {
			appendPiece(para, "\n\n")
			continue
		}
		// Paragraph alone blows the budget: fall back to sentences.
		for _, sentence := range splitSentences(para) {
			if len(sentence) <= budget {
				appendPiece(sentence, " ")
				continue
			}
			// A single oversized sentence gets hard cuts.
			for _, piece := range hardCut(sentence, budget) {
				appendPiece(piece, " ")
			}
		}
	}
	flush()

	return segments
}

func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// splitSentences cuts on terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// hardCut slices an unbreakable run into budget-sized pieces on rune
// boundaries.
func hardCut(text string, budget int) []string {
	var pieces []string
	for len(text) > budget {
		cut := budget
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = budget
		}
		pieces = append(pieces, strings.TrimSpace(text[:cut]))
		text = text[cut:]
	}
	if t := strings.TrimSpace(text); t != "" {
		pieces = append(pieces, t)
	}
	return pieces
}

// tailChars returns the last n bytes of s, shrunk to a rune boundary.
func tailChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
