package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/model"
)

// DefaultTopK is the number of chunks returned when the caller passes no k.
const DefaultTopK = 5

// Embedder turns texts into vectors. pkg/deepinfra satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Scored pairs a chunk with its relevance to a query.
type Scored struct {
	Chunk model.Chunk
	Score float64
}

// Retriever ranks chunks against queries. A nil embedder means lexical
// scoring only.
type Retriever struct {
	embedder Embedder
}

// NewRetriever creates a Retriever. embedder may be nil.
func NewRetriever(embedder Embedder) *Retriever {
	return &Retriever{embedder: embedder}
}

// Semantic reports whether an embedder is configured. Lexical scoring with
// no embedder is the configured mode, not a degradation, so callers use this
// to decide whether a lexical retrieval should count as a fallback.
func (r *Retriever) Semantic() bool {
	return r.embedder != nil
}

// EmbedChunks computes and attaches a vector per chunk. With a nil embedder
// it is a no-op. On error the chunks keep nil vectors and retrieval degrades
// to lexical scoring.
func (r *Retriever) EmbedChunks(ctx context.Context, chunks []model.Chunk) error {
	if r.embedder == nil || len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return eris.Wrap(err, "index: embed chunks")
	}
	if len(vectors) != len(chunks) {
		return eris.Errorf("index: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}
	return nil
}

// Retrieve returns the top k chunks for the query, best first. The second
// return reports whether lexical scoring was used instead of embeddings;
// the call itself never fails. Ties rank the later chunk first.
func (r *Retriever) Retrieve(ctx context.Context, chunks []model.Chunk, query string, k int) ([]Scored, bool) {
	if k <= 0 {
		k = DefaultTopK
	}
	if len(chunks) == 0 || strings.TrimSpace(query) == "" {
		return nil, false
	}

	scored, lexical := r.score(ctx, chunks, query)

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Seq > scored[j].Chunk.Seq
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, lexical
}

func (r *Retriever) score(ctx context.Context, chunks []model.Chunk, query string) ([]Scored, bool) {
	if r.embedder != nil && allEmbedded(chunks) {
		vectors, err := r.embedder.Embed(ctx, []string{query})
		if err == nil && len(vectors) == 1 {
			scored := make([]Scored, len(chunks))
			for i, c := range chunks {
				scored[i] = Scored{Chunk: c, Score: cosine(vectors[0], c.Vector)}
			}
			return scored, false
		}
		zap.L().Debug("index: query embedding failed, scoring lexically", zap.Error(err))
	}

	queryTerms := significantTerms(query)
	scored := make([]Scored, len(chunks))
	for i, c := range chunks {
		scored[i] = Scored{Chunk: c, Score: lexicalScore(queryTerms, c.Text)}
	}
	return scored, true
}

func allEmbedded(chunks []model.Chunk) bool {
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return false
		}
	}
	return true
}

// cosine computes cosine similarity, accumulating in float64.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// lexicalScore is the share of query terms present in the text.
func lexicalScore(queryTerms map[string]struct{}, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	textTerms := significantTerms(text)
	shared := 0
	for t := range queryTerms {
		if _, ok := textTerms[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(queryTerms))
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "any": {}, "can": {}, "had": {}, "has": {},
	"have": {}, "was": {}, "were": {}, "will": {}, "with": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "they": {}, "their": {},
	"there": {}, "from": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "how": {}, "why": {}, "your": {}, "our": {},
	"its": {}, "about": {}, "into": {}, "over": {}, "than": {},
	"then": {}, "them": {}, "does": {}, "been": {}, "being": {},
	"more": {}, "most": {}, "some": {}, "such": {}, "only": {},
	"other": {}, "also": {}, "very": {}, "just": {}, "like": {},
}

// significantTerms lowercases, splits on non-alphanumerics, and keeps terms
// of three or more characters that are not stopwords.
func significantTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		terms[f] = struct{}{}
	}
	return terms
}
