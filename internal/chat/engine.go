// Package chat answers grounded follow-up questions about an analyzed site.
// Each turn is stateless on the server: the caller supplies the history, and
// the engine re-derives the turn state from the question and the cached
// record alone, fetching a missing page mid-conversation when a rule fires.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/cache"
	"github.com/sells-group/insight-api/internal/index"
	"github.com/sells-group/insight-api/internal/model"
	"github.com/sells-group/insight-api/internal/monitoring"
	"github.com/sells-group/insight-api/internal/resilience"
	"github.com/sells-group/insight-api/internal/scrape"
	"github.com/sells-group/insight-api/pkg/anthropic"
)

// State classifies one conversation turn.
type State string

const (
	// StateAnswerable means the cached content was enough.
	StateAnswerable State = "ANSWERABLE"
	// StateNeedsAugmentation means a rule fired but the extra page could not
	// be brought in, so the answer fell back to cached content.
	StateNeedsAugmentation State = "NEEDS_AUGMENTATION"
	// StateAugmented means a page was fetched and indexed this turn.
	StateAugmented State = "AUGMENTED"
)

// Sentinel errors the transport layer maps to response codes.
var (
	ErrNoAnalysis     = eris.New("chat: no analysis for url")
	ErrNotReady       = eris.New("chat: analysis still building")
	ErrAnalysisFailed = eris.New("chat: analysis failed, re-analyze before chatting")
)

// Turn is one prior exchange, supplied by the caller with each request.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Result is the outcome of one turn.
type Result struct {
	Answer       string   `json:"answer"`
	State        State    `json:"state"`
	UsedChunkIDs []string `json:"used_chunk_ids,omitempty"`
	AugmentedURL string   `json:"augmented_url,omitempty"`
	Degraded     bool     `json:"degraded,omitempty"`
}

// PageFetcher fetches one page. *scrape.Chain satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scrape.PageContent, error)
}

// DefaultHistoryWindow is how many prior turns stay in the prompt.
const DefaultHistoryWindow = 5

// systemStatic is the invariant part of the system prompt. It goes out in a
// cache-controlled block so the provider reuses the processed prefix across
// turns and sites.
const systemStatic = `You are a business analyst answering questions about a company using only the provided website excerpts and the conversation so far. Quote concrete details when the excerpts contain them. When the excerpts do not contain the answer, say so plainly instead of guessing.`

const answerPrompt = `Website excerpts:
%s

Question: %s`

// Config carries the tunables for the engine.
type Config struct {
	Model         string
	MaxTokens     int64
	TopK          int
	HistoryWindow int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = anthropic.DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = anthropic.DefaultMaxTokens
	}
	if c.TopK <= 0 {
		c.TopK = index.DefaultTopK
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	return c
}

// Engine runs the conversation loop over cached analyses.
type Engine struct {
	llm       anthropic.Client
	retriever *index.Retriever
	splitter  *index.Splitter
	fetcher   PageFetcher
	analyses  *cache.Cache
	metrics   *monitoring.Collector
	rules     []Rule
	cfg       Config
}

// NewEngine builds an engine with the embedded rule table.
func NewEngine(llm anthropic.Client, retriever *index.Retriever, splitter *index.Splitter, fetcher PageFetcher, analyses *cache.Cache, metrics *monitoring.Collector, cfg Config) (*Engine, error) {
	rules, err := Rules()
	if err != nil {
		return nil, err
	}
	return &Engine{
		llm:       llm,
		retriever: retriever,
		splitter:  splitter,
		fetcher:   fetcher,
		analyses:  analyses,
		metrics:   metrics,
		rules:     rules,
		cfg:       cfg.withDefaults(),
	}, nil
}

// Ask answers one question about an analyzed site.
func (e *Engine) Ask(ctx context.Context, rawURL, question string, history []Turn) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, eris.New("chat: empty question")
	}

	rec, ok := e.analyses.Get(rawURL)
	if !ok {
		return nil, ErrNoAnalysis
	}
	switch rec.Status {
	case model.StatusPending:
		return nil, ErrNotReady
	case model.StatusFailed:
		return nil, ErrAnalysisFailed
	}

	state := StateAnswerable
	augmentedURL := ""
	fresh := map[string]struct{}{}

	if rule, candidate := e.augmentationTarget(rec, question); rule != nil {
		state = StateNeedsAugmentation
		ids, err := e.augment(ctx, rawURL, candidate)
		if err != nil {
			zap.L().Warn("chat: augmentation failed, answering from cached content",
				zap.String("key", rec.Key),
				zap.String("rule", rule.Name),
				zap.String("url", candidate),
				zap.Error(err))
			state = StateAnswerable
		} else {
			state = StateAugmented
			augmentedURL = candidate
			for _, id := range ids {
				fresh[id] = struct{}{}
			}
			// Re-read so retrieval sees the appended chunks.
			if updated, ok := e.analyses.Get(rawURL); ok {
				rec = updated
			}
			e.metrics.RecordAugmentation()
			zap.L().Info("chat: augmented",
				zap.String("key", rec.Key),
				zap.String("rule", rule.Name),
				zap.String("url", candidate),
				zap.Int("new_chunks", len(ids)))
		}
	}

	scored, lexical := e.retriever.Retrieve(ctx, rec.Chunks, question, e.cfg.TopK)
	degraded := lexical && e.retriever.Semantic()
	if degraded {
		e.metrics.RecordLexicalFallback()
	}

	answer, usedIDs, err := e.answer(ctx, rec, question, history, scored, fresh)
	if err != nil {
		return nil, err
	}

	e.metrics.RecordChatTurn()
	return &Result{
		Answer:       answer,
		State:        state,
		UsedChunkIDs: usedIDs,
		AugmentedURL: augmentedURL,
		Degraded:     degraded,
	}, nil
}

// augmentationTarget returns the first rule the question triggers together
// with the page it selects, or nil when the cached content suffices. A rule
// whose selected page is already in the record does not trigger again.
func (e *Engine) augmentationTarget(rec *model.AnalysisRecord, question string) (*Rule, string) {
	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.Matches(question) {
			continue
		}
		candidate := candidateURL(rec, rule)
		if candidate == "" || rec.HasPage(candidate) {
			continue
		}
		return rule, candidate
	}
	return nil, ""
}

// candidateURL picks the page for a rule: the first link in the rule's
// categories whose href or anchor contains the path hint, else the first
// contact link, else a guessed path under the analyzed base.
func candidateURL(rec *model.AnalysisRecord, rule *Rule) string {
	hint := strings.ToLower(rule.PathHint)
	if hint != "" {
		for _, cat := range rule.Categories {
			for _, l := range rec.Links[model.LinkCategory(cat)] {
				if strings.Contains(strings.ToLower(l.HRef), hint) ||
					strings.Contains(strings.ToLower(l.Anchor), hint) {
					return l.HRef
				}
			}
		}
	}
	if contacts := rec.Links[model.LinkContact]; len(contacts) > 0 {
		return contacts[0].HRef
	}
	return rec.Key + "/" + rule.Name + "/"
}

// augment fetches one page into the record and returns the IDs of the chunks
// it added. Zero IDs with a nil error means another turn appended the same
// page first.
func (e *Engine) augment(ctx context.Context, rawURL, candidate string) ([]string, error) {
	content, err := e.fetcher.Fetch(ctx, candidate)
	if err != nil {
		return nil, err
	}

	chunks := e.splitter.Split(content.Text, candidate)
	if len(chunks) == 0 {
		return nil, eris.Errorf("chat: no usable content at %s", candidate)
	}
	if err := e.retriever.EmbedChunks(ctx, chunks); err != nil {
		zap.L().Warn("chat: augmented chunks not embedded, retrieval stays lexical this turn",
			zap.String("url", candidate),
			zap.Error(err))
	}

	added, err := e.analyses.AppendPage(rawURL, candidate, content.Text, content.Links, chunks)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, nil
	}

	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	return ids, nil
}

func (e *Engine) answer(ctx context.Context, rec *model.AnalysisRecord, question string, history []Turn, scored []index.Scored, fresh map[string]struct{}) (string, []string, error) {
	snippets, usedIDs := snippetBlock(scored, fresh)
	if snippets == "" {
		snippets = "(no relevant excerpts were found)"
	}

	msgs := historyMessages(history, e.cfg.HistoryWindow)
	msgs = append(msgs, anthropic.Message{
		Role:    "user",
		Content: fmt.Sprintf(answerPrompt, snippets, question),
	})

	system := anthropic.BuildCachedSystemBlocks(systemStatic)
	system = append(system, anthropic.SystemBlock{
		Text: fmt.Sprintf("The company under discussion was analyzed from %s.", rec.Key),
	})

	resp, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.cfg.Model,
			MaxTokens: e.cfg.MaxTokens,
			System:    system,
			Messages:  msgs,
		})
	})
	if err != nil {
		return "", nil, eris.Wrap(err, "chat: answer")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", nil, eris.New("chat: model returned an empty answer")
	}
	return text, usedIDs, nil
}

// snippetBlock renders the retrieved chunks with their source URLs, marking
// chunks appended this turn as live content.
func snippetBlock(scored []index.Scored, fresh map[string]struct{}) (string, []string) {
	var b strings.Builder
	ids := make([]string, 0, len(scored))
	for i, s := range scored {
		label := s.Chunk.SourceURL
		if _, live := fresh[s.Chunk.ID]; live {
			label += ", fetched live this turn"
		}
		fmt.Fprintf(&b, "[%d] (from %s)\n%s\n\n", i+1, label, strings.TrimSpace(s.Chunk.Text))
		ids = append(ids, s.Chunk.ID)
	}
	return strings.TrimSpace(b.String()), ids
}

// historyMessages converts caller-supplied history into alternating user and
// assistant messages, keeping only the most recent window turns.
func historyMessages(history []Turn, window int) []anthropic.Message {
	if len(history) > window {
		history = history[len(history)-window:]
	}
	msgs := make([]anthropic.Message, 0, len(history)*2+1)
	for _, t := range history {
		q := strings.TrimSpace(t.Question)
		a := strings.TrimSpace(t.Answer)
		if q == "" || a == "" {
			continue
		}
		msgs = append(msgs,
			anthropic.Message{Role: "user", Content: q},
			anthropic.Message{Role: "assistant", Content: a},
		)
	}
	return msgs
}
