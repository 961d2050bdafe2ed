// Package extract turns fetched site content into structured business
// insights by running one bounded LLM task per field or custom question.
package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/insight-api/internal/index"
	"github.com/sells-group/insight-api/internal/model"
	"github.com/sells-group/insight-api/internal/monitoring"
	"github.com/sells-group/insight-api/internal/resilience"
	"github.com/sells-group/insight-api/pkg/anthropic"
)

// Run defaults.
const (
	DefaultWorkers      = 4
	DefaultTaskTimeout  = 45 * time.Second
	DefaultMaxQuestions = 5
)

// Snippet bounds keep each task prompt inside a predictable budget.
const (
	maxSnippetLen = 650
	maxSnippets   = 4
)

// minConfidence is the parsed-confidence floor below which an answer is
// recorded as unavailable.
const minConfidence = 0.25

const taskSystemText = "You are a business analyst extracting specific facts about a company from its website content. Answer only from the provided excerpts. Return valid JSON."

const taskPrompt = `Field: %s
Task: %s

Website excerpts:
%s

Answer from the excerpts only. If they do not contain the answer, respond with "unable to determine".
Return a valid JSON object:
{"answer": "<your answer>", "confidence": <0.0-1.0>}`

// Config tunes an extraction run.
type Config struct {
	Workers      int
	TopK         int
	TaskTimeout  time.Duration
	MaxQuestions int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.TopK <= 0 {
		c.TopK = index.DefaultTopK
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = DefaultMaxQuestions
	}
	return c
}

// Extractor runs the per-field insight tasks for one analysis.
type Extractor struct {
	llm       anthropic.Client
	retriever *index.Retriever
	metrics   *monitoring.Collector
	fields    []FieldDef
	cfg       Config
}

// NewExtractor creates an Extractor with the embedded field set. metrics may
// be nil.
func NewExtractor(llm anthropic.Client, retriever *index.Retriever, metrics *monitoring.Collector, cfg Config) (*Extractor, error) {
	fields, err := Fields()
	if err != nil {
		return nil, err
	}
	return &Extractor{
		llm:       llm,
		retriever: retriever,
		metrics:   metrics,
		fields:    fields,
		cfg:       cfg.withDefaults(),
	}, nil
}

// task is one unit of extraction work, either a fixed field or a custom
// question keyed by its own text.
type task struct {
	name         string
	query        string
	instructions string
}

// Run extracts every fixed field plus the custom questions from the record's
// chunks. Each task failure is recorded in its own insight; Run errors only
// when the record has no content or every task failed.
func (e *Extractor) Run(ctx context.Context, rec *model.AnalysisRecord, questions []string) (map[string]model.Insight, error) {
	if len(rec.Chunks) == 0 {
		return nil, eris.New("extract: no content chunks to analyze")
	}

	tasks := e.tasks(questions)
	results := make(map[string]model.Insight, len(tasks))
	failed := 0
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for _, tk := range tasks {
		g.Go(func() error {
			ins, err := e.runTask(gCtx, rec, tk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Warn("extract: task failed",
					zap.String("field", tk.name),
					zap.Error(err),
				)
				failed++
				ins = model.Insight{Unavailable: true, FailureCause: err.Error()}
			}
			results[tk.name] = ins
			return nil // Don't fail the group on individual errors.
		})
	}
	_ = g.Wait()

	// Contact extraction succeeds on pattern matches even with the model
	// down, so it does not count toward the all-failed check.
	if llmTasks := len(tasks) - 1; llmTasks > 0 && failed >= llmTasks {
		return nil, eris.Errorf("extract: all %d extraction tasks failed", failed)
	}

	zap.L().Info("extract: run complete",
		zap.String("key", rec.Key),
		zap.Int("tasks", len(tasks)),
		zap.Int("failed", failed),
	)
	return results, nil
}

// tasks builds the work list: the fixed fields in canonical order, then the
// custom questions capped at the configured maximum.
func (e *Extractor) tasks(questions []string) []task {
	tasks := make([]task, 0, len(e.fields)+e.cfg.MaxQuestions)
	for _, f := range e.fields {
		tasks = append(tasks, task{name: f.Name, query: f.Query, instructions: f.Instructions})
	}

	if len(questions) > e.cfg.MaxQuestions {
		zap.L().Warn("extract: too many custom questions, extras ignored",
			zap.Int("asked", len(questions)),
			zap.Int("max", e.cfg.MaxQuestions),
		)
		questions = questions[:e.cfg.MaxQuestions]
	}
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		tasks = append(tasks, task{
			name:         q,
			query:        q,
			instructions: "Answer the question: " + q,
		})
	}
	return tasks
}

func (e *Extractor) runTask(ctx context.Context, rec *model.AnalysisRecord, tk task) (model.Insight, error) {
	scored, lexical := e.retriever.Retrieve(ctx, rec.Chunks, tk.query, e.cfg.TopK)
	if lexical && e.retriever.Semantic() {
		e.metrics.RecordLexicalFallback()
	}

	snippets, ids, scores := snippetContext(scored)
	if snippets == "" {
		return model.Insight{Unavailable: true, FailureCause: "no relevant content"}, nil
	}

	if tk.name == fieldContactInfo {
		return e.contactTask(ctx, rec, snippets, ids, scores)
	}

	prompt := fmt.Sprintf(taskPrompt, tk.name, tk.instructions, snippets)
	text, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (string, error) {
		tctx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
		return e.llm.Complete(tctx, taskSystemText, []anthropic.Message{{Role: "user", Content: prompt}})
	})
	if err != nil {
		return model.Insight{}, eris.Wrapf(err, "extract: field %q", tk.name)
	}

	answer, confidence, err := parseTaskAnswer(text)
	if err != nil {
		zap.L().Warn("extract: unparseable task answer",
			zap.String("field", tk.name),
			zap.Error(err),
		)
		return model.Insight{Unavailable: true, FailureCause: "unparseable model answer"}, nil
	}

	ins := model.Insight{
		Answer:             answer,
		SupportingChunkIDs: ids,
		RelevanceScores:    scores,
	}
	if confidence < minConfidence || model.IsPlaceholderAnswer(answer) {
		ins.Unavailable = true
	}
	return ins, nil
}

// snippetContext renders the retrieved chunks as numbered excerpts, capped
// in count and per-snippet length, and returns the ids and scores of the
// chunks actually included.
func snippetContext(scored []index.Scored) (string, []string, []float64) {
	var b strings.Builder
	var ids []string
	var scores []float64
	seen := make(map[string]struct{}, maxSnippets)

	for _, s := range scored {
		if len(ids) == maxSnippets {
			break
		}
		text := truncateRunes(strings.TrimSpace(s.Chunk.Text), maxSnippetLen)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		fmt.Fprintf(&b, "[%d] (from %s)\n%s\n\n", len(ids)+1, s.Chunk.SourceURL, text)
		ids = append(ids, s.Chunk.ID)
		scores = append(scores, s.Score)
	}
	return strings.TrimSpace(b.String()), ids, scores
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
