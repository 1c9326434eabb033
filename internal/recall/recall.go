// Package recall builds the QueryContext for a check-in: parallel intent
// queries against the search collaborator first, local documents only when
// every query comes back empty.
package recall

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/search"
)

// Intent names one thing a check-in wants to remember.
type Intent string

const (
	IntentTasks     Intent = "tasks"
	IntentThreads   Intent = "threads"
	IntentTopic     Intent = "topic"
	IntentDecisions Intent = "decisions"
)

// DefaultIntents is the full intent set.
var DefaultIntents = []Intent{IntentTasks, IntentThreads, IntentTopic, IntentDecisions}

// Queries maps each intent to the text sent to the searcher.
var Queries = map[Intent]string{
	IntentTasks:     "working on need to task finish build",
	IntentThreads:   "later revisit come back open question unresolved",
	IntentTopic:     "talked about discussing conversation",
	IntentDecisions: "decided decision let's go with chose",
}

// MaxSnippetRunes bounds every snippet regardless of which tier produced it.
const MaxSnippetRunes = 200

const (
	SourceSemantic = "semantic"
	SourceFallback = "fallback"
)

// Fallback produces context without the network.
type Fallback interface {
	Read() model.QueryContext
}

// Options configures an Extractor.
type Options struct {
	Scope      string
	MaxResults int
	Timeout    time.Duration
}

// Extractor runs the two-tier pipeline.
type Extractor struct {
	searcher search.Searcher
	fallback Fallback
	opts     Options
	log      *slog.Logger
}

// New returns an extractor. A nil searcher skips the primary tier.
func New(s search.Searcher, fb Fallback, opts Options, log *slog.Logger) *Extractor {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 3
	}
	return &Extractor{searcher: s, fallback: fb, opts: opts, log: log}
}

// Extract returns context for the given intents. It never fails: collaborator
// errors become empty results.
func (e *Extractor) Extract(ctx context.Context, intents []Intent) model.QueryContext {
	if len(intents) == 0 {
		intents = DefaultIntents
	}

	if e.searcher != nil {
		qc := e.primary(ctx, intents)
		if !qc.Empty() {
			qc.Source = SourceSemantic
			return qc
		}
		e.log.Debug("primary recall empty, using fallback")
	}

	if e.fallback == nil {
		return model.QueryContext{}
	}
	qc := normalize(e.fallback.Read(), e.opts.MaxResults)
	if !qc.Empty() {
		qc.Source = SourceFallback
	}
	return qc
}

func (e *Extractor) primary(ctx context.Context, intents []Intent) model.QueryContext {
	results := make([][]string, len(intents))

	var wg sync.WaitGroup
	for i, in := range intents {
		wg.Add(1)
		go func(i int, in Intent) {
			defer wg.Done()
			r := e.searcher.Search(ctx, search.Query{
				Text:       Queries[in],
				MaxResults: e.opts.MaxResults,
				Timeout:    e.opts.Timeout,
				Scope:      e.opts.Scope,
			})
			if !r.OK() {
				e.log.Warn("recall query failed", "intent", in, "kind", r.Kind)
				return
			}
			results[i] = r.Snippets
		}(i, in)
	}
	wg.Wait()

	var qc model.QueryContext
	for i, in := range intents {
		snippets := results[i]
		switch in {
		case IntentTasks:
			qc.RecentTasks = snippets
		case IntentThreads:
			qc.OpenThreads = snippets
		case IntentDecisions:
			qc.RecentDecisions = snippets
		case IntentTopic:
			if len(snippets) > 0 {
				qc.LastTopic = snippets[0]
			}
		}
	}
	return normalize(qc, e.opts.MaxResults)
}

// normalize gives both tiers the same snippet shape: single-line, trimmed,
// clipped, deduplicated and capped per field.
func normalize(qc model.QueryContext, limit int) model.QueryContext {
	return model.QueryContext{
		RecentTasks:     normalizeAll(qc.RecentTasks, limit),
		OpenThreads:     normalizeAll(qc.OpenThreads, limit),
		RecentDecisions: normalizeAll(qc.RecentDecisions, limit),
		LastTopic:       Snippet(qc.LastTopic),
		Source:          qc.Source,
	}
}

func normalizeAll(in []string, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range in {
		s = Snippet(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Snippet collapses whitespace, strips markdown quote and bullet markers and
// clips to MaxSnippetRunes.
func Snippet(s string) string {
	fields := strings.Fields(s)
	for len(fields) > 0 && (fields[0] == ">" || fields[0] == "-" || fields[0] == "*") {
		fields = fields[1:]
	}
	s = strings.Join(fields, " ")
	if utf8.RuneCountInString(s) <= MaxSnippetRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:MaxSnippetRunes-3])) + "..."
}
