// Package search defines the request/response contract for the semantic
// search collaborator and adapts the transcript index to it.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rcliao/rapport/internal/embedding"
	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/store"
)

// Query is one search request scoped to a relationship.
type Query struct {
	Text       string
	MaxResults int
	Timeout    time.Duration
	Scope      string
}

// Result is an ordered list of snippets. Snippets is empty whenever Kind is
// not model.KindNone.
type Result struct {
	Snippets []string
	Kind     model.ErrorKind
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Kind == model.KindNone }

// Searcher is the semantic search collaborator.
type Searcher interface {
	Search(ctx context.Context, q Query) Result
}

// Index is the subset of the transcript index the searcher needs.
type Index interface {
	Search(ctx context.Context, p store.SearchParams) ([]store.SearchResult, error)
}

// IndexSearcher serves queries from the local transcript index, optionally
// reranking hits by embedding similarity.
type IndexSearcher struct {
	index    Index
	embedder embedding.Embedder
	log      *slog.Logger
}

// NewIndexSearcher returns a searcher over idx. embedder may be nil.
func NewIndexSearcher(idx Index, embedder embedding.Embedder, log *slog.Logger) *IndexSearcher {
	return &IndexSearcher{index: idx, embedder: embedder, log: log}
}

// Search runs q against the index within q.Timeout. It never returns a Go
// error; failures come back as an empty Result with a Kind.
func (s *IndexSearcher) Search(ctx context.Context, q Query) Result {
	if strings.TrimSpace(q.Text) == "" || q.MaxResults <= 0 {
		return Result{Kind: model.KindInvalid}
	}
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	type outcome struct {
		hits []store.SearchResult
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		hits, err := s.index.Search(ctx, store.SearchParams{NS: q.Scope, Query: q.Text, Limit: q.MaxResults})
		done <- outcome{hits, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	if out.err != nil {
		kind := model.KindUnavailable
		if errors.Is(out.err, context.DeadlineExceeded) {
			kind = model.KindTimeout
		}
		s.log.Warn("index search failed", "query", q.Text, "kind", kind, "err", out.err)
		return Result{Kind: kind}
	}

	snippets := make([]string, 0, len(out.hits))
	for _, h := range out.hits {
		text := h.Content
		if h.MatchChunk != nil {
			text = h.MatchChunk.Text
		}
		snippets = append(snippets, text)
	}

	if s.embedder != nil && ctx.Err() == nil {
		ranked, err := embedding.Rerank(ctx, s.embedder, q.Text, snippets)
		if err != nil {
			s.log.Warn("rerank skipped", "err", err)
		}
		snippets = ranked
	}

	if len(snippets) > q.MaxResults {
		snippets = snippets[:q.MaxResults]
	}
	return Result{Snippets: snippets, Kind: model.KindNone}
}

// Disabled is a Searcher that is always unavailable.
type Disabled struct{}

func (Disabled) Search(context.Context, Query) Result { return Result{Kind: model.KindUnavailable} }
