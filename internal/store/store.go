// Package store provides the transcript index: conversation turns chunked
// into SQLite with an FTS5 table over the chunks.
package store

import (
	"context"
	"time"

	"github.com/rcliao/rapport/internal/model"
)

// PutParams holds parameters for indexing one entry.
type PutParams struct {
	NS      string
	Key     string // generated as turn/<ulid> when empty
	Role    string
	Content string
	Tags    []string
	At      time.Time // zero means now
}

// SearchParams holds parameters for searching the index.
type SearchParams struct {
	NS    string
	Query string
	Tags  []string
	Limit int
}

// SearchResult wraps an entry with the chunk that matched.
type SearchResult struct {
	model.Entry
	MatchChunk *model.Chunk `json:"match_chunk,omitempty"`
	Score      float64      `json:"score"`
}

// Store defines the index interface.
type Store interface {
	// Put indexes an entry and returns it with its ID and chunk count.
	Put(ctx context.Context, p PutParams) (*model.Entry, error)

	// Search returns entries whose chunks match the query, best first.
	Search(ctx context.Context, p SearchParams) ([]SearchResult, error)

	// DeleteNS removes every entry in a namespace and reports how many.
	DeleteNS(ctx context.Context, ns string) (int, error)

	// Close closes the store.
	Close() error
}
