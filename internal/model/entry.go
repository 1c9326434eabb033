// Package model defines the core relationship and index data types.
package model

import "time"

// Entry is one indexed piece of conversation text.
type Entry struct {
	ID         string    `json:"id"`
	NS         string    `json:"ns"`
	Key        string    `json:"key"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkCount int       `json:"chunks,omitempty"`
}

// Chunk represents an internal text chunk of an entry.
type Chunk struct {
	ID        string `json:"id"`
	EntryID   string `json:"entry_id"`
	Seq       int    `json:"seq"`
	Text      string `json:"text"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// ValidRoles are the speaker roles accepted by the index.
var ValidRoles = map[string]bool{
	"human": true,
	"agent": true,
}
