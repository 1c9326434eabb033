package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPut(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	at := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	e, err := s.Put(ctx, PutParams{NS: "rel", Role: "human", Content: "  let's ship the migration  ", At: at})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if e.ID == "" {
		t.Error("expected non-empty ID")
	}
	if e.Key != "turn/"+e.ID {
		t.Errorf("expected generated key, got %q", e.Key)
	}
	if e.Content != "let's ship the migration" {
		t.Errorf("expected trimmed content, got %q", e.Content)
	}
	if e.ChunkCount != 1 {
		t.Errorf("expected 1 chunk, got %d", e.ChunkCount)
	}
	if !e.CreatedAt.Equal(at.Truncate(time.Millisecond)) {
		t.Errorf("expected ms-truncated time, got %v", e.CreatedAt)
	}
}

func TestPut_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tests := []struct {
		name string
		p    PutParams
	}{
		{"no namespace", PutParams{Role: "human", Content: "x"}},
		{"empty content", PutParams{NS: "rel", Role: "human", Content: "   "}},
		{"bad role", PutParams{NS: "rel", Role: "system", Content: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Put(ctx, tt.p); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPut_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Put(ctx, PutParams{NS: "rel", Key: "k", Role: "agent", Content: "one"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, PutParams{NS: "rel", Key: "k", Role: "agent", Content: "two"}); err == nil {
		t.Error("expected unique constraint error")
	}
}

func TestDeleteNS(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, PutParams{NS: "a", Role: "human", Content: "alpha deploy"})
	s.Put(ctx, PutParams{NS: "a", Role: "agent", Content: "alpha reply"})
	s.Put(ctx, PutParams{NS: "b", Role: "human", Content: "beta deploy"})

	n, err := s.DeleteNS(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	results, _ := s.Search(ctx, SearchParams{Query: "deploy"})
	if len(results) != 1 || results[0].NS != "b" {
		t.Errorf("expected only namespace b to remain, got %+v", results)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src.Put(ctx, PutParams{NS: "rel", Role: "human", Content: "first", Tags: []string{"human"}, At: base})
	src.Put(ctx, PutParams{NS: "rel", Role: "agent", Content: "second", At: base.Add(time.Minute)})
	src.Put(ctx, PutParams{NS: "other", Role: "human", Content: "third", At: base})

	entries, err := src.ExportAll(ctx, "rel")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Content != "first" || len(entries[0].Tags) != 1 {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}

	dst := newTestStore(t)
	n, err := dst.Import(ctx, entries)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}

	// Importing again skips existing keys
	n, _ = dst.Import(ctx, entries)
	if n != 0 {
		t.Errorf("expected 0 on re-import, got %d", n)
	}

	got, _ := dst.ExportAll(ctx, "")
	if len(got) != 2 || !got[1].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("expected timestamps preserved, got %+v", got)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "stats.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Put(ctx, PutParams{NS: "rel", Role: "human", Content: "hello"})
	s.Put(ctx, PutParams{NS: "rel", Role: "agent", Content: "hi there"})

	st, err := s.Stats(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalEntries != 2 || st.TotalChunks != 2 {
		t.Errorf("expected 2 entries and 2 chunks, got %d/%d", st.TotalEntries, st.TotalChunks)
	}
	if len(st.Namespaces) != 1 || st.Namespaces[0].Human != 1 {
		t.Errorf("unexpected namespace stats: %+v", st.Namespaces)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected db file: %v", err)
	}
}
