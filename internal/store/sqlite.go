package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/rapport/internal/chunker"
	"github.com/rcliao/rapport/internal/model"
)

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id          TEXT PRIMARY KEY,
		ns          TEXT NOT NULL,
		key         TEXT NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		tags        TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_ns_created ON entries(ns, created_at DESC);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_ns_key ON entries(ns, key);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		entry_id    TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		text        TEXT NOT NULL,
		start_line  INTEGER,
		end_line    INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_entry ON chunks(entry_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content=chunks,
		content_rowid=rowid
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers keep the index in sync with chunks
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.db.Exec(t); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, p PutParams) (*model.Entry, error) {
	content := strings.TrimSpace(p.Content)
	if p.NS == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if !model.ValidRoles[p.Role] {
		return nil, fmt.Errorf("invalid role %q", p.Role)
	}

	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	at = model.NormalizeTime(at)
	id := s.newID(at)

	key := p.Key
	if key == "" {
		key = "turn/" + id
	}

	var tagsJSON *string
	if len(p.Tags) > 0 {
		b, _ := json.Marshal(p.Tags)
		t := string(b)
		tagsJSON = &t
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries (id, ns, key, role, content, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.NS, key, p.Role, content, tagsJSON, at.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	chunks := chunker.Chunk(content, chunker.DefaultOptions())
	for i, c := range chunks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, entry_id, seq, text, start_line, end_line)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.newID(at), id, i, c.Text, c.StartLine, c.EndLine)
		if err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Entry{
		ID:         id,
		NS:         p.NS,
		Key:        key,
		Role:       p.Role,
		Content:    content,
		Tags:       p.Tags,
		CreatedAt:  at,
		ChunkCount: len(chunks),
	}, nil
}

func (s *SQLiteStore) DeleteNS(ctx context.Context, ns string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE entry_id IN (SELECT id FROM entries WHERE ns = ?)`, ns); err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE ns = ?`, ns)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const entryColumns = `e.id, e.ns, e.key, e.role, e.content, e.tags, e.created_at`

func scanEntry(row scanner, extra ...interface{}) (model.Entry, error) {
	var e model.Entry
	var tagsJSON sql.NullString
	var createdAt string

	dest := append([]interface{}{&e.ID, &e.NS, &e.Key, &e.Role, &e.Content, &tagsJSON, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return e, err
	}

	e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &e.Tags)
	}
	return e, nil
}
