package idle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/rapport/internal/model"
)

// sqliteBackend keeps one row per relationship in an embedded database.
type sqliteBackend struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

type sqliteRepository struct {
	*guarded
	db *sql.DB
}

// NewSQLiteRepository opens or creates the state database at dbPath.
func NewSQLiteRepository(dbPath string, log *slog.Logger, now func() time.Time) (Repository, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS idle_state (
		id                 TEXT PRIMARY KEY,
		last_interaction   TEXT NOT NULL,
		last_check_in      TEXT,
		relationship_start TEXT NOT NULL,
		check_in_count     INTEGER NOT NULL DEFAULT 0,
		questions_asked    TEXT
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	b := &sqliteBackend{db: db, log: log, now: now}
	return &sqliteRepository{guarded: &guarded{b: b, now: now}, db: db}, nil
}

func (r *sqliteRepository) Close() error {
	return r.db.Close()
}

func (s *sqliteBackend) load(ctx context.Context, id string) (model.IdleState, error) {
	var lastInteraction, start string
	var lastCheckIn, asked sql.NullString
	var st model.IdleState

	err := s.db.QueryRowContext(ctx,
		`SELECT last_interaction, last_check_in, relationship_start, check_in_count, questions_asked
		 FROM idle_state WHERE id = ?`, id).
		Scan(&lastInteraction, &lastCheckIn, &start, &st.CheckInCount, &asked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultIdleState(s.now()), nil
	}
	if err != nil {
		return model.IdleState{}, fmt.Errorf("query idle state: %w", err)
	}

	var perr error
	st.LastInteraction, perr = time.Parse(time.RFC3339Nano, lastInteraction)
	if perr == nil {
		st.RelationshipStart, perr = time.Parse(time.RFC3339Nano, start)
	}
	if perr == nil && lastCheckIn.Valid {
		st.LastCheckIn, perr = time.Parse(time.RFC3339Nano, lastCheckIn.String)
	}
	if perr == nil && asked.Valid {
		perr = json.Unmarshal([]byte(asked.String), &st.QuestionsAsked)
	}
	if perr != nil {
		s.log.Warn("idle state row unreadable, reinitializing", "id", id, "err", perr)
		return model.DefaultIdleState(s.now()), nil
	}
	return st, nil
}

func (s *sqliteBackend) save(ctx context.Context, id string, st model.IdleState) error {
	var lastCheckIn *string
	if !st.LastCheckIn.IsZero() {
		v := st.LastCheckIn.Format(time.RFC3339Nano)
		lastCheckIn = &v
	}
	var asked *string
	if len(st.QuestionsAsked) > 0 {
		b, err := json.Marshal(st.QuestionsAsked)
		if err != nil {
			return fmt.Errorf("encode questions asked: %w", err)
		}
		v := string(b)
		asked = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idle_state (id, last_interaction, last_check_in, relationship_start, check_in_count, questions_asked)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			last_interaction = excluded.last_interaction,
			last_check_in = excluded.last_check_in,
			relationship_start = excluded.relationship_start,
			check_in_count = excluded.check_in_count,
			questions_asked = excluded.questions_asked`,
		id, st.LastInteraction.Format(time.RFC3339Nano), lastCheckIn,
		st.RelationshipStart.Format(time.RFC3339Nano), st.CheckInCount, asked)
	if err != nil {
		return fmt.Errorf("upsert idle state: %w", err)
	}
	return nil
}
