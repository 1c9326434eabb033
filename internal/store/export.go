package store

import (
	"context"
	"strings"

	"github.com/rcliao/rapport/internal/model"
)

// ExportAll returns all entries, optionally filtered by namespace, oldest first.
func (s *SQLiteStore) ExportAll(ctx context.Context, ns string) ([]model.Entry, error) {
	var where []string
	var args []interface{}

	if ns != "" {
		where = append(where, "e.ns = ?")
		args = append(args, ns)
	}

	query := `SELECT ` + entryColumns + ` FROM entries e`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY e.ns, e.created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Import indexes entries from an export, keeping their keys and timestamps.
// Entries whose ns+key already exist are skipped.
func (s *SQLiteStore) Import(ctx context.Context, entries []model.Entry) (int, error) {
	imported := 0
	for _, e := range entries {
		var exists int
		s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM entries WHERE ns = ? AND key = ?`, e.NS, e.Key).Scan(&exists)
		if exists > 0 {
			continue
		}
		_, err := s.Put(ctx, PutParams{
			NS:      e.NS,
			Key:     e.Key,
			Role:    e.Role,
			Content: e.Content,
			Tags:    e.Tags,
			At:      e.CreatedAt,
		})
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
