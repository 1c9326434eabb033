package store

import (
	"context"
	"os"
)

// Stats holds index statistics.
type Stats struct {
	DBPath       string           `json:"db_path"`
	DBSizeBytes  int64            `json:"db_size_bytes"`
	TotalEntries int              `json:"total_entries"`
	TotalChunks  int              `json:"total_chunks"`
	Namespaces   []NamespaceStats `json:"namespaces"`
}

// NamespaceStats holds per-namespace counts.
type NamespaceStats struct {
	NS     string `json:"ns"`
	Count  int    `json:"count"`
	Human  int    `json:"human"`
	Latest string `json:"latest"`
}

// Stats returns index statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&st.TotalEntries)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.TotalChunks)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ns, COUNT(*) AS cnt, SUM(role = 'human'), MAX(created_at)
		FROM entries
		GROUP BY ns ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ns NamespaceStats
		rows.Scan(&ns.NS, &ns.Count, &ns.Human, &ns.Latest)
		st.Namespaces = append(st.Namespaces, ns)
	}

	return st, rows.Err()
}
