package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rcliao/rapport/internal/model"
)

// candidateFactor widens the SQL limit so ranking has room to reorder.
const candidateFactor = 4

// Search finds entries whose chunks match the query. Full-text MATCH is
// tried first; a substring scan runs when it finds nothing.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	terms := queryTerms(p.Query)
	if len(terms) == 0 {
		return nil, nil
	}

	results, err := s.searchFTS(ctx, p, terms, limit*candidateFactor)
	if err != nil || len(results) == 0 {
		results, err = s.searchLike(ctx, p, terms, limit*candidateFactor)
		if err != nil {
			return nil, err
		}
	}

	results = Rank(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLiteStore) searchFTS(ctx context.Context, p SearchParams, terms []string, limit int) ([]SearchResult, error) {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"*`
	}

	where, args := filters(p)
	where = append([]string{"chunks_fts MATCH ?"}, where...)
	args = append([]interface{}{strings.Join(quoted, " OR ")}, args...)

	q := fmt.Sprintf(`
		SELECT %s, c.id, c.seq, c.text, c.start_line, c.end_line
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		JOIN entries e ON e.id = c.entry_id
		WHERE %s
		ORDER BY chunks_fts.rank
		LIMIT ?`, entryColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	return s.query(ctx, q, args)
}

func (s *SQLiteStore) searchLike(ctx context.Context, p SearchParams, terms []string, limit int) ([]SearchResult, error) {
	where, args := filters(p)
	var ors []string
	for _, t := range terms {
		ors = append(ors, "c.text LIKE ?")
		args = append(args, "%"+t+"%")
	}
	where = append(where, "("+strings.Join(ors, " OR ")+")")

	q := fmt.Sprintf(`
		SELECT %s, c.id, c.seq, c.text, c.start_line, c.end_line
		FROM chunks c
		JOIN entries e ON e.id = c.entry_id
		WHERE %s
		ORDER BY e.created_at DESC
		LIMIT ?`, entryColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	return s.query(ctx, q, args)
}

func filters(p SearchParams) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	if p.NS != "" {
		where = append(where, "e.ns = ?")
		args = append(args, p.NS)
	}
	for _, tag := range p.Tags {
		where = append(where, "e.tags LIKE ?")
		args = append(args, "%\""+tag+"\"%")
	}
	return where, args
}

// query scans rows and keeps the first matching chunk per entry.
func (s *SQLiteStore) query(ctx context.Context, q string, args []interface{}) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	seen := map[string]bool{}
	for rows.Next() {
		c := &model.Chunk{}
		e, err := scanEntry(rows, &c.ID, &c.Seq, &c.Text, &c.StartLine, &c.EndLine)
		if err != nil {
			return nil, err
		}
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		c.EntryID = e.ID
		results = append(results, SearchResult{Entry: e, MatchChunk: c})
	}
	return results, rows.Err()
}

// stopwords never become search terms.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "about": true,
	"that": true, "this": true, "what": true, "did": true, "was": true,
	"are": true, "you": true, "your": true, "our": true, "but": true,
	"not": true, "have": true, "has": true, "had": true, "from": true,
}

// queryTerms lowercases the query and keeps word tokens of three or more
// characters that are not stopwords. FTS syntax characters never reach MATCH.
func queryTerms(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	seen := map[string]bool{}
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
