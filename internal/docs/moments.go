package docs

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rcliao/rapport/internal/fsutil"
	"github.com/rcliao/rapport/internal/model"
)

var momentHeading = regexp.MustCompile(`^## \d{2}:\d{2} \[([A-Z]+)\] \[([A-Z]+)\]$`)

// AppendMoments adds moments to today's significance log. The log is
// append-only; entries are never edited or removed.
func (s *Store) AppendMoments(moments []model.SignificantMoment) error {
	if len(moments) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	path := filepath.Join(s.dir, significanceDir, now.Format(dateLayout)+".md")

	var b strings.Builder
	if existing, err := fsutil.ReadFileOrEmpty(path); err != nil {
		return fmt.Errorf("read significance log: %w", err)
	} else if existing == "" {
		fmt.Fprintf(&b, "# Significant moments %s\n", now.Format(dateLayout))
	}
	for _, m := range moments {
		fmt.Fprintf(&b, "\n## %s [%s] [%s]\n", now.Format("15:04"), m.Weight, m.Category)
		for _, l := range strings.Split(m.Quote, "\n") {
			fmt.Fprintf(&b, "> %s\n", l)
		}
		if m.Why != "" {
			fmt.Fprintf(&b, "Why: %s\n", m.Why)
		}
	}
	if err := fsutil.AppendFileAtomic(path, b.String()); err != nil {
		return fmt.Errorf("append significance log: %w", err)
	}
	return nil
}

// RecentMomentLogs returns up to n significance log paths, newest first.
func (s *Store) RecentMomentLogs(n int) ([]string, error) {
	paths, err := fsutil.Glob(filepath.Join(s.dir, significanceDir), "????-??-??.md")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := len(paths) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, paths[i])
	}
	return out, nil
}

// ParseMoments reads the entries of a significance log back.
func ParseMoments(text string) []model.SignificantMoment {
	var out []model.SignificantMoment
	var cur *model.SignificantMoment
	var quote []string

	flush := func() {
		if cur != nil {
			cur.Quote = strings.Join(quote, "\n")
			out = append(out, *cur)
		}
		cur, quote = nil, nil
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := momentHeading.FindStringSubmatch(line); m != nil {
			flush()
			cur = &model.SignificantMoment{Weight: model.Weight(m[1]), Category: model.MomentCategory(m[2])}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "> "):
			quote = append(quote, strings.TrimPrefix(line, "> "))
		case strings.HasPrefix(line, "Why: "):
			cur.Why = strings.TrimPrefix(line, "Why: ")
		}
	}
	flush()
	return out
}
