// Package docs manages the living documents, significance logs, task ledger and
// side files of one relationship directory. Every write goes through a temp
// file and a rename, so a failed write leaves the previous content intact.
package docs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/rapport/internal/fsutil"
	"github.com/rcliao/rapport/internal/model"
)

// Kind names one of the three living documents.
type Kind string

const (
	Relational Kind = "relational"
	Profile    Kind = "profile"
	Identity   Kind = "identity"
)

// Kinds lists the living documents in a stable order.
var Kinds = []Kind{Relational, Profile, Identity}

var fileNames = map[Kind]string{
	Relational: "RELATIONAL.md",
	Profile:    "USER.md",
	Identity:   "SOUL.md",
}

const (
	significanceDir = "significance"
	ledgerFile      = "ledger.json"
	gapsFile        = "gaps.json"
	checkinsFile    = "checkins.md"
	archiveDir      = "archive"
	dateLayout      = "2006-01-02"
)

// Store reads and writes the documents of one relationship directory.
type Store struct {
	dir string
	log *slog.Logger
	now func() time.Time
	mu  sync.Mutex
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, log *slog.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{dir: dir, log: log, now: now}
}

// Dir is the relationship directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of a living document.
func (s *Store) Path(k Kind) string {
	return filepath.Join(s.dir, fileNames[k])
}

// Read returns a document's text, or "" when it does not exist yet.
func (s *Store) Read(k Kind) (string, error) {
	return fsutil.ReadFileOrEmpty(s.Path(k))
}

// EnsureTemplates writes the template of every missing document.
func (s *Store) EnsureTemplates() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range Kinds {
		if _, err := os.Stat(s.Path(k)); err == nil {
			continue
		}
		if err := fsutil.WriteFileAtomic(s.Path(k), []byte(Template(k))); err != nil {
			return fmt.Errorf("write %s template: %w", k, err)
		}
	}
	return nil
}

// Reset overwrites all three documents with their templates. This is the only
// wholesale rewrite the system performs. The ledger and gap mirror are
// removed; significance logs and the check-in log move under
// archive/<timestamp>/ so nothing from before the reset feeds recall.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range Kinds {
		if err := fsutil.WriteFileAtomic(s.Path(k), []byte(Template(k))); err != nil {
			return fmt.Errorf("reset %s: %w", k, err)
		}
	}
	for _, name := range []string{ledgerFile, gapsFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reset %s: %w", name, err)
		}
	}

	dst := filepath.Join(s.dir, archiveDir, s.now().UTC().Format("20060102T150405Z"))
	for _, name := range []string{significanceDir, checkinsFile} {
		src := filepath.Join(s.dir, name)
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		if err := os.Rename(src, filepath.Join(dst, name)); err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
	}
	return nil
}

// AppendDated adds lines to the end of the anchor's section under a
// "### YYYY-MM-DD" subsection for today, creating the subsection, the
// section or the document as needed. Other sections are left untouched.
func (s *Store) AppendDated(k Kind, anchor string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := fsutil.ReadFileOrEmpty(s.Path(k))
	if err != nil {
		return fmt.Errorf("read %s: %w", k, err)
	}
	if cur == "" {
		cur = Template(k)
	}

	sub := "### " + s.now().Format(dateLayout)
	var block strings.Builder
	if !strings.Contains(sectionBody(cur, anchor), sub+"\n") {
		block.WriteString(sub + "\n")
	}
	for _, l := range lines {
		block.WriteString("- " + l + "\n")
	}

	next := InsertUnder(cur, anchor, block.String())
	if err := fsutil.WriteFileAtomic(s.Path(k), []byte(next)); err != nil {
		return fmt.Errorf("write %s: %w", k, err)
	}
	return nil
}

// InsertUnder places block at the end of the section opened by the anchor
// heading. A missing anchor is appended to the end of the document.
func InsertUnder(doc, anchor, block string) string {
	if !strings.HasSuffix(block, "\n") {
		block += "\n"
	}
	lines := strings.SplitAfter(doc, "\n")
	start := -1
	for i, l := range lines {
		if strings.TrimRight(l, "\r\n") == anchor {
			start = i
			break
		}
	}
	if start < 0 {
		if doc != "" && !strings.HasSuffix(doc, "\n") {
			doc += "\n"
		}
		return doc + "\n" + anchor + "\n\n" + block
	}

	level := headingLevel(anchor)
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if l := headingLevel(lines[i]); l > 0 && l <= level {
			end = i
			break
		}
	}

	// Keep one blank line between the inserted block and the next heading.
	insertAt := end
	for insertAt > start+1 && strings.TrimSpace(lines[insertAt-1]) == "" {
		insertAt--
	}
	var b strings.Builder
	for _, l := range lines[:insertAt] {
		b.WriteString(l)
	}
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	if insertAt == start+1 {
		b.WriteString("\n")
	}
	b.WriteString(block)
	if end < len(lines) {
		b.WriteString("\n")
	}
	for _, l := range lines[end:] {
		b.WriteString(l)
	}
	return b.String()
}

// sectionBody returns the text between the anchor heading and the next
// heading of the same or higher level.
func sectionBody(doc, anchor string) string {
	i := strings.Index(doc, anchor+"\n")
	if i < 0 {
		return ""
	}
	rest := doc[i+len(anchor)+1:]
	level := headingLevel(anchor)
	var b strings.Builder
	for _, l := range strings.SplitAfter(rest, "\n") {
		if h := headingLevel(l); h > 0 && h <= level {
			break
		}
		b.WriteString(l)
	}
	return b.String()
}

func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n >= len(line) || line[n] != ' ' {
		return 0
	}
	return n
}

// ReadLedger returns the cached task ledger. A missing or unreadable ledger
// yields an empty one.
func (s *Store) ReadLedger() model.Ledger {
	path := filepath.Join(s.dir, ledgerFile)
	raw, err := fsutil.ReadFileOrEmpty(path)
	if err != nil {
		s.log.Warn("ledger unreadable", "path", path, "err", err)
		return model.Ledger{}
	}
	if raw == "" {
		return model.Ledger{}
	}
	var l model.Ledger
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		s.log.Warn("ledger corrupt, ignoring", "path", path, "err", err)
		return model.Ledger{}
	}
	return l
}

// WriteLedger replaces the task ledger.
func (s *Store) WriteLedger(l model.Ledger) error {
	if l.Recent == nil {
		l.Recent = []string{}
	}
	if l.OpenThreads == nil {
		l.OpenThreads = []string{}
	}
	b, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(s.dir, ledgerFile), b)
}

// GapMirror is the advisory copy of the last gap detection.
type GapMirror struct {
	DetectedAt time.Time   `json:"detectedAt"`
	Gaps       []model.Gap `json:"gaps"`
}

// GapMirrorPath is where the advisory gap list is mirrored.
func (s *Store) GapMirrorPath() string {
	return filepath.Join(s.dir, gapsFile)
}

// WriteGapMirror mirrors gaps to the side file. The file may go stale and is
// never read back as a source of truth.
func (s *Store) WriteGapMirror(gaps []model.Gap) error {
	if gaps == nil {
		gaps = []model.Gap{}
	}
	b, err := json.MarshalIndent(GapMirror{DetectedAt: model.NormalizeTime(s.now()), Gaps: gaps}, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.GapMirrorPath(), b)
}

// CheckInEntry is one line of the check-in log.
type CheckInEntry struct {
	At     time.Time
	Mode   string
	Gap    string
	Reason string
	Focus  string
}

// AppendCheckIn records a dispatched check-in in checkins.md.
func (s *Store) AppendCheckIn(e CheckInEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n## Check-in [%s] (%s)", e.At.Format("2006-01-02 15:04"), strings.ToUpper(e.Mode))
	if e.Gap != "" {
		fmt.Fprintf(&b, " [Gap: %s]", e.Gap)
	}
	b.WriteString("\n\n")
	if e.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", e.Reason)
	}
	fmt.Fprintf(&b, "Focus: %s\n\n---\n", e.Focus)
	return fsutil.AppendFileAtomic(filepath.Join(s.dir, checkinsFile), b.String())
}
