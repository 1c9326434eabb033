// Package chunker splits conversation text into chunks for the transcript
// index. Speaker turns and paragraphs are natural boundaries.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// SpeakerPrefixes mark the start of a new turn inside a transcript.
var SpeakerPrefixes = []string{"Human:", "Agent:", "User:", "Assistant:"}

// Options configures chunking behavior. Sizes are in runes.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// ChunkResult represents a chunk with its line span in the original text.
type ChunkResult struct {
	Text      string
	StartLine int
	EndLine   int
}

// Chunk splits text into chunks. Text no longer than MaxSize is one chunk.
func Chunk(text string, opts Options) []ChunkResult {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if utf8.RuneCountInString(text) <= opts.MaxSize {
		return []ChunkResult{{Text: text, StartLine: 1, EndLine: strings.Count(text, "\n") + 1}}
	}

	return merge(split(text), opts)
}

type segment struct {
	lines     []string
	startLine int
}

func (s segment) text() string { return strings.TrimSpace(strings.Join(s.lines, "\n")) }

func (s segment) endLine() int { return s.startLine + len(s.lines) - 1 }

// split cuts at speaker lines and blank lines.
func split(text string) []segment {
	var out []segment
	var cur segment

	flush := func() {
		if cur.text() != "" {
			out = append(out, cur)
		}
		cur = segment{}
	}

	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
			continue
		case isSpeaker(trimmed):
			flush()
		}
		if len(cur.lines) == 0 {
			cur.startLine = i + 1
		}
		cur.lines = append(cur.lines, line)
	}
	flush()
	return out
}

func isSpeaker(line string) bool {
	for _, p := range SpeakerPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// merge packs consecutive segments up to TargetSize and breaks any segment
// over MaxSize on line or word boundaries.
func merge(segs []segment, opts Options) []ChunkResult {
	var out []ChunkResult
	var acc []segment
	size := 0

	emit := func() {
		if len(acc) == 0 {
			return
		}
		parts := make([]string, len(acc))
		for i, s := range acc {
			parts[i] = s.text()
		}
		out = append(out, ChunkResult{
			Text:      strings.Join(parts, "\n\n"),
			StartLine: acc[0].startLine,
			EndLine:   acc[len(acc)-1].endLine(),
		})
		acc, size = nil, 0
	}

	for _, s := range segs {
		n := utf8.RuneCountInString(s.text())
		if n > opts.MaxSize {
			emit()
			out = append(out, hardSplit(s, opts)...)
			continue
		}
		if size > 0 && size+n+2 > opts.TargetSize {
			emit()
		}
		acc = append(acc, s)
		size += n + 2
	}
	emit()
	return out
}

func hardSplit(s segment, opts Options) []ChunkResult {
	var out []ChunkResult
	var buf []string
	start, last := s.startLine, s.startLine
	size := 0

	for i, line := range s.lines {
		for _, piece := range wrap(line, opts.TargetSize) {
			n := utf8.RuneCountInString(piece)
			if size > 0 && size+n > opts.TargetSize {
				out = append(out, ChunkResult{Text: strings.TrimSpace(strings.Join(buf, "\n")), StartLine: start, EndLine: last})
				buf, size = nil, 0
				start = s.startLine + i
			}
			buf = append(buf, piece)
			last = s.startLine + i
			size += n + 1
		}
	}
	if t := strings.TrimSpace(strings.Join(buf, "\n")); t != "" {
		out = append(out, ChunkResult{Text: t, StartLine: start, EndLine: last})
	}
	return out
}

// wrap breaks a single long line at word boundaries.
func wrap(line string, width int) []string {
	if utf8.RuneCountInString(line) <= width {
		return []string{line}
	}
	var out []string
	var b strings.Builder
	n := 0
	for _, w := range strings.Fields(line) {
		wn := utf8.RuneCountInString(w)
		if n > 0 && n+1+wn > width {
			out = append(out, b.String())
			b.Reset()
			n = 0
		}
		if n > 0 {
			b.WriteByte(' ')
			n++
		}
		b.WriteString(w)
		n += wn
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
