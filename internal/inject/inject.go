// Package inject builds the relationship context prepended to every
// conversation turn.
package inject

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rcliao/rapport/internal/checkin"
	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/recall"
	"github.com/rcliao/rapport/internal/timewindow"
)

// MaxExcerptLines caps the lines taken from the relationship document.
const MaxExcerptLines = 10

// DefaultBudget bounds the whole hook when the caller gives no deadline.
const DefaultBudget = 12 * time.Second

// ContextSource yields recall context.
type ContextSource interface {
	Extract(ctx context.Context, intents []recall.Intent) model.QueryContext
}

// Config wires a Hook.
type Config struct {
	Enabled bool
	Docs    *docs.Store
	Context ContextSource // nil skips the ambient hint
	Window  timewindow.Window
	Budget  time.Duration
	Now     func() time.Time
	Log     *slog.Logger
}

// Hook produces the per-turn injection.
type Hook struct {
	cfg Config
}

func New(cfg Config) *Hook {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hook{cfg: cfg}
}

// Build returns the text to inject, or "" when there is nothing to add.
// It never returns an error and never outlives its budget.
func (h *Hook) Build(ctx context.Context) string {
	if !h.cfg.Enabled {
		return ""
	}

	var sections []string
	if ex := h.excerpt(); len(ex) > 0 {
		sections = append(sections, "[relationship context]\n"+strings.Join(ex, "\n"))
	}

	now := h.cfg.Now()
	reading := h.cfg.Window.Evaluate(now)
	if !reading.InSleepWindow && h.cfg.Context != nil {
		if a := h.ambient(ctx, reading); a != "" {
			sections = append(sections, a)
		}
	}

	if len(sections) == 0 {
		return ""
	}
	return strings.Join(sections, "\n\n") + "\n"
}

// excerpt returns the newest bullet lines of the relationship document, each
// preceded by the section headings it sits under. Headings count toward
// MaxExcerptLines. A document without bullets yields nothing.
func (h *Hook) excerpt() []string {
	text, err := h.cfg.Docs.Read(docs.Relational)
	if err != nil {
		h.cfg.Log.Warn("relationship document unreadable", "err", err)
		return nil
	}
	return Excerpt(text, MaxExcerptLines)
}

type bullet struct {
	line  string
	heads []int // indexes into lines of the enclosing ## and ### headings
}

// Excerpt picks bullets from the bottom of doc until the line budget is
// spent, then restores document order. The top-level title is dropped.
func Excerpt(doc string, budget int) []string {
	lines := strings.Split(doc, "\n")
	var bullets []bullet
	section, sub := -1, -1
	for i, line := range lines {
		line = strings.TrimSpace(line)
		lines[i] = line
		switch {
		case strings.HasPrefix(line, "### "):
			sub = i
		case strings.HasPrefix(line, "## "):
			section, sub = i, -1
		case strings.HasPrefix(line, "# "):
			section, sub = -1, -1
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			var heads []int
			for _, hd := range []int{section, sub} {
				if hd >= 0 {
					heads = append(heads, hd)
				}
			}
			bullets = append(bullets, bullet{line: line, heads: heads})
		}
	}

	counted := map[int]bool{}
	used := 0
	first := len(bullets)
	for first > 0 {
		b := bullets[first-1]
		need := 1
		for _, hd := range b.heads {
			if !counted[hd] {
				need++
			}
		}
		if used+need > budget {
			break
		}
		for _, hd := range b.heads {
			counted[hd] = true
		}
		used += need
		first--
	}

	var out []string
	emitted := map[int]bool{}
	for _, b := range bullets[first:] {
		for _, hd := range b.heads {
			if !emitted[hd] {
				emitted[hd] = true
				out = append(out, lines[hd])
			}
		}
		out = append(out, b.line)
	}
	return out
}

func (h *Hook) ambient(ctx context.Context, reading timewindow.Reading) string {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Budget)
	defer cancel()

	done := make(chan model.QueryContext, 1)
	go func() { done <- h.cfg.Context.Extract(ctx, recall.DefaultIntents) }()

	var qc model.QueryContext
	select {
	case qc = <-done:
	case <-ctx.Done():
		h.cfg.Log.Warn("ambient context timed out", "budget", h.cfg.Budget)
		return ""
	}

	hint := checkin.Ambient(reading, qc)
	if len(hint.Snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[ambient continuity]\n")
	fmt.Fprintf(&b, "Time of day: %s\n", hint.Period)
	fmt.Fprintf(&b, "Tone: %s\n", hint.Tone)
	b.WriteString("Recent context:")
	for _, s := range hint.Snippets {
		fmt.Fprintf(&b, "\n- %s", s)
	}
	return b.String()
}
