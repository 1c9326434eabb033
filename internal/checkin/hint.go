package checkin

import (
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/timewindow"
)

// MaxHintSnippets caps the context snippets carried by a hint.
const MaxHintSnippets = 3

// StaleThreadAfter is the idle time after which an open thread becomes the focus.
const StaleThreadAfter = 24 * time.Hour

// FocusKind says where the focus line came from.
type FocusKind string

const (
	FocusOpenThread FocusKind = "open-thread"
	FocusLastTask   FocusKind = "last-task"
	FocusGap        FocusKind = "gap"
	FocusOpenEnded  FocusKind = "open-ended"
)

// openEnded rotates by check-in count when nothing more specific applies.
var openEnded = []string{
	"How's it going?",
	"Anything on your mind?",
	"Ready to pick something up, or just checking in?",
	"What are you working on today?",
}

// Hint is the structured guidance handed to the agent. It never contains the
// final message text; the agent writes that.
type Hint struct {
	Mode      Mode              `json:"mode,omitempty"`
	Period    timewindow.Period `json:"period"`
	Tone      string            `json:"tone"`
	Snippets  []string          `json:"snippets,omitempty"`
	Focus     string            `json:"focus,omitempty"`
	FocusKind FocusKind         `json:"focusKind,omitempty"`
	GapKey    string            `json:"gapKey,omitempty"`
}

// Input is everything Compose needs.
type Input struct {
	State   model.IdleState
	Mode    Mode
	Reading timewindow.Reading
	Context model.QueryContext
	Gaps    []model.Gap
	Now     time.Time
}

// Compose builds the check-in hint. The focus is the first open thread when
// the user has been idle over a day, else the most recent task, else the top
// gap question, else a rotating open-ended prompt.
func Compose(in Input) Hint {
	h := Hint{
		Mode:     in.Mode,
		Period:   in.Reading.Period,
		Tone:     in.Reading.Period.Tone(),
		Snippets: limit(in.Context.Snippets(), MaxHintSnippets),
	}

	idle := in.Now.Sub(in.State.LastInteraction)
	switch {
	case idle > StaleThreadAfter && len(in.Context.OpenThreads) > 0:
		h.FocusKind = FocusOpenThread
		h.Focus = "Follow up on: " + in.Context.OpenThreads[0]
	case len(in.Context.RecentTasks) > 0:
		h.FocusKind = FocusLastTask
		h.Focus = "Ask how this is going: " + in.Context.RecentTasks[0]
	default:
		if g, ok := TopGap(in.Gaps, in.State); ok {
			h.FocusKind = FocusGap
			h.Focus = g.Question
			h.GapKey = g.Key
		} else {
			h.FocusKind = FocusOpenEnded
			h.Focus = openEnded[in.State.CheckInCount%len(openEnded)]
		}
	}
	return h
}

// Ambient builds the lighter hint used on ordinary turns: tone and context,
// no focus line.
func Ambient(reading timewindow.Reading, qc model.QueryContext) Hint {
	return Hint{
		Period:   reading.Period,
		Tone:     reading.Period.Tone(),
		Snippets: limit(qc.Snippets(), MaxHintSnippets),
	}
}

// TopGap returns the first gap not yet asked about, falling back to the
// first gap overall. Gaps arrive in priority order.
func TopGap(gaps []model.Gap, s model.IdleState) (model.Gap, bool) {
	for _, g := range gaps {
		if !s.Asked(g.Key) {
			return g, true
		}
	}
	if len(gaps) > 0 {
		return gaps[0], true
	}
	return model.Gap{}, false
}

// Render formats the hint as the text block given to the agent.
func (h Hint) Render() string {
	var b strings.Builder
	b.WriteString("[relationship check-in]\n")
	if h.Mode != "" {
		fmt.Fprintf(&b, "Mode: %s\n", h.Mode)
	}
	fmt.Fprintf(&b, "Time of day: %s\n", h.Period)
	fmt.Fprintf(&b, "Tone: %s\n", h.Tone)
	if h.Focus != "" {
		fmt.Fprintf(&b, "Focus: %s\n", h.Focus)
	}
	if len(h.Snippets) > 0 {
		b.WriteString("Recent context:\n")
		for _, s := range h.Snippets {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

func limit(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
