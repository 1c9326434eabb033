// Package timewindow maps wall-clock time onto quiet hours and time-of-day periods.
package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock is returned for a clock value that is neither an hour nor HH:MM.
var ErrInvalidClock = errors.New("invalid clock value")

// Period is a time-of-day category.
type Period string

const (
	Morning   Period = "morning"
	Afternoon Period = "afternoon"
	Evening   Period = "evening"
	Sleep     Period = "sleep"
)

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock accepts an hour ("7", "22") or an HH:MM string ("07:30").
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidClock)
	}
	hourPart, minutePart, hasMinutes := strings.Cut(s, ":")
	h, err := strconv.Atoi(hourPart)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q (hour must be 0-23)", ErrInvalidClock, s)
	}
	m := 0
	if hasMinutes {
		if len(minutePart) != 2 {
			return 0, fmt.Errorf("%w: %q (use HH:MM)", ErrInvalidClock, s)
		}
		m, err = strconv.Atoi(minutePart)
		if err != nil || m < 0 || m > 59 {
			return 0, fmt.Errorf("%w: %q (minute must be 00-59)", ErrInvalidClock, s)
		}
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Of returns the clock reading of t in t's location.
func Of(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Window is a quiet-hours range, start inclusive and end exclusive.
// A start after the end wraps over midnight.
type Window struct {
	Start Clock
	End   Clock
}

// Contains reports whether c falls inside the window.
func (w Window) Contains(c Clock) bool {
	if w.Start <= w.End {
		return c >= w.Start && c < w.End
	}
	return c >= w.Start || c < w.End
}

// InSleep reports whether t falls inside the window.
func (w Window) InSleep(t time.Time) bool {
	return w.Contains(Of(t))
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Reading is the evaluation of one instant.
type Reading struct {
	Period        Period `json:"period"`
	InSleepWindow bool   `json:"inSleepWindow"`
}

// Awake bucket boundaries. Everything outside the sleep window that is not
// morning or afternoon is evening.
var (
	morningStart   = MustClock("05:00")
	afternoonStart = MustClock("12:00")
	eveningStart   = MustClock("18:00")
)

// Evaluate classifies t against the window.
func (w Window) Evaluate(t time.Time) Reading {
	c := Of(t)
	if w.Contains(c) {
		return Reading{Period: Sleep, InSleepWindow: true}
	}
	switch {
	case c >= morningStart && c < afternoonStart:
		return Reading{Period: Morning}
	case c >= afternoonStart && c < eveningStart:
		return Reading{Period: Afternoon}
	default:
		return Reading{Period: Evening}
	}
}

// Tone is the tone guidance handed to the agent for a period.
func (p Period) Tone() string {
	switch p {
	case Morning:
		return "Morning: keep it light and forward-looking, one question at most."
	case Afternoon:
		return "Afternoon: practical and focused, pick up where things left off."
	case Evening:
		return "Evening: relaxed and reflective, no pressure to act tonight."
	default:
		return "Quiet hours: do not reach out."
	}
}
