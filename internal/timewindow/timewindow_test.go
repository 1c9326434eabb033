package timewindow

import (
	"errors"
	"testing"
	"time"
)

func at(hhmm string) time.Time {
	c := MustClock(hhmm)
	return time.Date(2026, 3, 14, int(c)/60, int(c)%60, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want Clock
	}{
		{"0", 0},
		{"7", 7 * 60},
		{"22", 22 * 60},
		{"07:30", 7*60 + 30},
		{"23:59", 23*60 + 59},
		{" 9 ", 9 * 60},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseClockInvalid(t *testing.T) {
	for _, in := range []string{"", "24", "-1", "7:5", "07:60", "seven", "07:xx"} {
		if _, err := ParseClock(in); !errors.Is(err, ErrInvalidClock) {
			t.Errorf("ParseClock(%q) error = %v, want ErrInvalidClock", in, err)
		}
	}
}

func TestOvernightWindow(t *testing.T) {
	w := Window{Start: MustClock("22:00"), End: MustClock("07:00")}
	tests := []struct {
		at    string
		sleep bool
	}{
		{"22:00", true},
		{"23:30", true},
		{"00:00", true},
		{"06:59", true},
		{"07:00", false},
		{"12:00", false},
		{"21:59", false},
	}
	for _, tt := range tests {
		if got := w.InSleep(at(tt.at)); got != tt.sleep {
			t.Errorf("InSleep(%s) = %v, want %v", tt.at, got, tt.sleep)
		}
	}
}

func TestOvernightWindowBoundarySecond(t *testing.T) {
	w := Window{Start: MustClock("22:00"), End: MustClock("07:00")}
	justBefore := time.Date(2026, 3, 14, 6, 59, 59, 0, time.UTC)
	if !w.InSleep(justBefore) {
		t.Error("06:59:59 should be inside the window")
	}
	if w.InSleep(justBefore.Add(time.Second)) {
		t.Error("07:00:00 should be outside the window")
	}
}

func TestSameDayWindow(t *testing.T) {
	w := Window{Start: MustClock("01:00"), End: MustClock("06:00")}
	for c := Clock(0); c < 24*60; c++ {
		want := c >= w.Start && c < w.End
		if got := w.Contains(c); got != want {
			t.Fatalf("Contains(%s) = %v, want %v", c, got, want)
		}
	}
}

func TestWrappedWindowExhaustive(t *testing.T) {
	w := Window{Start: MustClock("20:00"), End: MustClock("09:00")}
	for c := Clock(0); c < 24*60; c++ {
		want := c >= w.Start || c < w.End
		if got := w.Contains(c); got != want {
			t.Fatalf("Contains(%s) = %v, want %v", c, got, want)
		}
	}
}

func TestEvaluatePartitionsAwakeHours(t *testing.T) {
	w := Window{Start: MustClock("22:00"), End: MustClock("07:00")}
	for c := Clock(0); c < 24*60; c++ {
		ts := time.Date(2026, 3, 14, int(c)/60, int(c)%60, 0, 0, time.UTC)
		r := w.Evaluate(ts)
		if r.InSleepWindow != (r.Period == Sleep) {
			t.Fatalf("%s: period %s inconsistent with sleep flag %v", c, r.Period, r.InSleepWindow)
		}
		if r.InSleepWindow != w.Contains(c) {
			t.Fatalf("%s: sleep flag %v, window says %v", c, r.InSleepWindow, w.Contains(c))
		}
	}
}

func TestEvaluatePeriods(t *testing.T) {
	w := Window{Start: MustClock("23:00"), End: MustClock("05:00")}
	tests := map[string]Period{
		"05:00": Morning,
		"11:59": Morning,
		"12:00": Afternoon,
		"17:59": Afternoon,
		"18:00": Evening,
		"22:59": Evening,
		"23:00": Sleep,
		"04:59": Sleep,
	}
	for hhmm, want := range tests {
		if got := w.Evaluate(at(hhmm)).Period; got != want {
			t.Errorf("Evaluate(%s) = %s, want %s", hhmm, got, want)
		}
	}
}

func TestEmptyWindowNeverSleeps(t *testing.T) {
	w := Window{Start: MustClock("08:00"), End: MustClock("08:00")}
	if w.Contains(MustClock("08:00")) {
		t.Error("zero-length window should contain nothing")
	}
}
