package checkin

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/timewindow"
)

var (
	quiet = timewindow.Window{Start: timewindow.MustClock("22:00"), End: timewindow.MustClock("07:00")}
	// 14:00 local, outside quiet hours.
	afternoon = time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)
	policy    = Policy{LearningPeriod: DefaultLearningPeriod, LearningThreshold: 2 * time.Hour, MatureThreshold: 4 * time.Hour}
)

func TestModeSelection(t *testing.T) {
	old := model.IdleState{RelationshipStart: afternoon.Add(-20 * 24 * time.Hour)}
	young := model.IdleState{RelationshipStart: afternoon.Add(-24 * time.Hour)}

	assert.False(t, policy.IsLearningMode(old, afternoon))
	assert.Equal(t, Mature, policy.Mode(old, afternoon))
	assert.Equal(t, 4*time.Hour, policy.SelectThreshold(old, afternoon))

	assert.True(t, policy.IsLearningMode(young, afternoon))
	assert.Equal(t, Learning, policy.Mode(young, afternoon))
	assert.Equal(t, 2*time.Hour, policy.SelectThreshold(young, afternoon))
}

func TestModeTapersAtLearningBoundary(t *testing.T) {
	s := model.IdleState{RelationshipStart: afternoon.Add(-DefaultLearningPeriod)}
	assert.False(t, policy.IsLearningMode(s, afternoon), "exactly 14 days is mature")
	assert.True(t, policy.IsLearningMode(s, afternoon.Add(-time.Second)))
}

func TestGateFalseDuringQuietHoursRegardlessOfIdle(t *testing.T) {
	night := time.Date(2026, 5, 1, 23, 30, 0, 0, time.UTC)
	s := model.IdleState{LastInteraction: night.Add(-72 * time.Hour), RelationshipStart: night.Add(-90 * 24 * time.Hour)}

	d := ShouldSendCheckIn(s, time.Hour, quiet, time.Hour, night)
	assert.False(t, d.Send)
	assert.Equal(t, "quiet hours", d.Reason)
}

func TestGateRespectsMinimumGap(t *testing.T) {
	s := model.IdleState{
		LastInteraction: afternoon.Add(-10 * time.Hour),
		LastCheckIn:     afternoon.Add(-30 * time.Minute),
	}
	d := ShouldSendCheckIn(s, 4*time.Hour, quiet, time.Hour, afternoon)
	assert.False(t, d.Send)
	assert.Contains(t, d.Reason, "checked in")
}

func TestGateNeverCheckedInIsNotBlockedByGap(t *testing.T) {
	s := model.IdleState{LastInteraction: afternoon.Add(-5 * time.Hour)}
	d := ShouldSendCheckIn(s, 4*time.Hour, quiet, 24*time.Hour, afternoon)
	assert.True(t, d.Send)
}

func TestGateEndToEndScenario(t *testing.T) {
	start := afternoon.Add(-30 * 24 * time.Hour)
	s := model.IdleState{LastInteraction: afternoon.Add(-3 * time.Hour), RelationshipStart: start}

	threshold := policy.SelectThreshold(s, afternoon)
	assert.Equal(t, 4*time.Hour, threshold)
	assert.False(t, ShouldSendCheckIn(s, threshold, quiet, time.Hour, afternoon).Send)

	s.LastInteraction = afternoon.Add(-5 * time.Hour)
	d := ShouldSendCheckIn(s, threshold, quiet, time.Hour, afternoon)
	assert.True(t, d.Send)
	assert.Equal(t, "5.0h idle", d.Reason)
}

func TestGateThresholdIsInclusive(t *testing.T) {
	s := model.IdleState{LastInteraction: afternoon.Add(-4 * time.Hour)}
	assert.True(t, ShouldSendCheckIn(s, 4*time.Hour, quiet, time.Hour, afternoon).Send)
}

func TestComposeFocusPriority(t *testing.T) {
	reading := quiet.Evaluate(afternoon)
	gaps := []model.Gap{
		{Key: "name", Category: model.GapIdentity, Question: "What should I call you?"},
		{Key: "work", Category: model.GapIdentity, Question: "What kind of work do you do?"},
	}
	qc := model.QueryContext{
		OpenThreads: []string{"revisit the pricing page"},
		RecentTasks: []string{"need to ship the invoice export"},
	}

	tests := []struct {
		name  string
		idle  time.Duration
		qc    model.QueryContext
		asked []string
		kind  FocusKind
		focus string
	}{
		{"stale thread", 30 * time.Hour, qc, nil, FocusOpenThread, "revisit the pricing page"},
		{"fresh thread falls to task", 5 * time.Hour, qc, nil, FocusLastTask, "need to ship the invoice export"},
		{"gap", 5 * time.Hour, model.QueryContext{}, nil, FocusGap, "What should I call you?"},
		{"unasked gap first", 5 * time.Hour, model.QueryContext{}, []string{"name"}, FocusGap, "What kind of work do you do?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := model.IdleState{LastInteraction: afternoon.Add(-tt.idle), QuestionsAsked: tt.asked}
			h := Compose(Input{State: s, Mode: Mature, Reading: reading, Context: tt.qc, Gaps: gaps, Now: afternoon})
			assert.Equal(t, tt.kind, h.FocusKind)
			assert.Contains(t, h.Focus, tt.focus)
		})
	}
}

func TestComposeOpenEndedRotates(t *testing.T) {
	reading := quiet.Evaluate(afternoon)
	seen := map[string]bool{}
	for i := 0; i < len(openEnded); i++ {
		h := Compose(Input{State: model.IdleState{CheckInCount: i, LastInteraction: afternoon}, Reading: reading, Now: afternoon})
		assert.Equal(t, FocusOpenEnded, h.FocusKind)
		seen[h.Focus] = true
	}
	assert.Len(t, seen, len(openEnded))
}

func TestComposeCapsSnippets(t *testing.T) {
	qc := model.QueryContext{
		OpenThreads:     []string{"a", "b"},
		RecentTasks:     []string{"c", "d"},
		RecentDecisions: []string{"e"},
	}
	h := Compose(Input{Reading: quiet.Evaluate(afternoon), Context: qc, Now: afternoon})
	assert.Equal(t, []string{"a", "b", "c"}, h.Snippets)
}

func TestRender(t *testing.T) {
	h := Hint{Mode: Learning, Period: timewindow.Afternoon, Tone: "practical", Focus: "What should I call you?", Snippets: []string{"x"}}
	out := h.Render()
	for _, want := range []string{"Mode: learning", "Time of day: afternoon", "Focus: What should I call you?", "- x"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}
