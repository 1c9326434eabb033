package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/rapport/internal/checkin"
	"github.com/rcliao/rapport/internal/delivery"
	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/idle"
	"github.com/rcliao/rapport/internal/logging"
	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/recall"
	"github.com/rcliao/rapport/internal/timewindow"
)

const rel = "default"

type fakeDeliverer struct {
	mu   sync.Mutex
	reqs []delivery.Request
	kind model.ErrorKind
	sent chan struct{}
}

func (f *fakeDeliverer) Deliver(_ context.Context, r delivery.Request) delivery.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, r)
	if f.sent != nil {
		select {
		case f.sent <- struct{}{}:
		default:
		}
	}
	kind := f.kind
	if kind == "" {
		kind = model.KindNone
	}
	return delivery.Result{ID: r.ID, Kind: kind}
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type staticContext struct {
	qc    model.QueryContext
	panic bool
}

func (s staticContext) Extract(context.Context, []recall.Intent) model.QueryContext {
	if s.panic {
		panic("search exploded")
	}
	return s.qc
}

type staticGaps []model.Gap

func (g staticGaps) Detect() []model.Gap { return g }

type fixture struct {
	now   time.Time
	repo  idle.Repository
	docs  *docs.Store
	deliv *fakeDeliverer
	cfg   Config
}

// newFixture starts a relationship at start whose last interaction was at
// lastSeen, and sets the clock to now.
func newFixture(t *testing.T, start, lastSeen, now time.Time) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{now: now, deliv: &fakeDeliverer{}}
	clock := func() time.Time { return f.now }

	f.repo = idle.NewFileRepository(dir, logging.Discard(), clock)
	f.docs = docs.NewStore(filepath.Join(dir, rel), logging.Discard(), clock)

	require.NoError(t, f.repo.Save(context.Background(), rel, model.IdleState{
		RelationshipStart: start,
		LastInteraction:   lastSeen,
	}))

	f.cfg = Config{
		RelationshipID: rel,
		Interval:       time.Second,
		Enabled:        true,
		Policy: checkin.Policy{
			LearningThreshold: 2 * time.Hour,
			MatureThreshold:   4 * time.Hour,
		},
		Window:      timewindow.Window{Start: timewindow.MustClock("22:00"), End: timewindow.MustClock("07:00")},
		MinGap:      time.Hour,
		Destination: "last-used-channel",
		Idle:        f.repo,
		Context:     staticContext{},
		Deliverer:   f.deliv,
		Journal:     f.docs,
		Now:         clock,
		Log:         logging.Discard(),
	}
	return f
}

func (f *fixture) state(t *testing.T) model.IdleState {
	t.Helper()
	s, err := f.repo.Load(context.Background(), rel)
	require.NoError(t, err)
	return s
}

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func TestTick_Dispatches(t *testing.T) {
	now := day.Add(10 * time.Hour)
	f := newFixture(t, day.AddDate(0, 0, -1), now.Add(-3*time.Hour), now)
	f.cfg.Context = staticContext{qc: model.QueryContext{RecentTasks: []string{"the pricing page"}}}

	var states []State
	s := New(f.cfg)
	s.onState = func(st State) { states = append(states, st) }

	out := s.Tick(context.Background())
	require.NoError(t, out.Err)
	assert.Equal(t, StateDispatching, out.State)
	assert.True(t, out.Decision.Send)
	require.NotNil(t, out.Request)
	assert.Equal(t, 1, f.deliv.count())
	assert.Contains(t, f.deliv.reqs[0].Message, "the pricing page")
	assert.Equal(t, []State{StateEvaluating, StateDispatching, StateIdle}, states)
	assert.Equal(t, StateIdle, s.State())

	st := f.state(t)
	assert.True(t, st.LastCheckIn.Equal(now))
	assert.Equal(t, 1, st.CheckInCount)

	log, err := os.ReadFile(filepath.Join(f.docs.Dir(), "checkins.md"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "## Check-in [2026-03-10 10:00] (LEARNING)")
	assert.Contains(t, string(log), "Focus: Ask how this is going: the pricing page")
}

func TestTick_GapFocusRecordedAsAsked(t *testing.T) {
	now := day.Add(10 * time.Hour)
	f := newFixture(t, day, now.Add(-3*time.Hour), now)
	f.cfg.Gaps = staticGaps{{Key: "name", Question: "What should I call you?"}}

	out := New(f.cfg).Tick(context.Background())
	require.NoError(t, out.Err)
	assert.Equal(t, "name", out.Request.Hint.GapKey)
	assert.Equal(t, []string{"name"}, f.state(t).QuestionsAsked)
}

func TestTick_Suppressed(t *testing.T) {
	tests := []struct {
		name     string
		lastSeen time.Duration
		at       time.Duration
		reason   string
	}{
		{"quiet hours", 10 * time.Hour, 23 * time.Hour, "quiet hours"},
		{"early morning", 10 * time.Hour, 6 * time.Hour, "quiet hours"},
		{"below threshold", time.Hour, 12 * time.Hour, "only 1.0h idle (threshold 2.0h)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := day.Add(tt.at)
			f := newFixture(t, day.AddDate(0, 0, -1), now.Add(-tt.lastSeen), now)
			before := f.state(t)

			out := New(f.cfg).Tick(context.Background())
			assert.Equal(t, StateSuppressed, out.State)
			assert.Equal(t, tt.reason, out.Decision.Reason)
			assert.Equal(t, 0, f.deliv.count())
			assert.Equal(t, before, f.state(t))
		})
	}
}

func TestTick_MatureThreshold(t *testing.T) {
	now := day.Add(12 * time.Hour)
	f := newFixture(t, day.AddDate(0, 0, -30), now.Add(3*time.Hour*-1), now)

	out := New(f.cfg).Tick(context.Background())
	assert.Equal(t, StateSuppressed, out.State)
	assert.Equal(t, "only 3.0h idle (threshold 4.0h)", out.Decision.Reason)
}

func TestTick_NeverTwiceWithinMinGap(t *testing.T) {
	now := day.Add(10 * time.Hour)
	f := newFixture(t, day, now.Add(-5*time.Hour), now)
	s := New(f.cfg)

	require.Equal(t, StateDispatching, s.Tick(context.Background()).State)
	f.now = now.Add(30 * time.Minute)
	out := s.Tick(context.Background())
	assert.Equal(t, StateSuppressed, out.State)
	assert.Equal(t, "checked in 0.5h ago (minimum gap 1.0h)", out.Decision.Reason)

	f.now = now.Add(61 * time.Minute)
	assert.Equal(t, StateDispatching, s.Tick(context.Background()).State)
	assert.Equal(t, 2, f.deliv.count())
	assert.Equal(t, 2, f.state(t).CheckInCount)
}

func TestTick_DeliveryFailureLeavesState(t *testing.T) {
	now := day.Add(10 * time.Hour)
	f := newFixture(t, day, now.Add(-5*time.Hour), now)
	f.deliv.kind = model.KindUnavailable
	before := f.state(t)

	out := New(f.cfg).Tick(context.Background())
	assert.Error(t, out.Err)
	assert.Equal(t, before, f.state(t))
}

func TestTick_PanicIsRecovered(t *testing.T) {
	now := day.Add(10 * time.Hour)
	f := newFixture(t, day, now.Add(-5*time.Hour), now)
	f.cfg.Context = staticContext{panic: true}
	before := f.state(t)

	s := New(f.cfg)
	out := s.Tick(context.Background())
	assert.Error(t, out.Err)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, f.deliv.count())
	assert.Equal(t, before, f.state(t))
}

func TestTick_Disabled(t *testing.T) {
	now := day.Add(10 * time.Hour)
	f := newFixture(t, day, now.Add(-5*time.Hour), now)
	f.cfg.Enabled = false

	out := New(f.cfg).Tick(context.Background())
	assert.Equal(t, StateSuppressed, out.State)
	assert.Equal(t, 0, f.deliv.count())
}

func TestStartStop(t *testing.T) {
	now := day.Add(10 * time.Hour)
	f := newFixture(t, day, now.Add(-5*time.Hour), now)
	f.deliv.sent = make(chan struct{}, 1)

	s := New(f.cfg)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-f.deliv.sent:
	case <-time.After(3 * time.Second):
		t.Fatal("no tick fired")
	}
	s.Stop()
	s.Stop()

	n := f.deliv.count()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, n, f.deliv.count())
}
