// Package scheduler runs the proactive check-in loop: on every tick it
// evaluates the gate and, when it opens, composes and dispatches one hint.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rcliao/rapport/internal/checkin"
	"github.com/rcliao/rapport/internal/delivery"
	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/idle"
	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/recall"
	"github.com/rcliao/rapport/internal/timewindow"
)

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = 30 * time.Minute

// State is the scheduler's position in the tick state machine.
type State string

const (
	StateIdle        State = "idle"
	StateEvaluating  State = "evaluating"
	StateSuppressed  State = "suppressed"
	StateDispatching State = "dispatching"
)

// ContextSource yields recall context for a check-in.
type ContextSource interface {
	Extract(ctx context.Context, intents []recall.Intent) model.QueryContext
}

// GapSource yields the current gaps in priority order.
type GapSource interface {
	Detect() []model.Gap
}

// Journal records dispatched check-ins.
type Journal interface {
	AppendCheckIn(e docs.CheckInEntry) error
}

// Config wires a Scheduler.
type Config struct {
	RelationshipID string
	Interval       time.Duration
	Enabled        bool
	Policy         checkin.Policy
	Window         timewindow.Window
	MinGap         time.Duration
	Destination    string

	Idle      idle.Repository
	Context   ContextSource
	Gaps      GapSource // nil disables gap focus
	Deliverer delivery.Deliverer
	Journal   Journal // optional

	Now func() time.Time
	Log *slog.Logger
}

// Outcome describes one tick.
type Outcome struct {
	State    State
	Decision checkin.Decision
	Request  *delivery.Request
	Err      error
}

// Scheduler drives ticks from a cron entry.
type Scheduler struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	state   State
	cron    *cron.Cron
	running bool

	// onState observes transitions; tests use it.
	onState func(State)
}

// New returns a stopped scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{cfg: cfg, log: cfg.Log, state: StateIdle}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
	s.log.Debug("check-in state", "state", st)
}

// Start schedules ticks every Interval. A tick still running when the next
// one is due causes that one to be skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	logger := cronLogger{s.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	spec := "@every " + s.cfg.Interval.String()
	if _, err := c.AddFunc(spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.Info("check-in scheduler started", "interval", s.cfg.Interval, "relationship", s.cfg.RelationshipID)
	return nil
}

// Stop prevents further ticks and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	s.log.Info("check-in scheduler stopped")
}

// Tick runs one evaluation. It never panics and never mutates idle state
// unless a check-in was handed to the deliverer.
func (s *Scheduler) Tick(ctx context.Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("check-in tick panicked", "panic", r)
			out = Outcome{State: StateSuppressed, Err: fmt.Errorf("tick panicked: %v", r)}
		}
		s.setState(StateIdle)
	}()

	s.setState(StateEvaluating)
	now := s.cfg.Now()

	if !s.cfg.Enabled {
		s.setState(StateSuppressed)
		return Outcome{State: StateSuppressed, Decision: checkin.Decision{Reason: "proactive check-ins disabled"}}
	}

	st, err := s.cfg.Idle.Load(ctx, s.cfg.RelationshipID)
	if err != nil {
		s.log.Warn("idle state unavailable, skipping tick", "err", err)
		s.setState(StateSuppressed)
		return Outcome{State: StateSuppressed, Err: err}
	}

	mode := s.cfg.Policy.Mode(st, now)
	threshold := s.cfg.Policy.SelectThreshold(st, now)
	dec := checkin.ShouldSendCheckIn(st, threshold, s.cfg.Window, s.cfg.MinGap, now)
	if !dec.Send {
		s.setState(StateSuppressed)
		s.log.Debug("check-in suppressed", "reason", dec.Reason, "mode", mode)
		return Outcome{State: StateSuppressed, Decision: dec}
	}

	s.setState(StateDispatching)

	var qc model.QueryContext
	if s.cfg.Context != nil {
		qc = s.cfg.Context.Extract(ctx, recall.DefaultIntents)
	}
	var gaps []model.Gap
	if s.cfg.Gaps != nil {
		gaps = s.cfg.Gaps.Detect()
	}

	hint := checkin.Compose(checkin.Input{
		State:   st,
		Mode:    mode,
		Reading: s.cfg.Window.Evaluate(now),
		Context: qc,
		Gaps:    gaps,
		Now:     now,
	})
	req := delivery.NewRequest(now, s.cfg.Destination, hint)

	if res := s.cfg.Deliverer.Deliver(ctx, req); res.Kind != model.KindNone {
		err := fmt.Errorf("delivery %s", res.Kind)
		s.log.Warn("check-in not enqueued, will retry next tick", "id", req.ID, "kind", res.Kind)
		return Outcome{State: StateDispatching, Decision: dec, Err: err}
	}

	if _, err := s.cfg.Idle.Update(ctx, s.cfg.RelationshipID, func(st *model.IdleState) error {
		idle.MarkCheckIn(st, now, hint.GapKey)
		return nil
	}); err != nil {
		s.log.Error("check-in sent but state not saved", "id", req.ID, "err", err)
		return Outcome{State: StateDispatching, Decision: dec, Request: &req, Err: err}
	}

	if s.cfg.Journal != nil {
		if err := s.cfg.Journal.AppendCheckIn(docs.CheckInEntry{
			At:     now,
			Mode:   string(mode),
			Gap:    hint.GapKey,
			Reason: dec.Reason,
			Focus:  hint.Focus,
		}); err != nil {
			s.log.Error("check-in log not written", "err", err)
		}
	}

	s.log.Info("check-in dispatched", "id", req.ID, "mode", mode, "focus", hint.FocusKind, "reason", dec.Reason)
	return Outcome{State: StateDispatching, Decision: dec, Request: &req}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kv, "err", err)...)
}
