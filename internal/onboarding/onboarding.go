// Package onboarding runs the first-contact sequence: a short introduction,
// then one question at a time, each answer written into the living document
// its gap row names.
package onboarding

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/fsutil"
	"github.com/rcliao/rapport/internal/gaps"
	"github.com/rcliao/rapport/internal/model"
)

// StateFileName sits next to the idle-state file in the relationship directory.
const StateFileName = "onboarding.json"

var (
	ErrComplete   = errors.New("onboarding already complete")
	ErrNoQuestion = errors.New("no question pending; call Next first")
)

// StepKind says whether a step waits for an answer.
type StepKind string

const (
	Message  StepKind = "message"
	Question StepKind = "question"
)

// Step is one line the agent says. Question steps carry the gap row whose
// category the answer fills.
type Step struct {
	ID   string   `json:"id"`
	Kind StepKind `json:"kind"`
	Text string   `json:"text"`

	req gaps.Requirement
}

// QuestionKeys orders the questions from basics to calibration.
var QuestionKeys = []string{"name", "work", "technical", "ai-history", "partnership", "communication", "disagreement", "autonomy"}

var (
	intro = []string{
		"Hi. I'd like to get to know you a little, so I can be more useful the longer we work together.",
		"A few quick questions, one at a time. Skip any you like.",
	}
	outro = "Thanks, that gives me somewhere to start. I'll keep learning as we go. What's on your mind?"
)

// Sequence builds the steps from a requirement table. Keys missing from the
// table are skipped.
func Sequence(reqs []gaps.Requirement) []Step {
	var out []Step
	for i, t := range intro {
		out = append(out, Step{ID: fmt.Sprintf("intro-%d", i+1), Kind: Message, Text: t})
	}
	for _, k := range QuestionKeys {
		r, ok := gaps.Find(reqs, k)
		if !ok {
			continue
		}
		out = append(out, Step{ID: r.Key, Kind: Question, Text: r.Question, req: r})
	}
	return append(out, Step{ID: "close", Kind: Message, Text: outro})
}

// Response is a recorded answer.
type Response struct {
	Label string    `json:"label"`
	Value string    `json:"value"`
	At    time.Time `json:"at"`
}

// State is the persisted progress through the sequence.
type State struct {
	StartedAt   time.Time           `json:"startedAt,omitzero"`
	CompletedAt time.Time           `json:"completedAt,omitzero"`
	Step        int                 `json:"step"`
	Responses   map[string]Response `json:"responses,omitempty"`
}

func (s State) Started() bool  { return !s.StartedAt.IsZero() }
func (s State) Complete() bool { return !s.CompletedAt.IsZero() }

// Flow drives the sequence for one relationship.
type Flow struct {
	path  string
	steps []Step
	docs  *docs.Store
	log   *slog.Logger
	now   func() time.Time
	mu    sync.Mutex
}

// New returns a flow persisting to dir/onboarding.json. A nil table uses
// gaps.DefaultRequirements.
func New(dir string, store *docs.Store, reqs []gaps.Requirement, log *slog.Logger, now func() time.Time) *Flow {
	if reqs == nil {
		reqs = gaps.DefaultRequirements
	}
	if now == nil {
		now = time.Now
	}
	return &Flow{
		path:  filepath.Join(dir, StateFileName),
		steps: Sequence(reqs),
		docs:  store,
		log:   log,
		now:   now,
	}
}

// Steps returns the full sequence.
func (f *Flow) Steps() []Step { return f.steps }

// State loads the current progress. A missing file means not started; an
// unreadable one is logged and treated the same.
func (f *Flow) State() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// Next returns what the agent should say now: any pending messages followed
// by the pending question, if there is one. Messages count as delivered once
// returned. It returns nothing when the sequence is complete.
func (f *Flow) Next() ([]Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return nil, err
	}
	if st.Complete() {
		return nil, nil
	}
	if !st.Started() {
		st.StartedAt = model.NormalizeTime(f.now())
	}

	var out []Step
	for st.Step < len(f.steps) {
		step := f.steps[st.Step]
		out = append(out, step)
		if step.Kind == Question {
			break
		}
		st.Step++
	}
	f.finish(&st)
	return out, f.save(st)
}

// Answer records text as the answer to the pending question, writes it to the
// question's document and moves on. A blank answer skips the question. When
// the document write fails the step does not advance.
func (f *Flow) Answer(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return err
	}
	if st.Complete() {
		return ErrComplete
	}
	if !st.Started() || st.Step >= len(f.steps) || f.steps[st.Step].Kind != Question {
		return ErrNoQuestion
	}
	step := f.steps[st.Step]

	if text = strings.Join(strings.Fields(text), " "); text != "" {
		line := fmt.Sprintf("%s: %s", step.req.Label, text)
		if err := f.docs.AppendDated(step.req.Doc, anchor(step.req.Doc), []string{line}); err != nil {
			return fmt.Errorf("record %s: %w", step.ID, err)
		}
		if st.Responses == nil {
			st.Responses = map[string]Response{}
		}
		st.Responses[step.ID] = Response{Label: step.req.Label, Value: text, At: model.NormalizeTime(f.now())}
	} else {
		f.log.Info("onboarding question skipped", "step", step.ID)
	}

	st.Step++
	f.finish(&st)
	return f.save(st)
}

// Reset forgets all progress. Answers already written to documents stay.
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset onboarding: %w", err)
	}
	return nil
}

func (f *Flow) finish(st *State) {
	if st.Step >= len(f.steps) && !st.Complete() {
		st.CompletedAt = model.NormalizeTime(f.now())
		f.log.Info("onboarding complete", "answers", len(st.Responses))
	}
}

func anchor(k docs.Kind) string {
	switch k {
	case docs.Profile:
		return docs.AnchorBasics
	case docs.Identity:
		return docs.AnchorVoice
	default:
		return docs.AnchorCommunication
	}
}

func (f *Flow) load() (State, error) {
	raw, err := fsutil.ReadFileOrEmpty(f.path)
	if err != nil {
		return State{}, fmt.Errorf("read onboarding state: %w", err)
	}
	if raw == "" {
		return State{}, nil
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		f.log.Warn("onboarding state corrupt, starting over", "path", f.path, "err", err)
		return State{}, nil
	}
	return st, nil
}

func (f *Flow) save(st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode onboarding state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(f.path, b); err != nil {
		return fmt.Errorf("write onboarding state: %w", err)
	}
	return nil
}

// Status summarizes progress for display.
type Status struct {
	State     string              `json:"state"`
	Step      int                 `json:"step"`
	Total     int                 `json:"total"`
	Pending   string              `json:"pending,omitempty"`
	Responses map[string]Response `json:"responses,omitempty"`
}

// Status reports where the sequence stands.
func (f *Flow) Status() (Status, error) {
	st, err := f.State()
	if err != nil {
		return Status{}, err
	}
	out := Status{State: "not started", Step: st.Step, Total: len(f.steps), Responses: st.Responses}
	switch {
	case st.Complete():
		out.State = "complete"
	case st.Started():
		out.State = "in progress"
		if st.Step < len(f.steps) {
			out.Pending = f.steps[st.Step].Text
		}
	}
	return out, nil
}

// Text renders the status for the terminal.
func (s Status) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Onboarding: %s", s.State)
	if s.State == "in progress" {
		fmt.Fprintf(&b, " (step %d of %d)", s.Step+1, s.Total)
	}
	b.WriteString("\n")
	if s.Pending != "" {
		fmt.Fprintf(&b, "Waiting on: %s\n", s.Pending)
	}
	for _, id := range QuestionKeys {
		if r, ok := s.Responses[id]; ok {
			fmt.Fprintf(&b, "  %s: %s\n", r.Label, r.Value)
		}
	}
	return b.String()
}
