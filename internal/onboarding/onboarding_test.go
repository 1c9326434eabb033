package onboarding

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/gaps"
	"github.com/rcliao/rapport/internal/logging"
)

var day = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newFlow(t *testing.T) (*Flow, *docs.Store) {
	t.Helper()
	dir := t.TempDir()
	clock := func() time.Time { return day }
	store := docs.NewStore(dir, logging.Discard(), clock)
	require.NoError(t, store.EnsureTemplates())
	return New(dir, store, nil, logging.Discard(), clock), store
}

func texts(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Text
	}
	return out
}

func TestSequenceFollowsRequirementTable(t *testing.T) {
	steps := Sequence(gaps.DefaultRequirements)
	require.Len(t, steps, len(intro)+len(QuestionKeys)+1)

	var ids []string
	for _, s := range steps {
		if s.Kind == Question {
			ids = append(ids, s.ID)
		}
	}
	assert.Equal(t, QuestionKeys, ids)
	assert.Equal(t, "What should I call you?", steps[len(intro)].Text)
	assert.Equal(t, Message, steps[len(steps)-1].Kind)
}

func TestNextDeliversMessagesThenWaits(t *testing.T) {
	f, _ := newFlow(t)

	st, err := f.State()
	require.NoError(t, err)
	assert.False(t, st.Started())

	first, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, append(append([]string{}, intro...), "What should I call you?"), texts(first))

	again, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"What should I call you?"}, texts(again))

	st, err = f.State()
	require.NoError(t, err)
	assert.True(t, st.StartedAt.Equal(day))
	assert.Equal(t, len(intro), st.Step)
}

func TestAnswerBeforeNext(t *testing.T) {
	f, _ := newFlow(t)
	assert.ErrorIs(t, f.Answer("Priya"), ErrNoQuestion)
}

func TestFullRunFillsDocumentsAndGaps(t *testing.T) {
	f, store := newFlow(t)
	answers := map[string]string{
		"name":          "Priya",
		"work":          "ICU nurse, building a scheduling tool on the side",
		"technical":     "learning to code",
		"ai-history":    "they forget everything",
		"partnership":   "a collaborator who remembers context",
		"communication": "short and direct",
		"disagreement":  "tell me plainly",
		"autonomy":      "ask first on anything irreversible",
	}

	for {
		steps, err := f.Next()
		require.NoError(t, err)
		if len(steps) == 0 {
			break
		}
		last := steps[len(steps)-1]
		if last.Kind != Question {
			continue
		}
		require.NoError(t, f.Answer(answers[last.ID]))
	}

	st, err := f.State()
	require.NoError(t, err)
	assert.True(t, st.Complete())
	assert.Len(t, st.Responses, len(answers))
	assert.ErrorIs(t, f.Answer("late"), ErrComplete)

	profile, err := store.Read(docs.Profile)
	require.NoError(t, err)
	assert.Contains(t, profile, "## Basics\n\n### 2026-04-01\n- Name: Priya\n- Work: ICU nurse")

	rel, err := store.Read(docs.Relational)
	require.NoError(t, err)
	assert.Contains(t, rel, "- Partnership expectations: a collaborator who remembers context\n")
	assert.Contains(t, rel, "- Disagreement: tell me plainly\n")

	contents := map[docs.Kind]string{}
	for _, k := range docs.Kinds {
		contents[k], err = store.Read(k)
		require.NoError(t, err)
	}
	open := map[string]bool{}
	for _, g := range gaps.Evaluate(gaps.DefaultRequirements, contents) {
		open[g.Key] = true
	}
	for _, k := range QuestionKeys {
		assert.False(t, open[k], k)
	}
	assert.True(t, open["voice"])
}

func TestBlankAnswerSkips(t *testing.T) {
	f, store := newFlow(t)
	_, err := f.Next()
	require.NoError(t, err)
	require.NoError(t, f.Answer("   "))

	next, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"What kind of work do you do?"}, texts(next))

	profile, err := store.Read(docs.Profile)
	require.NoError(t, err)
	assert.Equal(t, docs.Template(docs.Profile), profile)

	st, err := f.State()
	require.NoError(t, err)
	assert.Empty(t, st.Responses)
}

func TestProgressSurvivesReopenAndReset(t *testing.T) {
	f, store := newFlow(t)
	_, err := f.Next()
	require.NoError(t, err)
	require.NoError(t, f.Answer("Priya"))

	dir := filepath.Dir(f.path)
	reopened := New(dir, store, nil, logging.Discard(), func() time.Time { return day })
	next, err := reopened.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"What kind of work do you do?"}, texts(next))

	status, err := reopened.Status()
	require.NoError(t, err)
	assert.Equal(t, "in progress", status.State)
	assert.Contains(t, status.Text(), "Name: Priya")

	require.NoError(t, reopened.Reset())
	_, err = os.Stat(filepath.Join(dir, StateFileName))
	assert.True(t, os.IsNotExist(err))
	status, err = reopened.Status()
	require.NoError(t, err)
	assert.Equal(t, "not started", status.State)
}

func TestCorruptStateStartsOver(t *testing.T) {
	f, _ := newFlow(t)
	require.NoError(t, os.WriteFile(f.path, []byte("{nope"), 0o644))
	st, err := f.State()
	require.NoError(t, err)
	assert.False(t, st.Started())
}
