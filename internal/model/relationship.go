package model

import (
	"strings"
	"time"
)

// IdleState is the durable per-relationship timing record.
type IdleState struct {
	LastInteraction   time.Time `json:"lastInteraction"`
	LastCheckIn       time.Time `json:"lastCheckIn"`
	RelationshipStart time.Time `json:"relationshipStart"`
	CheckInCount      int       `json:"checkInCount"`

	// QuestionsAsked holds gap keys already used as a check-in focus.
	QuestionsAsked []string `json:"questionsAsked,omitempty"`
}

// DefaultIdleState returns the state of a relationship that begins at now.
// LastCheckIn stays zero: a relationship that never checked in is not held
// back by the minimum gap.
func DefaultIdleState(now time.Time) IdleState {
	now = NormalizeTime(now)
	return IdleState{
		LastInteraction:   now,
		RelationshipStart: now,
	}
}

// Asked reports whether the gap key was already used as a check-in focus.
func (s IdleState) Asked(key string) bool {
	for _, k := range s.QuestionsAsked {
		if k == key {
			return true
		}
	}
	return false
}

// NormalizeTime drops the monotonic reading and sub-millisecond precision so
// persisted timestamps compare equal after a round trip.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Millisecond)
}

// QueryContext is the transient context handed to the agent.
type QueryContext struct {
	RecentTasks     []string `json:"recentTasks"`
	OpenThreads     []string `json:"openThreads"`
	LastTopic       string   `json:"lastTopic,omitempty"`
	RecentDecisions []string `json:"recentDecisions"`

	// Source records which tier produced the context: "semantic", "fallback" or "".
	Source string `json:"source,omitempty"`
}

// Empty reports whether the context carries nothing.
func (q QueryContext) Empty() bool {
	return len(q.RecentTasks) == 0 && len(q.OpenThreads) == 0 &&
		q.LastTopic == "" && len(q.RecentDecisions) == 0
}

// Snippets flattens the context into display order: threads, tasks, decisions, topic.
func (q QueryContext) Snippets() []string {
	var out []string
	out = append(out, q.OpenThreads...)
	out = append(out, q.RecentTasks...)
	out = append(out, q.RecentDecisions...)
	if q.LastTopic != "" {
		out = append(out, q.LastTopic)
	}
	return out
}

// GapCategory groups gaps by the document they concern.
type GapCategory string

const (
	GapIdentity   GapCategory = "identity"
	GapRelational GapCategory = "relational"
	GapPersona    GapCategory = "persona"
)

// Gap is a missing category of relationship knowledge.
type Gap struct {
	Key         string      `json:"key"`
	Category    GapCategory `json:"category"`
	Description string      `json:"description"`
	Question    string      `json:"question"`
	Required    bool        `json:"required"`
}

// Weight ranks a significant moment.
type Weight string

const (
	WeightCritical Weight = "CRITICAL"
	WeightHigh     Weight = "HIGH"
	WeightMedium   Weight = "MEDIUM"
	WeightLow      Weight = "LOW"
)

// MomentCategory classifies a significant moment.
type MomentCategory string

const (
	CategoryRelationship MomentCategory = "RELATIONSHIP"
	CategoryIdentity     MomentCategory = "IDENTITY"
	CategoryDecision     MomentCategory = "DECISION"
	CategoryEmotional    MomentCategory = "EMOTIONAL"
	CategoryDiscovery    MomentCategory = "DISCOVERY"
)

// SignificantMoment is an append-only excerpt worth remembering.
type SignificantMoment struct {
	Quote    string         `json:"quote"`
	Weight   Weight         `json:"weight"`
	Category MomentCategory `json:"category"`
	Why      string         `json:"why"`
}

// Ledger caches the most recent tasks and threads of a relationship.
type Ledger struct {
	Recent          []string  `json:"recent"`
	OpenThreads     []string  `json:"openThreads"`
	LastInteraction time.Time `json:"lastInteraction"`
}

// Utterance is one line of a conversation transcript.
type Utterance struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Transcript is the ordered utterances of one conversation.
type Transcript []Utterance

// HumanText joins everything the human said, one utterance per line.
func (t Transcript) HumanText() string {
	var b strings.Builder
	for _, u := range t {
		if u.Role != "human" {
			continue
		}
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Text joins the whole conversation, one utterance per line.
func (t Transcript) Text() string {
	var b strings.Builder
	for _, u := range t {
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
