// Package gaps finds categories of relationship knowledge the living
// documents do not cover yet and suggests one question for each.
package gaps

import (
	"log/slog"
	"strings"

	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/model"
)

// Requirement is one row of the gap table: a category is covered when any
// keyword appears in the document. Label prefixes a direct answer written to
// Doc and always contains one of the keywords.
type Requirement struct {
	Key         string
	Category    model.GapCategory
	Doc         docs.Kind
	Label       string
	Keywords    []string
	Description string
	Question    string
	Required    bool
}

// DefaultRequirements is ordered by priority: identity, relational, persona.
var DefaultRequirements = []Requirement{
	{
		Key: "name", Category: model.GapIdentity, Doc: docs.Profile, Label: "Name", Required: true,
		Keywords:    []string{"name", "call you", "call me"},
		Description: "Don't know what to call them",
		Question:    "What should I call you?",
	},
	{
		Key: "work", Category: model.GapIdentity, Doc: docs.Profile, Label: "Work", Required: true,
		Keywords:    []string{"work", "job", "build", "founder", "engineer", "developer"},
		Description: "Don't know what kind of work they do",
		Question:    "What kind of work do you do?",
	},
	{
		Key: "technical", Category: model.GapIdentity, Doc: docs.Profile, Label: "Technical level",
		Keywords:    []string{"technical", "engineer", "developer", "code"},
		Description: "Don't know their technical level",
		Question:    "Are you more on the technical side or the business side?",
	},
	{
		Key: "ai-history", Category: model.GapIdentity, Doc: docs.Profile, Label: "AI frustrations",
		Keywords:    []string{"frustrat", "previous ai", "other ai", "chatgpt", "assistant"},
		Description: "Don't know their experience with AI",
		Question:    "What's frustrated you most about AI assistants before?",
	},
	{
		Key: "communication", Category: model.GapRelational, Doc: docs.Relational, Label: "Communication", Required: true,
		Keywords:    []string{"communication", "direct", "concise", "short", "detail"},
		Description: "Don't know their communication preferences",
		Question:    "When I respond, do you prefer I get straight to the point, or is more context helpful?",
	},
	{
		Key: "partnership", Category: model.GapRelational, Doc: docs.Relational, Label: "Partnership expectations",
		Keywords:    []string{"partner", "expect"},
		Description: "Don't know what they expect from the partnership",
		Question:    "When working with a partner, what do you expect the relationship to be like?",
	},
	{
		Key: "disagreement", Category: model.GapRelational, Doc: docs.Relational, Label: "Disagreement", Required: true,
		Keywords:    []string{"disagree", "push back", "pushback"},
		Description: "Don't know how to handle disagreements",
		Question:    "When I think you might be heading the wrong direction, how direct should I be about it?",
	},
	{
		Key: "autonomy", Category: model.GapRelational, Doc: docs.Relational, Label: "Autonomy",
		Keywords:    []string{"decision", "autonom", "ask first"},
		Description: "Don't know how much autonomy to take",
		Question:    "When there's a decision to make, do you want me to ask first or use my best judgment?",
	},
	{
		Key: "rhythm", Category: model.GapRelational, Doc: docs.Relational, Label: "Work rhythm",
		Keywords:    []string{"rhythm", "hours", "time of day", "morning", "evening"},
		Description: "Don't know their work rhythm",
		Question:    "Are there times of day when you'd rather I didn't check in?",
	},
	{
		Key: "voice", Category: model.GapPersona, Doc: docs.Identity, Label: "Voice",
		Keywords:    []string{"voice", "tone"},
		Description: "Haven't calibrated voice and tone",
		Question:    "Does my communication style work for you so far, or should I adjust something?",
	},
}

// Detector evaluates the requirement table against a relationship's documents.
type Detector struct {
	store *docs.Store
	reqs  []Requirement
	log   *slog.Logger
}

// NewDetector returns a detector. A nil table uses DefaultRequirements.
func NewDetector(store *docs.Store, reqs []Requirement, log *slog.Logger) *Detector {
	if reqs == nil {
		reqs = DefaultRequirements
	}
	return &Detector{store: store, reqs: reqs, log: log}
}

// Detect reads the documents and returns the gaps in priority order. An
// unreadable document counts as empty.
func (d *Detector) Detect() []model.Gap {
	texts := make(map[docs.Kind]string, len(docs.Kinds))
	for _, k := range docs.Kinds {
		t, err := d.store.Read(k)
		if err != nil {
			d.log.Warn("document unreadable, treating as empty", "doc", k, "err", err)
		}
		texts[k] = t
	}
	return Evaluate(d.reqs, texts)
}

// Refresh detects gaps and mirrors them to the advisory side file.
func (d *Detector) Refresh() []model.Gap {
	found := d.Detect()
	if err := d.store.WriteGapMirror(found); err != nil {
		d.log.Warn("gap mirror not written", "path", d.store.GapMirrorPath(), "err", err)
	}
	return found
}

// Evaluate is the pure core of Detect: a requirement produces a gap when none
// of its keywords appear in the document's own content. Headings and
// template boilerplate do not count.
func Evaluate(reqs []Requirement, texts map[docs.Kind]string) []model.Gap {
	content := make(map[docs.Kind]string, len(texts))
	for k, t := range texts {
		content[k] = strings.ToLower(ownContent(t, docs.Template(k)))
	}

	var out []model.Gap
	for _, r := range reqs {
		if mentionsAny(content[r.Doc], r.Keywords) {
			continue
		}
		out = append(out, model.Gap{
			Key:         r.Key,
			Category:    r.Category,
			Description: r.Description,
			Question:    r.Question,
			Required:    r.Required,
		})
	}
	return out
}

// ownContent drops heading lines and lines copied verbatim from the template.
func ownContent(doc, template string) string {
	boiler := make(map[string]bool)
	for _, l := range strings.Split(template, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			boiler[l] = true
		}
	}
	var b strings.Builder
	for _, l := range strings.Split(doc, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") || boiler[l] {
			continue
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

func mentionsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Find returns the requirement with the given key.
func Find(reqs []Requirement, key string) (Requirement, bool) {
	for _, r := range reqs {
		if r.Key == key {
			return r, true
		}
	}
	return Requirement{}, false
}
