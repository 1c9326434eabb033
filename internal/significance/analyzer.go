// Package significance scans a finished conversation for moments worth
// remembering and routes each finding into the relationship's documents.
package significance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/model"
)

// MaxLedgerItems caps tasks and threads written to the ledger.
const MaxLedgerItems = 5

// maxSnippet bounds sentence-level excerpts.
const maxSnippet = 240

// IdentityFact is a self-description tagged with the field it fills.
type IdentityFact struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

// Report is what one analysis pass found.
type Report struct {
	Moments    []model.SignificantMoment `json:"moments"`
	Relational []string                  `json:"relational"`
	Identity   []IdentityFact            `json:"identity"`
	Tasks      []string                  `json:"tasks"`
	Threads    []string                  `json:"threads"`
}

// Analyzer runs the rule table over transcripts.
type Analyzer struct {
	rules []Rule
	docs  *docs.Store
	log   *slog.Logger
	now   func() time.Time
}

// New returns an analyzer writing into store. A nil rules slice uses DefaultRules.
func New(store *docs.Store, rules []Rule, log *slog.Logger, now func() time.Time) *Analyzer {
	if rules == nil {
		rules = DefaultRules
	}
	if now == nil {
		now = time.Now
	}
	return &Analyzer{rules: rules, docs: store, log: log, now: now}
}

// Analyze classifies a transcript without touching disk.
func (a *Analyzer) Analyze(t model.Transcript) Report {
	human := t.HumanText()
	all := t.Text()

	var r Report
	for _, rule := range a.rules {
		text := human
		if rule.Scope == ScopeAll {
			text = all
		}
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			var quote string
			if rule.Window > 0 {
				quote = window(text, loc[0], loc[1], rule.Window)
			} else {
				quote = sentence(text, loc[0], loc[1])
			}
			if quote == "" {
				continue
			}
			switch rule.Route {
			case RouteMoment:
				r.Moments = append(r.Moments, model.SignificantMoment{
					Quote:    quote,
					Weight:   rule.Weight,
					Category: rule.Category,
					Why:      fmt.Sprintf("%s: %q", rule.Name, strings.ToLower(text[loc[0]:loc[1]])),
				})
			case RouteRelational:
				r.Relational = append(r.Relational, quote)
			case RouteIdentity:
				r.Identity = append(r.Identity, IdentityFact{Field: InferField(text[loc[0]:loc[1]]), Text: quote})
			case RouteTask:
				r.Tasks = appendUnique(r.Tasks, quote, MaxLedgerItems)
			case RouteThread:
				r.Threads = appendUnique(r.Threads, quote, MaxLedgerItems)
			}
		}
	}
	return r
}

// Run analyzes a transcript and writes every finding. Each routing step runs
// even when an earlier one fails; failures are logged and joined. Running
// twice on the same transcript appends every document entry twice.
func (a *Analyzer) Run(ctx context.Context, t model.Transcript) (Report, error) {
	r := a.Analyze(t)
	if err := ctx.Err(); err != nil {
		return r, err
	}

	var errs []error
	step := func(name string, err error) {
		if err != nil {
			a.log.Error("significance write dropped", "step", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("moments", a.docs.AppendMoments(r.Moments))
	step("growth-markers", a.docs.AppendDated(docs.Relational, docs.AnchorGrowthMarkers, growthMarkers(r.Moments)))
	step("relational", a.docs.AppendDated(docs.Relational, docs.AnchorObserved, r.Relational))

	facts := make([]string, len(r.Identity))
	for i, f := range r.Identity {
		facts[i] = fmt.Sprintf("(%s) %s", f.Field, f.Text)
	}
	step("identity", a.docs.AppendDated(docs.Profile, docs.AnchorLearned, facts))

	step("ledger", a.docs.WriteLedger(model.Ledger{
		Recent:          r.Tasks,
		OpenThreads:     r.Threads,
		LastInteraction: model.NormalizeTime(a.now()),
	}))

	a.log.Info("conversation analyzed",
		"moments", len(r.Moments),
		"relational", len(r.Relational),
		"identity", len(r.Identity),
		"tasks", len(r.Tasks),
		"threads", len(r.Threads))
	return r, errors.Join(errs...)
}

// growthMarkers lifts critical relationship moments into the document's
// "Growth Markers" section.
func growthMarkers(moments []model.SignificantMoment) []string {
	var out []string
	for _, m := range moments {
		if m.Weight == model.WeightCritical && m.Category == model.CategoryRelationship {
			out = append(out, clip(oneLine(m.Quote), maxSnippet))
		}
	}
	return out
}

// window returns up to n characters either side of [start, end), widened to
// whole words.
func window(text string, start, end, n int) string {
	lo := start - n
	if lo < 0 {
		lo = 0
	}
	hi := end + n
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !isSpace(text[lo-1]) && start-lo < n+20 {
		lo--
	}
	for hi < len(text) && !isSpace(text[hi]) && hi-end < n+20 {
		hi++
	}
	for lo > 0 && text[lo]&0xC0 == 0x80 {
		lo--
	}
	for hi < len(text) && text[hi]&0xC0 == 0x80 {
		hi++
	}
	return oneLine(text[lo:hi])
}

// sentence returns the sentence enclosing [start, end), clipped.
func sentence(text string, start, end int) string {
	lo := start
	for lo > 0 && !isBoundary(text[lo-1]) {
		lo--
	}
	hi := end
	for hi < len(text) && !isBoundary(text[hi]) {
		hi++
	}
	if hi < len(text) && text[hi] != '\n' {
		hi++
	}
	return clip(oneLine(text[lo:hi]), maxSnippet)
}

func isBoundary(c byte) bool {
	return c == '.' || c == '!' || c == '?' || c == '\n'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t'
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "…"
}

func appendUnique(list []string, s string, max int) []string {
	if len(list) >= max {
		return list
	}
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return list
		}
	}
	return append(list, s)
}
