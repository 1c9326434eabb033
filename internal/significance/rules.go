package significance

import (
	"regexp"
	"strings"

	"github.com/rcliao/rapport/internal/model"
)

// Route says where a rule's hits go.
type Route string

const (
	// RouteMoment records a significant moment in the dated log.
	RouteMoment Route = "moment"
	// RouteRelational appends a line to the relationship-dynamics document.
	RouteRelational Route = "relational"
	// RouteIdentity appends a tagged fact to the user-profile document.
	RouteIdentity Route = "identity"
	// RouteTask and RouteThread feed the task ledger.
	RouteTask   Route = "task"
	RouteThread Route = "thread"
)

// Scope selects which utterances a rule scans.
type Scope int

const (
	ScopeHuman Scope = iota
	ScopeAll
)

// Rule is one row of the classification table. Adding a pattern is adding a row.
type Rule struct {
	Name     string
	Route    Route
	Scope    Scope
	Pattern  *regexp.Regexp
	Weight   model.Weight
	Category model.MomentCategory
	// Window, when set, quotes that many characters either side of the match
	// instead of the enclosing sentence.
	Window int
}

// ExplicitMarkers are phrases the user uses to flag something as important.
var ExplicitMarkers = []string{
	"remember this",
	"this matters",
	"this is important",
	"really important",
	"don't forget",
	"we need to remember",
	"significant learning",
	"pay attention",
}

// MarkerWindow is the context kept either side of an explicit marker.
const MarkerWindow = 150

func markerPattern(markers []string) *regexp.Regexp {
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
}

// DefaultRules is the built-in classification table.
var DefaultRules = []Rule{
	{
		Name:     "explicit-marker",
		Route:    RouteMoment,
		Pattern:  markerPattern(ExplicitMarkers),
		Weight:   model.WeightCritical,
		Category: model.CategoryRelationship,
		Window:   MarkerWindow,
	},
	{
		Name:     "decision",
		Route:    RouteMoment,
		Scope:    ScopeAll,
		Pattern:  regexp.MustCompile(`(?i)\b(?:let'?s go with|let'?s do|i'?ve decided|we'?ve decided|i decided|we decided|decided to|we'?ll go with|i'?m going with|the plan is)\b`),
		Weight:   model.WeightHigh,
		Category: model.CategoryDecision,
	},
	{
		Name:     "emotional",
		Route:    RouteMoment,
		Pattern:  regexp.MustCompile(`(?i)\b(?:i'?m (?:so |really )?(?:excited|worried|stressed|anxious|thrilled|scared|overwhelmed|proud)|this is (?:huge|amazing|terrifying))\b`),
		Weight:   model.WeightMedium,
		Category: model.CategoryEmotional,
	},
	{
		Name:     "discovery",
		Route:    RouteMoment,
		Pattern:  regexp.MustCompile(`(?i)\b(?:i just realized|i realized|it turns out|now i understand|i never knew)\b`),
		Weight:   model.WeightMedium,
		Category: model.CategoryDiscovery,
	},
	{
		Name:    "relational-preference",
		Route:   RouteRelational,
		Pattern: regexp.MustCompile(`(?i)\b(?:i prefer(?: it)? when|i prefer|i like it when|i appreciate (?:it )?when|i'?d rather you|i wish you would|please always|please don'?t)\b`),
	},
	{
		Name:    "relational-frustration",
		Route:   RouteRelational,
		Pattern: regexp.MustCompile(`(?i)\b(?:it frustrates me when|it annoys me when|i hate (?:it )?when|i don'?t like (?:it )?when|it bugs me when)\b`),
	},
	{
		Name:    "identity",
		Route:   RouteIdentity,
		Pattern: regexp.MustCompile(`(?i)\b(?:my name is|call me|i'?m called|i work as|i work at|i work in|my job is|i'?m an? (?:engineer|developer|designer|founder|teacher|nurse|student|manager|writer|researcher)|i grew up in|i live in|i'?m from|i studied)\b`),
	},
	{
		Name:    "task",
		Route:   RouteTask,
		Pattern: regexp.MustCompile(`(?i)\b(?:need to|have to|working on|gotta|got to|planning to)\b`),
	},
	{
		Name:    "thread",
		Route:   RouteThread,
		Pattern: regexp.MustCompile(`(?i)\b(?:later|revisit|come back to|circle back|pick (?:this|it|that) up|park (?:this|that)|next time)\b`),
	},
}

// identityFields maps keywords to the profile field they describe. The first
// matching field wins.
var identityFields = []struct {
	field    string
	keywords []string
}{
	{"name", []string{"name", "call me", "called"}},
	{"work", []string{"work", "job", "engineer", "developer", "designer", "founder", "teacher", "nurse", "manager", "writer", "researcher", "student"}},
	{"background", []string{"grew up", "live in", "from", "studied"}},
}

// InferField picks the profile field an identity statement describes.
func InferField(text string) string {
	lower := strings.ToLower(text)
	for _, f := range identityFields {
		for _, k := range f.keywords {
			if strings.Contains(lower, k) {
				return f.field
			}
		}
	}
	return "background"
}
