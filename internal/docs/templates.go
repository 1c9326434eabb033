package docs

// Section anchors the analyzer and onboarding write under.
const (
	AnchorObserved      = "## Observed Patterns"
	AnchorGrowthMarkers = "## Growth Markers"
	AnchorLearned       = "## Learned"
	AnchorCommunication = "## Communication"
	AnchorVoice         = "## Voice"
	AnchorBasics        = "## Basics"
)

var templates = map[Kind]string{
	Relational: `# Relational Dynamics

How we work together. Edit freely; new observations are added below their section.

## Communication

## Disagreements

## Observed Patterns

## Growth Markers
`,
	Profile: `# User Profile

Who I'm talking to. Edit freely; learned facts are added under "Learned".

## Basics

## Learned
`,
	Identity: `# Identity

Who I am in this relationship.

## Voice

## Principles
`,
}

// Template returns the pristine content of a living document.
func Template(k Kind) string {
	return templates[k]
}
