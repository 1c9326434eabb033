// Package checkin decides when a proactive check-in is due and composes the
// structured hint handed to the agent.
package checkin

import (
	"time"

	"github.com/rcliao/rapport/internal/model"
)

// DefaultLearningPeriod is how long a new relationship stays in learning mode.
const DefaultLearningPeriod = 14 * 24 * time.Hour

// Mode is the relationship maturity.
type Mode string

const (
	Learning Mode = "learning"
	Mature   Mode = "mature"
)

// Policy holds the mode-dependent thresholds.
type Policy struct {
	LearningPeriod    time.Duration
	LearningThreshold time.Duration
	MatureThreshold   time.Duration
}

// IsLearningMode reports whether the relationship is younger than the
// learning period at now.
func (p Policy) IsLearningMode(s model.IdleState, now time.Time) bool {
	period := p.LearningPeriod
	if period == 0 {
		period = DefaultLearningPeriod
	}
	return now.Sub(s.RelationshipStart) < period
}

// Mode returns the relationship mode at now.
func (p Policy) Mode(s model.IdleState, now time.Time) Mode {
	if p.IsLearningMode(s, now) {
		return Learning
	}
	return Mature
}

// SelectThreshold returns the idle threshold that applies at now.
func (p Policy) SelectThreshold(s model.IdleState, now time.Time) time.Duration {
	if p.IsLearningMode(s, now) {
		return p.LearningThreshold
	}
	return p.MatureThreshold
}
