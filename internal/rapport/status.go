package rapport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rcliao/rapport/internal/checkin"
	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/recall"
)

// Status is a snapshot of the relationship's check-in state.
type Status struct {
	RelationshipID string           `json:"relationshipId"`
	Mode           checkin.Mode     `json:"mode"`
	Threshold      time.Duration    `json:"thresholdNs"`
	State          model.IdleState  `json:"state"`
	QuietHours     bool             `json:"quietHours"`
	Window         string           `json:"sleepWindow"`
	Decision       checkin.Decision `json:"decision"`
	ProactiveOn    bool             `json:"proactiveCheckIns"`
	Gaps           int              `json:"gaps"`
	Now            time.Time        `json:"now"`
}

// Status evaluates the gate without side effects.
func (s *Service) Status(ctx context.Context) (Status, error) {
	now := s.now()
	st, err := s.idle.Load(ctx, s.cfg.RelationshipID)
	if err != nil {
		return Status{}, fmt.Errorf("load idle state: %w", err)
	}
	w := s.cfg.Window()
	threshold := s.policy.SelectThreshold(st, now)
	return Status{
		RelationshipID: s.cfg.RelationshipID,
		Mode:           s.policy.Mode(st, now),
		Threshold:      threshold,
		State:          st,
		QuietHours:     w.InSleep(now),
		Window:         w.String(),
		Decision:       checkin.ShouldSendCheckIn(st, threshold, w, s.cfg.MinGap(), now),
		ProactiveOn:    s.cfg.ProactiveCheckIns,
		Gaps:           len(s.gaps.Detect()),
		Now:            now,
	}, nil
}

// Text renders the status for humans.
func (st Status) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relationship:   %s (%s mode, started %s)\n",
		st.RelationshipID, st.Mode, ago(st.State.RelationshipStart, st.Now))
	fmt.Fprintf(&b, "Idle threshold: %s\n", st.Threshold)
	fmt.Fprintf(&b, "Last seen:      %s\n", ago(st.State.LastInteraction, st.Now))
	fmt.Fprintf(&b, "Last check-in:  %s\n", ago(st.State.LastCheckIn, st.Now))
	fmt.Fprintf(&b, "Check-ins:      %s\n", humanize.Comma(int64(st.State.CheckInCount)))
	fmt.Fprintf(&b, "Quiet hours:    %s (now %v)\n", st.Window, st.QuietHours)
	fmt.Fprintf(&b, "Open gaps:      %d\n", st.Gaps)
	verdict := "hold"
	if st.Decision.Send {
		verdict = "send"
	}
	if !st.ProactiveOn {
		verdict += " (proactive check-ins disabled)"
	}
	fmt.Fprintf(&b, "Gate:           %s: %s\n", verdict, st.Decision.Reason)
	return b.String()
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Preview is what the next check-in would carry, computed without
// dispatching or saving anything.
type Preview struct {
	Decision checkin.Decision   `json:"decision"`
	Context  model.QueryContext `json:"context"`
	Gaps     []model.Gap        `json:"gaps"`
	Hint     checkin.Hint       `json:"hint"`
}

// Preview composes the hint the scheduler would send now.
func (s *Service) Preview(ctx context.Context) (Preview, error) {
	now := s.now()
	st, err := s.idle.Load(ctx, s.cfg.RelationshipID)
	if err != nil {
		return Preview{}, fmt.Errorf("load idle state: %w", err)
	}
	w := s.cfg.Window()
	threshold := s.policy.SelectThreshold(st, now)

	p := Preview{
		Decision: checkin.ShouldSendCheckIn(st, threshold, w, s.cfg.MinGap(), now),
		Context:  s.extractor.Extract(ctx, recall.DefaultIntents),
	}
	if s.cfg.GapDetection {
		p.Gaps = s.gaps.Detect()
	}
	p.Hint = checkin.Compose(checkin.Input{
		State:   st,
		Mode:    s.policy.Mode(st, now),
		Reading: w.Evaluate(now),
		Context: p.Context,
		Gaps:    p.Gaps,
		Now:     now,
	})
	return p, nil
}
