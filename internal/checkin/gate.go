package checkin

import (
	"fmt"
	"time"

	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/timewindow"
)

// Decision is the gate's answer with the reason behind it.
type Decision struct {
	Send   bool   `json:"send"`
	Reason string `json:"reason"`
}

// ShouldSendCheckIn decides whether a proactive check-in may go out at now.
// Checks run in order: quiet hours, minimum gap since the last check-in, then
// the idle threshold. A relationship that never checked in passes the gap check.
func ShouldSendCheckIn(s model.IdleState, threshold time.Duration, window timewindow.Window, minGap time.Duration, now time.Time) Decision {
	if window.InSleep(now) {
		return Decision{Reason: "quiet hours"}
	}
	if !s.LastCheckIn.IsZero() {
		if since := now.Sub(s.LastCheckIn); since < minGap {
			return Decision{Reason: fmt.Sprintf("checked in %s ago (minimum gap %s)", hours(since), hours(minGap))}
		}
	}
	idle := now.Sub(s.LastInteraction)
	if idle < threshold {
		return Decision{Reason: fmt.Sprintf("only %s idle (threshold %s)", hours(idle), hours(threshold))}
	}
	return Decision{Send: true, Reason: fmt.Sprintf("%s idle", hours(idle))}
}

func hours(d time.Duration) string {
	return fmt.Sprintf("%.1fh", d.Hours())
}
