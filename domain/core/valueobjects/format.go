package valueobjects

import (
	"fmt"
	"time"
)

// FormatDueWindow renders the cadence "next due" headline.
func FormatDueWindow(nextDueAt *time.Time, now time.Time) string {
	if nextDueAt == nil || nextDueAt.IsZero() {
		return "No active due window"
	}

	delta := DeltaMinutes(*nextDueAt, now)
	if delta <= -1 {
		return fmt.Sprintf("Overdue by %dm", -delta)
	}
	if delta < 60 {
		return fmt.Sprintf("Due in %dm", max(0, delta))
	}

	hours := int(roundHalfUp(float64(delta) / 60))
	if hours < 24 {
		return fmt.Sprintf("Due in %dh", hours)
	}
	return "Due " + nextDueAt.UTC().Format("Jan 2, 3:04 PM")
}

// FormatLatency renders an average response time. Nil means no resolved history.
func FormatLatency(minutes *float64) string {
	if minutes == nil {
		return "No data"
	}
	m := *minutes
	if m < 60 {
		return fmt.Sprintf("%dm", int(roundHalfUp(m)))
	}
	hours := m / 60
	if hours < 24 {
		return fmt.Sprintf("%.1fh", hours)
	}
	return fmt.Sprintf("%.1fd", hours/24)
}
