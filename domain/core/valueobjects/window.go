package valueobjects

import (
	"fmt"
	"math"
	"time"
)

// WindowStage buckets the time remaining until a request is due.
type WindowStage string

const (
	StageNone     WindowStage = "none"
	StageStable   WindowStage = "stable"
	StageClosing  WindowStage = "closing"
	StageCritical WindowStage = "critical"
	StageOverdue  WindowStage = "overdue"
)

// IsCriticalClass reports whether the stage demands an immediate response.
func (s WindowStage) IsCriticalClass() bool {
	return s == StageCritical || s == StageOverdue
}

// SeverityTier is the display emphasis of a window.
type SeverityTier string

const (
	SeverityDestructive SeverityTier = "destructive"
	SeverityDefault     SeverityTier = "default"
	SeveritySecondary   SeverityTier = "secondary"
)

const (
	// NoWindowSortRank sorts requests without a due time after everything else.
	NoWindowSortRank = 9_999_999
	overdueSortBase  = -100_000
)

// WindowBounds are the stage boundaries in minutes.
type WindowBounds struct {
	CriticalMinutes int
	ClosingMinutes  int
	DayMinutes      int
}

// DefaultWindowBounds returns the 120/360/1440 minute boundaries.
func DefaultWindowBounds() WindowBounds {
	return WindowBounds{CriticalMinutes: 120, ClosingMinutes: 360, DayMinutes: 1440}
}

// Window is the classification of a due time relative to now.
type Window struct {
	Label        string       `json:"label"`
	SeverityTier SeverityTier `json:"severityTier"`
	SortRank     int          `json:"sortRank"`
	Overdue      bool         `json:"overdue"`
	Stage        WindowStage  `json:"stage"`
}

func noWindow() Window {
	return Window{
		Label:        "No window",
		SeverityTier: SeveritySecondary,
		SortRank:     NoWindowSortRank,
		Stage:        StageNone,
	}
}

// ClassifyWindow buckets dueAt relative to now. It never fails: a nil or zero
// dueAt yields the "none" stage.
func ClassifyWindow(dueAt *time.Time, now time.Time, bounds WindowBounds) Window {
	if dueAt == nil || dueAt.IsZero() {
		return noWindow()
	}

	delta := DeltaMinutes(*dueAt, now)
	switch {
	case delta < 0:
		return Window{
			Label:        fmt.Sprintf("Overdue %dm", -delta),
			SeverityTier: SeverityDestructive,
			SortRank:     overdueSortBase + delta,
			Overdue:      true,
			Stage:        StageOverdue,
		}
	case delta <= bounds.CriticalMinutes:
		return Window{
			Label:        fmt.Sprintf("Critical Window %dm", delta),
			SeverityTier: SeverityDestructive,
			SortRank:     delta,
			Stage:        StageCritical,
		}
	case delta <= bounds.ClosingMinutes:
		return Window{
			Label:        fmt.Sprintf("Closing Soon %dh", ceilHours(delta)),
			SeverityTier: SeverityDefault,
			SortRank:     delta,
			Stage:        StageClosing,
		}
	case delta < bounds.DayMinutes:
		return Window{
			Label:        fmt.Sprintf("Due in %dh", ceilHours(delta)),
			SeverityTier: SeveritySecondary,
			SortRank:     delta,
			Stage:        StageStable,
		}
	default:
		return Window{
			Label:        "Due " + dueAt.UTC().Format("Jan 2"),
			SeverityTier: SeveritySecondary,
			SortRank:     delta,
			Stage:        StageStable,
		}
	}
}

// ClassifyWindowString classifies an ISO-8601 due time. Unparsable input is
// treated as absent.
func ClassifyWindowString(dueAt string, now time.Time, bounds WindowBounds) Window {
	parsed, ok := ParseTimestamp(dueAt)
	if !ok {
		return noWindow()
	}
	return ClassifyWindow(&parsed, now, bounds)
}

// DeltaMinutes returns whole minutes from now until t, rounding halves up.
func DeltaMinutes(t, now time.Time) int {
	minutes := float64(t.Sub(now).Milliseconds()) / 60_000
	return int(roundHalfUp(minutes))
}

// ParseTimestamp accepts RFC 3339 timestamps with or without fractional seconds.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func ceilHours(minutes int) int {
	return int(math.Ceil(float64(minutes) / 60))
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
