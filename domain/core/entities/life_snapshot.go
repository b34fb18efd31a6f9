package entities

import (
	"time"

	"companionlife/domain/core/valueobjects"
)

// DateLayout is the UTC calendar-day key used for rituals and day ticks.
const DateLayout = "2006-01-02"

// DateKey formats t as a UTC calendar day.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// LifeSnapshot is the per-companion mood state advanced by the day cycle.
type LifeSnapshot struct {
	CompanionID             valueobjects.CompanionID  `json:"companionId"`
	CurrentEmotionalArc     valueobjects.EmotionalArc `json:"currentEmotionalArc"`
	RoutineStabilityScore   float64                   `json:"routineStabilityScore"`
	RequestFatigue          int                       `json:"requestFatigue"`
	CareScore               float64                   `json:"careScore"`
	CareConsistency         float64                   `json:"careConsistency"`
	BondLevel               float64                   `json:"bondLevel"`
	IsDormant               bool                      `json:"isDormant"`
	LastDayTickDate         string                    `json:"lastDayTickDate,omitempty"`
	LastRequestsGeneratedAt *time.Time                `json:"lastRequestsGeneratedAt,omitempty"`
	UpdatedAt               time.Time                 `json:"updatedAt"`
}

// NewLifeSnapshot returns the neutral starting state for a companion.
func NewLifeSnapshot(companionID valueobjects.CompanionID, now time.Time) LifeSnapshot {
	return LifeSnapshot{
		CompanionID:           companionID,
		CurrentEmotionalArc:   valueobjects.ArcForming,
		RoutineStabilityScore: 50,
		RequestFatigue:        0,
		CareScore:             0.5,
		CareConsistency:       0.5,
		UpdatedAt:             now.UTC(),
	}
}

// LifeSnapshotPatch carries the fields an update changes. Nil fields are left alone.
type LifeSnapshotPatch struct {
	CurrentEmotionalArc     *valueobjects.EmotionalArc `json:"currentEmotionalArc,omitempty"`
	RoutineStabilityScore   *float64                   `json:"routineStabilityScore,omitempty"`
	RequestFatigue          *int                       `json:"requestFatigue,omitempty"`
	CareScore               *float64                   `json:"careScore,omitempty"`
	CareConsistency         *float64                   `json:"careConsistency,omitempty"`
	BondLevel               *float64                   `json:"bondLevel,omitempty"`
	LastDayTickDate         *string                    `json:"lastDayTickDate,omitempty"`
	LastRequestsGeneratedAt *time.Time                 `json:"lastRequestsGeneratedAt,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p LifeSnapshotPatch) IsEmpty() bool {
	return p == LifeSnapshotPatch{}
}

// Apply returns s with the patch applied and UpdatedAt set to now.
// Scores are clamped to their documented ranges.
func (s LifeSnapshot) Apply(p LifeSnapshotPatch, now time.Time) LifeSnapshot {
	if p.CurrentEmotionalArc != nil {
		s.CurrentEmotionalArc = *p.CurrentEmotionalArc
	}
	if p.RoutineStabilityScore != nil {
		s.RoutineStabilityScore = clampFloat(*p.RoutineStabilityScore, 0, 100)
	}
	if p.RequestFatigue != nil {
		s.RequestFatigue = max(0, *p.RequestFatigue)
	}
	if p.CareScore != nil {
		s.CareScore = clampFloat(*p.CareScore, 0, 1)
	}
	if p.CareConsistency != nil {
		s.CareConsistency = clampFloat(*p.CareConsistency, 0, 1)
	}
	if p.BondLevel != nil {
		s.BondLevel = *p.BondLevel
	}
	if p.LastDayTickDate != nil {
		s.LastDayTickDate = *p.LastDayTickDate
	}
	if p.LastRequestsGeneratedAt != nil {
		t := p.LastRequestsGeneratedAt.UTC()
		s.LastRequestsGeneratedAt = &t
	}
	s.UpdatedAt = now.UTC()
	return s
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
