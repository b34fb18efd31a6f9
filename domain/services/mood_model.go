package services

import (
	"math"
	"unicode/utf16"

	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
)

// DayAdvance is the mood state a day tick moves a companion to.
type DayAdvance struct {
	EmotionalArc      valueobjects.EmotionalArc
	RoutineStability  float64
	RequestFatigue    int
	RitualTargetCount int
}

// MoodModel scores how a companion's mood moves between days and how hard it
// pushes for attention. Implementations must be deterministic for a given seed.
type MoodModel interface {
	AdvanceDay(snapshot entities.LifeSnapshot) DayAdvance
	DesiredRequestCount(snapshot entities.LifeSnapshot, slotsAvailable int) int
	PickUrgency(snapshot entities.LifeSnapshot, seed string) valueobjects.Urgency
}

// DefaultMoodModel drifts stability with care and consistency, and lets fatigue
// recover only while care stays consistent.
type DefaultMoodModel struct{}

// NewDefaultMoodModel returns the default mood model
func NewDefaultMoodModel() *DefaultMoodModel {
	return &DefaultMoodModel{}
}

// AdvanceDay computes stability from the prior fatigue, then the next fatigue,
// then the arc from the new values.
func (m *DefaultMoodModel) AdvanceDay(s entities.LifeSnapshot) DayAdvance {
	care := clamp(s.CareScore, 0, 1)
	consistency := clamp(s.CareConsistency, 0, 1)
	fatigue := clamp(float64(s.RequestFatigue), 0, 10)

	stability := clamp(s.RoutineStabilityScore, 0, 100) +
		(care-0.5)*16 +
		(consistency-0.5)*12 -
		fatigue*1.4
	if s.IsDormant {
		stability -= 8
	}
	stability = clamp(round2(stability), 0, 100)

	nextFatigue := m.nextFatigue(care, consistency, fatigue, s.IsDormant)

	return DayAdvance{
		EmotionalArc:      emotionalArc(care, stability, nextFatigue, s.IsDormant),
		RoutineStability:  stability,
		RequestFatigue:    nextFatigue,
		RitualTargetCount: ritualTargetCount(care, consistency),
	}
}

func (m *DefaultMoodModel) nextFatigue(care, consistency, fatigue float64, dormant bool) int {
	var recovery float64
	switch {
	case consistency >= 0.75:
		recovery = 1.35
	case consistency >= 0.55:
		recovery = 0.95
	default:
		recovery = 0.55
	}

	var shift float64
	switch {
	case care < 0.35:
		shift += 1.1
	case care < 0.5:
		shift += 0.5
	}
	if fatigue >= 6 {
		shift += 0.45
	}
	if dormant {
		shift += 0.9
	}
	shift -= recovery

	return int(math.Round(clamp(round2(fatigue+shift), 0, 10)))
}

func emotionalArc(care, stability float64, fatigue int, dormant bool) valueobjects.EmotionalArc {
	switch {
	case dormant:
		return valueobjects.ArcDormantRecovery
	case fatigue >= 5 || stability < 30:
		return valueobjects.ArcRepairSequence
	case care < 0.4 || stability < 45:
		return valueobjects.ArcFragileEcho
	case care < 0.55 || stability < 58:
		return valueobjects.ArcRoutineDrift
	case care >= 0.75 && stability >= 75:
		return valueobjects.ArcResonantGrowth
	case care >= 0.58 && stability >= 58:
		return valueobjects.ArcSteadyBloom
	default:
		return valueobjects.ArcForming
	}
}

func ritualTargetCount(care, consistency float64) int {
	pressure := (1 - care) + (1-consistency)*0.55
	switch {
	case pressure >= 1.1:
		return 5
	case pressure >= 0.72:
		return 4
	default:
		return 3
	}
}

// DesiredRequestCount is how many requests the companion wants to raise, capped by slots.
func (m *DefaultMoodModel) DesiredRequestCount(s entities.LifeSnapshot, slotsAvailable int) int {
	if slotsAvailable <= 0 {
		return 0
	}
	pressure := (1 - clamp(s.CareScore, 0, 1)) +
		clamp(float64(s.RequestFatigue), 0, 10)*0.07 +
		(1-clamp(s.CareConsistency, 0, 1))*0.4

	desired := 1
	switch {
	case pressure >= 1.15:
		desired = 3
	case pressure >= 0.7:
		desired = 2
	}
	return min(desired, slotsAvailable)
}

// PickUrgency chooses a tier from drift pressure, with a seeded roll so that
// well-cared-for companions still raise the occasional urgent request.
func (m *DefaultMoodModel) PickUrgency(s entities.LifeSnapshot, seed string) valueobjects.Urgency {
	drift := (1 - s.CareScore) + float64(s.RequestFatigue)*0.065 + (1-s.CareConsistency)*0.35
	roll := SeededFloat(seed)

	switch {
	case drift >= 1.1 || roll > 0.89:
		return valueobjects.UrgencyCritical
	case drift >= 0.68 || roll > 0.48:
		return valueobjects.UrgencyImportant
	default:
		return valueobjects.UrgencyGentle
	}
}

// HashString is a stable 31-bit string hash. Seeds hash identically across
// processes so generated content is reproducible.
func HashString(seed string) int {
	var hash int32
	for _, unit := range utf16.Encode([]rune(seed)) {
		hash = (hash << 5) - hash + int32(unit)
	}
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return int(h)
}

// SeededFloat maps seed to [0, 1) in steps of 0.001.
func SeededFloat(seed string) float64 {
	return float64(HashString(seed)%1000) / 1000
}
