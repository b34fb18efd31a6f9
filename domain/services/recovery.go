package services

import (
	"math"

	"companionlife/domain/config"
)

// RecoveryLane indicates how much attention the relationship needs.
type RecoveryLane string

const (
	RecoveryStable   RecoveryLane = "stable"
	RecoveryActive   RecoveryLane = "active"
	RecoveryCritical RecoveryLane = "critical"
)

// RecoveryPressure is the derived 0-100 recovery score.
type RecoveryPressure struct {
	Pressure float64      `json:"pressure"`
	Lane     RecoveryLane `json:"lane"`
}

// RecoveryScorer combines stability, fatigue and overdue count.
type RecoveryScorer struct {
	stabilityWeight float64
	fatigueWeight   float64
	fatigueCap      float64
	overdueWeight   float64
	criticalLane    float64
	activeLane      float64
}

// NewRecoveryScorer creates a scorer from the domain tunables
func NewRecoveryScorer(cfg *config.DomainConfig) *RecoveryScorer {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &RecoveryScorer{
		stabilityWeight: cfg.RecoveryStabilityWeight,
		fatigueWeight:   cfg.RecoveryFatigueWeight,
		fatigueCap:      float64(cfg.RecoveryFatigueCap),
		overdueWeight:   cfg.RecoveryOverdueWeight,
		criticalLane:    cfg.RecoveryCriticalLane,
		activeLane:      cfg.RecoveryActiveLane,
	}
}

// Score never fails; out-of-range inputs are clamped and NaN stability reads as 0.
func (s *RecoveryScorer) Score(stability float64, fatigue, overdueCount int) RecoveryPressure {
	if math.IsNaN(stability) {
		stability = 0
	}
	pressure := (100-clamp(stability, 0, 100))*s.stabilityWeight +
		clamp(float64(fatigue), 0, s.fatigueCap)*s.fatigueWeight +
		float64(max(0, overdueCount))*s.overdueWeight
	pressure = clamp(pressure, 0, 100)

	return RecoveryPressure{Pressure: pressure, Lane: s.LaneFor(pressure)}
}

// LaneFor maps an unrounded pressure to its lane.
func (s *RecoveryScorer) LaneFor(pressure float64) RecoveryLane {
	switch {
	case pressure >= s.criticalLane:
		return RecoveryCritical
	case pressure >= s.activeLane:
		return RecoveryActive
	default:
		return RecoveryStable
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
