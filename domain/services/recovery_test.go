package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoveryScorer_LaneBoundaries(t *testing.T) {
	scorer := NewRecoveryScorer(nil)

	tests := []struct {
		pressure float64
		want     RecoveryLane
	}{
		{72, RecoveryCritical},
		{71.9, RecoveryActive},
		{44, RecoveryActive},
		{43.9, RecoveryStable},
		{0, RecoveryStable},
		{100, RecoveryCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, scorer.LaneFor(tt.pressure), "pressure=%v", tt.pressure)
	}
}

func TestRecoveryScorer_Score(t *testing.T) {
	scorer := NewRecoveryScorer(nil)

	tests := []struct {
		name      string
		stability float64
		fatigue   int
		overdue   int
		pressure  float64
		lane      RecoveryLane
	}{
		{"neutral", 50, 0, 0, 27.5, RecoveryStable},
		{"tired", 60, 4, 0, 50, RecoveryActive},
		{"overdue", 80, 2, 4, 73, RecoveryCritical},
		{"clamped high", 0, 25, 10, 100, RecoveryCritical},
		{"clamped inputs", 140, -3, -1, 0, RecoveryStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.stability, tt.fatigue, tt.overdue)

			assert.InDelta(t, tt.pressure, got.Pressure, 0.0001)
			assert.Equal(t, tt.lane, got.Lane)
		})
	}
}

func TestRecoveryScorer_NaNStability(t *testing.T) {
	got := NewRecoveryScorer(nil).Score(math.NaN(), 0, 0)

	assert.InDelta(t, 55, got.Pressure, 0.0001)
	assert.Equal(t, RecoveryActive, got.Lane)
}
