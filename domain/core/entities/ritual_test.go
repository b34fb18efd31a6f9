package entities

import (
	"testing"
	"time"

	"companionlife/domain/core/valueobjects"
	pkgerrors "companionlife/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRitual_CompleteOnce(t *testing.T) {
	// Arrange
	ritual, err := NewRitual("companion-1", "2026-03-14", RitualDefinition{
		Code:          "dawn_breath",
		Title:         "Dawn Breath",
		BaseBondDelta: 2,
	}, valueobjects.UrgencyImportant, now)
	require.NoError(t, err)

	// Act
	err = ritual.Complete(now.Add(time.Hour))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, valueobjects.RitualCompleted, ritual.Status())
	require.NotNil(t, ritual.CompletedAt())
	assert.Equal(t, 2.0, ritual.BondDelta())
	assert.Equal(t, DefaultCareDelta, ritual.CareDelta())

	err = ritual.Complete(now.Add(2 * time.Hour))
	assert.True(t, pkgerrors.IsAlreadyResolved(err))
	assert.Equal(t, now.Add(time.Hour), *ritual.CompletedAt())
}

func TestNewRitual_Validation(t *testing.T) {
	_, err := NewRitual("companion-1", "14/03/2026", RitualDefinition{Code: "x"}, valueobjects.UrgencyGentle, now)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = NewRitual("companion-1", "2026-03-14", RitualDefinition{}, valueobjects.UrgencyGentle, now)
	assert.True(t, pkgerrors.IsValidation(err))

	r, err := NewRitual("companion-1", "2026-03-14", RitualDefinition{Code: "x"}, "", now)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.UrgencyGentle, r.Urgency())
}

func TestLifeSnapshot_ApplyClamps(t *testing.T) {
	s := NewLifeSnapshot("companion-1", now)
	stability := 140.0
	fatigue := -3
	care := 1.4
	arc := valueobjects.ArcSteadyBloom

	next := s.Apply(LifeSnapshotPatch{
		RoutineStabilityScore: &stability,
		RequestFatigue:        &fatigue,
		CareScore:             &care,
		CurrentEmotionalArc:   &arc,
	}, now.Add(time.Minute))

	assert.Equal(t, 100.0, next.RoutineStabilityScore)
	assert.Equal(t, 0, next.RequestFatigue)
	assert.Equal(t, 1.0, next.CareScore)
	assert.Equal(t, valueobjects.ArcSteadyBloom, next.CurrentEmotionalArc)
	assert.Equal(t, 0.5, next.CareConsistency)
	assert.Equal(t, now.Add(time.Minute), next.UpdatedAt)
	assert.True(t, LifeSnapshotPatch{}.IsEmpty())
}
