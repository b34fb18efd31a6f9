package handlers

import (
	"context"
	"testing"
	"time"

	"companionlife/application/commands"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
	pkgerrors "companionlife/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProcessDayTick_NewCompanion(t *testing.T) {
	// Arrange
	f := newFixture(t)
	orchestrator := f.orchestrator()

	// Act
	result, err := orchestrator.ProcessDayTick(context.Background(), commands.ProcessDayTickCommand{CompanionID: companion.String()})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", result.RitualDate)
	assert.Equal(t, 4, result.RitualsCreated)
	assert.Equal(t, 4, result.RitualCount)
	assert.Equal(t, valueobjects.ArcRoutineDrift, result.CurrentEmotionalArc)
	assert.InDelta(t, 50, result.RoutineStabilityScore, 1e-9)
	assert.Equal(t, 0, result.RequestFatigue)

	rituals, err := f.store.LoadRituals(context.Background(), companion, "2026-03-14")
	require.NoError(t, err)
	codes := make(map[string]bool)
	for _, r := range rituals {
		codes[r.Definition().Code] = true
	}
	assert.Len(t, codes, 4, "each definition is scheduled at most once per day")

	snapshot, err := f.store.LoadLifeSnapshot(context.Background(), companion)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", snapshot.LastDayTickDate)

	types := f.publisher.publishedTypes()
	assert.Contains(t, types, events.TypeRitualCreated)
	assert.Contains(t, types, events.TypeDayTickProcessed)
}

func TestProcessDayTick_TopsUpExistingDay(t *testing.T) {
	f := newFixture(t)
	orchestrator := f.orchestrator()
	cmd := commands.ProcessDayTickCommand{CompanionID: companion.String(), Date: "2026-03-20"}

	_, err := orchestrator.ProcessDayTick(context.Background(), cmd)
	require.NoError(t, err)
	again, err := orchestrator.ProcessDayTick(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-20", again.RitualDate)
	assert.Equal(t, 0, again.RitualsCreated)
	assert.Equal(t, 4, again.RitualCount)
}

func TestProcessDayTick_StrugglingCompanion(t *testing.T) {
	// Arrange
	f := newFixture(t)
	snapshot := entities.NewLifeSnapshot(companion, testNow)
	snapshot.CareScore = 0.2
	snapshot.CareConsistency = 0.3
	snapshot.RequestFatigue = 6
	snapshot.RoutineStabilityScore = 40
	f.store.SeedLifeSnapshot(snapshot)

	// Act
	result, err := f.orchestrator().ProcessDayTick(context.Background(), commands.ProcessDayTickCommand{CompanionID: companion.String()})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, result.RitualsCreated)
	assert.Equal(t, valueobjects.ArcRepairSequence, result.CurrentEmotionalArc)
	assert.Equal(t, 7, result.RequestFatigue)
}

func TestGenerateRequests_FillsBudgetThenCoolsDown(t *testing.T) {
	// Arrange
	f := newFixture(t)
	orchestrator := f.orchestrator()
	cmd := commands.GenerateRequestsCommand{CompanionID: companion.String()}

	// Act
	first, err := orchestrator.GenerateRequests(context.Background(), cmd)
	require.NoError(t, err)
	second, err := orchestrator.GenerateRequests(context.Background(), cmd)
	require.NoError(t, err)
	_, refused := orchestrator.GenerateRequests(context.Background(), cmd)

	// Assert
	assert.Equal(t, 2, first.Generated)
	assert.Equal(t, 2, first.OpenCount)
	assert.Equal(t, 3, first.MaxRequests)
	assert.False(t, first.CooldownActive)

	assert.Equal(t, 1, second.Generated)
	assert.Equal(t, 3, second.OpenCount)
	assert.True(t, second.CooldownActive)

	require.True(t, pkgerrors.IsCooldownViolation(refused))
	assert.Equal(t, pkgerrors.ReasonMaxOpenRequests, pkgerrors.GetAppError(refused).Code)

	open, err := f.store.LoadOpenRequests(context.Background(), companion)
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestGenerateRequests_DueWindowFollowsUrgency(t *testing.T) {
	f := newFixture(t)

	result, err := f.orchestrator().GenerateRequests(context.Background(), commands.GenerateRequestsCommand{CompanionID: companion.String()})

	require.NoError(t, err)
	require.NotEmpty(t, result.Requests)
	for _, r := range result.Requests {
		require.NotNil(t, r.DueAt)
		assert.True(t, r.DueAt.Equal(testNow.Add(f.config.DueWindowFor(r.Urgency))), "due for %s", r.Urgency)
		assert.Equal(t, valueobjects.RequestPending, r.Status)
		seed, ok := r.RequestContext.String("seed")
		assert.True(t, ok)
		assert.Contains(t, seed, companion.String())
	}

	types := f.publisher.publishedTypes()
	assert.Contains(t, types, events.TypeRequestCreated)
	assert.Contains(t, types, events.TypeRequestsGenerated)
}

func TestGenerateRequests_MaxRequestsLowersBudget(t *testing.T) {
	f := newFixture(t)

	result, err := f.orchestrator().GenerateRequests(context.Background(), commands.GenerateRequestsCommand{
		CompanionID: companion.String(),
		MaxRequests: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Generated)
	assert.Equal(t, 1, result.MaxRequests)
	assert.True(t, result.CooldownActive)
}

func TestGenerateRequests_ZeroBudgetIsPermanentCooldown(t *testing.T) {
	f := newFixture(t)
	f.config.MaxOpenRequests = 0

	_, err := f.orchestrator().GenerateRequests(context.Background(), commands.GenerateRequestsCommand{CompanionID: companion.String()})

	assert.True(t, pkgerrors.IsCooldownViolation(err))
	open, loadErr := f.store.LoadOpenRequests(context.Background(), companion)
	require.NoError(t, loadErr)
	assert.Empty(t, open)
}

func TestGenerateRequests_GenerationInterval(t *testing.T) {
	// Arrange
	f := newFixture(t)
	f.config.GenerationInterval = 30 * time.Minute
	f.config.MaxOpenRequests = 10
	orchestrator := f.orchestrator()
	cmd := commands.GenerateRequestsCommand{CompanionID: companion.String()}
	_, err := orchestrator.GenerateRequests(context.Background(), cmd)
	require.NoError(t, err)

	// Act
	f.clock.Advance(10 * time.Minute)
	_, refused := orchestrator.GenerateRequests(context.Background(), cmd)
	f.clock.Advance(20 * time.Minute)
	allowed, err := orchestrator.GenerateRequests(context.Background(), cmd)

	// Assert
	require.True(t, pkgerrors.IsCooldownViolation(refused))
	appErr := pkgerrors.GetAppError(refused)
	assert.Equal(t, pkgerrors.ReasonGenerationCooldown, appErr.Code)
	assert.Equal(t, 1200, appErr.Details["cooldown_seconds_remaining"])

	require.NoError(t, err)
	assert.Positive(t, allowed.Generated)
}

func TestGenerateRequests_CountsOnlyOpenRequests(t *testing.T) {
	// Arrange
	f := newFixture(t)
	lifecycle := f.lifecycle()
	for i := 0; i < 3; i++ {
		r := f.seedRequest(t, valueobjects.UrgencyGentle, time.Hour)
		if i == 0 {
			_, err := lifecycle.ResolveRequest(context.Background(), commands.ResolveRequestCommand{
				CompanionID: companion.String(),
				RequestID:   r.ID().String(),
				Action:      commands.ActionComplete,
			})
			require.NoError(t, err)
		}
	}

	// Act
	result, err := f.orchestrator().GenerateRequests(context.Background(), commands.GenerateRequestsCommand{CompanionID: companion.String()})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Generated)
	assert.Equal(t, 3, result.OpenCount)
}

func TestProcessDayTick_StoreFailureLeavesNoPartialState(t *testing.T) {
	tests := []struct {
		name    string
		failOn  string
		wantErr bool
	}{
		{name: "combined write fails", failOn: "SaveDayTick", wantErr: true},
		{name: "ritual insert fails", failOn: "CreateRituals"},
		{name: "snapshot update fails", failOn: "UpdateLifeSnapshot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := newFixture(t)
			orchestrator := f.orchestratorWith(&failingStore{CompanionStore: f.store, failOn: tt.failOn})
			ctx := context.Background()

			// Act
			result, err := orchestrator.ProcessDayTick(ctx, commands.ProcessDayTickCommand{CompanionID: companion.String(), Date: "2026-03-14"})

			// Assert
			rituals, loadErr := f.store.LoadRituals(ctx, companion, "2026-03-14")
			require.NoError(t, loadErr)
			snapshot, snapErr := f.store.LoadLifeSnapshot(ctx, companion)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsTimeout(err))
				assert.Nil(t, result)
				assert.Empty(t, rituals, "failed tick must not leave rituals behind")
				assert.True(t, pkgerrors.IsNotFound(snapErr), "failed tick must not create a snapshot")
				f.publisher.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			require.NoError(t, snapErr)
			assert.Len(t, rituals, result.RitualsCreated)
			assert.Equal(t, "2026-03-14", snapshot.LastDayTickDate)
		})
	}
}

func TestGenerateRequests_StoreFailureLeavesNoPartialState(t *testing.T) {
	tests := []struct {
		name    string
		failOn  string
		wantErr bool
	}{
		{name: "combined write fails", failOn: "SaveGeneratedRequests", wantErr: true},
		{name: "request insert fails", failOn: "CreateRequests"},
		{name: "snapshot update fails", failOn: "UpdateLifeSnapshot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := newFixture(t)
			orchestrator := f.orchestratorWith(&failingStore{CompanionStore: f.store, failOn: tt.failOn})
			ctx := context.Background()

			// Act
			result, err := orchestrator.GenerateRequests(ctx, commands.GenerateRequestsCommand{CompanionID: companion.String()})

			// Assert
			open, loadErr := f.store.LoadOpenRequests(ctx, companion)
			require.NoError(t, loadErr)
			snapshot, snapErr := f.store.LoadLifeSnapshot(ctx, companion)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsTimeout(err))
				assert.Nil(t, result)
				assert.Empty(t, open, "failed generation must not leave requests behind")
				assert.True(t, pkgerrors.IsNotFound(snapErr), "failed generation must not stamp the snapshot")
				f.publisher.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			require.NoError(t, snapErr)
			assert.Len(t, open, result.Generated)
			require.NotNil(t, snapshot.LastRequestsGeneratedAt)
			assert.True(t, testNow.Equal(*snapshot.LastRequestsGeneratedAt))
		})
	}
}
