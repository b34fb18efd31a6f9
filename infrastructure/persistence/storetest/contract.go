// Package storetest holds the behavioral contract every CompanionStore
// adapter must satisfy.
package storetest

import (
	"context"
	"testing"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store driven by clk.
type Factory func(t *testing.T, clk clock.Clock) ports.CompanionStore

const companion = valueobjects.CompanionID("companion-1")

var start = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// Run exercises the store contract against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("snapshot missing then upserted", func(t *testing.T) { testSnapshotUpsert(t, factory) })
	t.Run("open requests in creation order", func(t *testing.T) { testOpenRequests(t, factory) })
	t.Run("conditional status write", func(t *testing.T) { testConditionalStatus(t, factory) })
	t.Run("requests are scoped to their companion", func(t *testing.T) { testCompanionScope(t, factory) })
	t.Run("request round trip", func(t *testing.T) { testRequestRoundTrip(t, factory) })
	t.Run("history newest first with limit", func(t *testing.T) { testHistory(t, factory) })
	t.Run("rituals by date and completion", func(t *testing.T) { testRituals(t, factory) })
	t.Run("day tick is all or nothing", func(t *testing.T) { testDayTick(t, factory) })
	t.Run("generation batch is all or nothing", func(t *testing.T) { testGeneratedRequests(t, factory) })
}

func newRequest(t *testing.T, title string, requestedAt time.Time, dueIn time.Duration) *entities.Request {
	t.Helper()
	due := requestedAt.Add(dueIn)
	hint := "hint"
	r, err := entities.NewRequest(companion, entities.RequestDraft{
		RequestType:     "check_in",
		Title:           title,
		Prompt:          "prompt for " + title,
		ConsequenceHint: hint,
		Urgency:         valueobjects.UrgencyImportant,
		DueAt:           &due,
		Context:         valueobjects.NewRequestContext().With("seed", "abc").With("requestIndex", 2),
	}, requestedAt)
	require.NoError(t, err)
	return r
}

func testSnapshotUpsert(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))

	_, err := store.LoadLifeSnapshot(ctx, companion)
	assert.True(t, pkgerrors.IsNotFound(err))

	fatigue := 3
	date := "2026-03-14"
	arc := valueobjects.ArcSteadyBloom
	updated, err := store.UpdateLifeSnapshot(ctx, companion, entities.LifeSnapshotPatch{
		RequestFatigue:          &fatigue,
		LastDayTickDate:         &date,
		CurrentEmotionalArc:     &arc,
		LastRequestsGeneratedAt: &start,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.RequestFatigue)
	assert.InDelta(t, 0.5, updated.CareScore, 1e-9)

	loaded, err := store.LoadLifeSnapshot(ctx, companion)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.ArcSteadyBloom, loaded.CurrentEmotionalArc)
	assert.Equal(t, "2026-03-14", loaded.LastDayTickDate)
	assert.InDelta(t, 50, loaded.RoutineStabilityScore, 1e-9)
	require.NotNil(t, loaded.LastRequestsGeneratedAt)
	assert.True(t, loaded.LastRequestsGeneratedAt.Equal(start))
}

func testOpenRequests(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))
	a := newRequest(t, "A", start, time.Hour)
	b := newRequest(t, "B", start.Add(time.Second), time.Hour)
	c := newRequest(t, "C", start.Add(2*time.Second), time.Hour)
	require.NoError(t, store.CreateRequests(ctx, companion, []*entities.Request{a, b, c}))

	require.NoError(t, b.Complete(start.Add(time.Minute)))
	require.NoError(t, store.SaveRequestStatus(ctx, ports.StatusUpdateFrom(b)))

	open, err := store.LoadOpenRequests(ctx, companion)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, a.ID(), open[0].ID())
	assert.Equal(t, c.ID(), open[1].ID())
}

func testConditionalStatus(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))
	r := newRequest(t, "A", start, time.Hour)
	require.NoError(t, store.CreateRequests(ctx, companion, []*entities.Request{r}))

	stale := entities.ReconstructRequest(r.Snapshot())
	require.NoError(t, r.Decline(start.Add(time.Minute)))
	require.NoError(t, store.SaveRequestStatus(ctx, ports.StatusUpdateFrom(r)))

	require.NoError(t, stale.Complete(start.Add(2*time.Minute)))
	err := store.SaveRequestStatus(ctx, ports.StatusUpdateFrom(stale))
	assert.True(t, pkgerrors.IsAlreadyResolved(err))

	loaded, err := store.LoadRequest(ctx, companion, r.ID())
	require.NoError(t, err)
	assert.Equal(t, valueobjects.RequestDeclined, loaded.Status())

	missing := ports.StatusUpdateFrom(r)
	missing.RequestID = valueobjects.NewRequestID()
	assert.True(t, pkgerrors.IsNotFound(store.SaveRequestStatus(ctx, missing)))
}

func testCompanionScope(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))
	r := newRequest(t, "A", start, time.Hour)
	require.NoError(t, store.CreateRequests(ctx, companion, []*entities.Request{r}))

	_, err := store.LoadRequest(ctx, "companion-2", r.ID())
	assert.True(t, pkgerrors.IsNotFound(err))

	open, err := store.LoadOpenRequests(ctx, "companion-2")
	require.NoError(t, err)
	assert.Empty(t, open)

	err = store.CreateRequests(ctx, "companion-2", []*entities.Request{newRequest(t, "B", start, time.Hour)})
	assert.Error(t, err)
}

func testRequestRoundTrip(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))
	r := newRequest(t, "Round Trip", start, 3*time.Hour)
	require.NoError(t, store.CreateRequests(ctx, companion, []*entities.Request{r}))

	require.NoError(t, r.Snooze(start.Add(time.Minute), 2*time.Hour))
	require.NoError(t, store.SaveRequestStatus(ctx, ports.StatusUpdateFrom(r)))

	loaded, err := store.LoadRequest(ctx, companion, r.ID())
	require.NoError(t, err)
	assert.Equal(t, "Round Trip", loaded.Title())
	assert.Equal(t, valueobjects.RequestPending, loaded.Status())
	require.NotNil(t, loaded.DueAt())
	assert.True(t, loaded.DueAt().Equal(start.Add(time.Minute+2*time.Hour)))
	require.NotNil(t, loaded.ResponseStyle())
	assert.Equal(t, entities.ResponseSnoozed, *loaded.ResponseStyle())
	require.NotNil(t, loaded.ConsequenceHint())
	assert.Equal(t, "hint", *loaded.ConsequenceHint())

	seed, ok := loaded.Context().String("seed")
	assert.True(t, ok)
	assert.Equal(t, "abc", seed)
	index, ok := loaded.Context().Int("requestIndex")
	assert.True(t, ok)
	assert.Equal(t, 2, index)
}

func testHistory(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))
	old := newRequest(t, "Old", start.Add(-100*24*time.Hour), time.Hour)
	first := newRequest(t, "First", start.Add(-2*time.Hour), time.Hour)
	second := newRequest(t, "Second", start.Add(-time.Hour), time.Hour)
	third := newRequest(t, "Third", start.Add(-30*time.Minute), time.Hour)
	require.NoError(t, store.CreateRequests(ctx, companion, []*entities.Request{old, first, second, third}))

	history, err := store.LoadResolvedRequestsHistory(ctx, companion, start.Add(-90*24*time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Third", history[0].Title())
	assert.Equal(t, "Second", history[1].Title())

	all, err := store.LoadResolvedRequestsHistory(ctx, companion, start.Add(-90*24*time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testRituals(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))
	def := entities.RitualDefinition{ID: "tea", Code: "tea_break", Title: "Tea", BaseBondDelta: 2, BaseCareDelta: 0.05}
	today, err := entities.NewRitual(companion, "2026-03-14", def, valueobjects.UrgencyGentle, start)
	require.NoError(t, err)
	tomorrow, err := entities.NewRitual(companion, "2026-03-15", def, valueobjects.UrgencyCritical, start)
	require.NoError(t, err)
	require.NoError(t, store.CreateRituals(ctx, companion, []*entities.Ritual{today, tomorrow}))

	listed, err := store.LoadRituals(ctx, companion, "2026-03-14")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "tea_break", listed[0].Definition().Code)
	assert.InDelta(t, 2, listed[0].BondDelta(), 1e-9)

	bond := 2.0
	require.NoError(t, today.Complete(start))
	require.NoError(t, store.SaveRitualCompletion(ctx, today, entities.LifeSnapshotPatch{BondLevel: &bond}))

	again := entities.ReconstructRitual(listed[0].Snapshot())
	require.NoError(t, again.Complete(start))
	err = store.SaveRitualCompletion(ctx, again, entities.LifeSnapshotPatch{BondLevel: &bond})
	assert.True(t, pkgerrors.IsAlreadyResolved(err))

	loaded, err := store.LoadRitual(ctx, companion, today.ID())
	require.NoError(t, err)
	assert.Equal(t, valueobjects.RitualCompleted, loaded.Status())
	require.NotNil(t, loaded.CompletedAt())

	snapshot, err := store.LoadLifeSnapshot(ctx, companion)
	require.NoError(t, err)
	assert.InDelta(t, 2, snapshot.BondLevel, 1e-9)

	_, err = store.LoadRitual(ctx, companion, valueobjects.NewRitualID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func testDayTick(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))
	tea, err := entities.NewRitual(companion, "2026-03-14", entities.RitualDefinition{ID: "tea", Code: "tea_break"}, valueobjects.UrgencyGentle, start)
	require.NoError(t, err)

	date := "2026-03-14"
	fatigue := 1
	updated, err := store.SaveDayTick(ctx, companion, []*entities.Ritual{tea}, entities.LifeSnapshotPatch{
		LastDayTickDate: &date,
		RequestFatigue:  &fatigue,
	})
	require.NoError(t, err)
	assert.Equal(t, date, updated.LastDayTickDate)
	assert.Equal(t, 1, updated.RequestFatigue)

	walk, err := entities.NewRitual(companion, "2026-03-15", entities.RitualDefinition{ID: "walk", Code: "walk"}, valueobjects.UrgencyGentle, start)
	require.NoError(t, err)
	next := "2026-03-15"
	_, err = store.SaveDayTick(ctx, companion, []*entities.Ritual{walk, tea}, entities.LifeSnapshotPatch{LastDayTickDate: &next})
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict), "unexpected error %v", err)

	listed, err := store.LoadRituals(ctx, companion, "2026-03-15")
	require.NoError(t, err)
	assert.Empty(t, listed, "rejected tick must not leave rituals behind")

	snapshot, err := store.LoadLifeSnapshot(ctx, companion)
	require.NoError(t, err)
	assert.Equal(t, date, snapshot.LastDayTickDate)
}

func testGeneratedRequests(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, clock.NewFake(start))
	a := newRequest(t, "A", start, time.Hour)

	stamp := start
	updated, err := store.SaveGeneratedRequests(ctx, companion, []*entities.Request{a}, entities.LifeSnapshotPatch{LastRequestsGeneratedAt: &stamp})
	require.NoError(t, err)
	require.NotNil(t, updated.LastRequestsGeneratedAt)
	assert.True(t, stamp.Equal(*updated.LastRequestsGeneratedAt))

	b := newRequest(t, "B", start.Add(time.Minute), time.Hour)
	later := start.Add(time.Hour)
	_, err = store.SaveGeneratedRequests(ctx, companion, []*entities.Request{b, a}, entities.LifeSnapshotPatch{LastRequestsGeneratedAt: &later})
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict), "unexpected error %v", err)

	open, err := store.LoadOpenRequests(ctx, companion)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, a.ID(), open[0].ID())

	snapshot, err := store.LoadLifeSnapshot(ctx, companion)
	require.NoError(t, err)
	require.NotNil(t, snapshot.LastRequestsGeneratedAt)
	assert.True(t, stamp.Equal(*snapshot.LastRequestsGeneratedAt))
}
