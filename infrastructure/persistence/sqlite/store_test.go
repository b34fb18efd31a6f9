package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/infrastructure/persistence/schema"
	"companionlife/infrastructure/persistence/storetest"
	"companionlife/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clk clock.Clock) ports.CompanionStore {
		store, err := Open(":memory:", clk)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "companion.db")
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store, err := Open(path, clock.NewFake(now))
	require.NoError(t, err)

	snapshot := entities.NewLifeSnapshot("companion-1", now)
	snapshot.BondLevel = 7
	snapshot.IsDormant = true
	require.NoError(t, store.SeedLifeSnapshot(context.Background(), snapshot))
	require.NoError(t, store.Close())

	// Act
	reopened, err := Open(path, clock.NewFake(now))
	require.NoError(t, err)
	defer reopened.Close()
	loaded, err := reopened.LoadLifeSnapshot(context.Background(), "companion-1")

	// Assert
	require.NoError(t, err)
	assert.InDelta(t, 7, loaded.BondLevel, 1e-9)
	assert.True(t, loaded.IsDormant)
}

func TestStore_CancelledContext(t *testing.T) {
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.LoadOpenRequests(ctx, "companion-1")
	assert.Error(t, err)
}

func TestOpen_AppliesMigrations(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "companion.db")

	// Act
	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	// Assert
	version, err := schema.CurrentVersion(context.Background(), reopened.db)
	require.NoError(t, err)
	assert.Equal(t, migrations().LatestVersion(), version)
}
