package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/infrastructure/persistence/memory"
	"companionlife/infrastructure/persistence/storetest"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"
)

// flakyStore fails LoadOpenRequests with err while err is set.
type flakyStore struct {
	ports.CompanionStore
	err   error
	calls int
}

func (f *flakyStore) LoadOpenRequests(ctx context.Context, companionID valueobjects.CompanionID) ([]*entities.Request, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.CompanionStore.LoadOpenRequests(ctx, companionID)
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clk clock.Clock) ports.CompanionStore {
		return NewStore(memory.NewStore(clk), DefaultBreakerConfig(), nil)
	})
}

func TestStore_OpensAfterConsecutiveFailures(t *testing.T) {
	// Arrange
	backend := &flakyStore{CompanionStore: memory.NewStore(nil), err: pkgerrors.NewDatabaseError("LoadOpenRequests", errors.New("connection reset"))}
	store := NewStore(backend, BreakerConfig{MaxFailures: 3, OpenTimeout: time.Hour}, nil)
	ctx := context.Background()

	// Act
	for i := 0; i < 3; i++ {
		_, err := store.LoadOpenRequests(ctx, "companion-1")
		require.Error(t, err)
	}
	_, err := store.LoadOpenRequests(ctx, "companion-1")

	// Assert
	assert.Equal(t, gobreaker.StateOpen, store.State())
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))
	assert.Equal(t, 3, backend.calls, "open breaker must not reach the backend")
}

func TestStore_CallerErrorsDoNotTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", pkgerrors.NewNotFoundError("request", "r-1")},
		{"already resolved", pkgerrors.NewAlreadyResolvedError("request", "r-1", "completed")},
		{"validation", pkgerrors.NewValidationError("bad id")},
		{"cooldown", pkgerrors.NewCooldownViolationError(pkgerrors.ReasonMaxOpenRequests, 60)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &flakyStore{CompanionStore: memory.NewStore(nil), err: tt.err}
			store := NewStore(backend, BreakerConfig{MaxFailures: 2}, nil)

			for i := 0; i < 5; i++ {
				_, err := store.LoadOpenRequests(context.Background(), "companion-1")
				assert.Equal(t, tt.err, err)
			}

			assert.Equal(t, gobreaker.StateClosed, store.State())
			assert.Equal(t, 5, backend.calls)
		})
	}
}

func TestStore_RecoversAfterOpenTimeout(t *testing.T) {
	backend := &flakyStore{CompanionStore: memory.NewStore(nil), err: errors.New("down")}
	store := NewStore(backend, BreakerConfig{MaxFailures: 1, OpenTimeout: 20 * time.Millisecond}, nil)
	ctx := context.Background()

	_, err := store.LoadOpenRequests(ctx, "companion-1")
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, store.State())

	backend.err = nil
	time.Sleep(40 * time.Millisecond)
	open, err := store.LoadOpenRequests(ctx, "companion-1")

	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, gobreaker.StateClosed, store.State())
}
