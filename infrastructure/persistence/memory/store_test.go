package memory

import (
	"context"
	"testing"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/core/valueobjects"
	"companionlife/infrastructure/persistence/storetest"
	"companionlife/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clk clock.Clock) ports.CompanionStore {
		return NewStore(clk)
	})
}

func TestLocker_SerializesPerCompanion(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	release, err := locker.Lock(ctx, "companion-1")
	require.NoError(t, err)

	other, err := locker.Lock(ctx, "companion-2")
	require.NoError(t, err, "different companions do not contend")
	other()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "companion-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()

	again, err := locker.Lock(ctx, "companion-1")
	require.NoError(t, err)
	again()
	assert.Empty(t, locker.slots)
}

func TestLocker_HandsOffToWaiter(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()
	companion := valueobjects.CompanionID("companion-1")

	release, err := locker.Lock(ctx, companion)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		next, err := locker.Lock(ctx, companion)
		if err == nil {
			next()
		}
		close(acquired)
	}()

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}
