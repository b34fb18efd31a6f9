package handlers

import (
	"context"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
	pkgerrors "companionlife/pkg/errors"

	"go.uber.org/zap"
)

// eventSource is satisfied by entities that buffer domain events.
type eventSource interface {
	GetUncommittedEvents() []events.DomainEvent
	MarkEventsAsCommitted()
}

// loadSnapshot returns the stored snapshot, or the neutral one for a companion
// that has never been ticked.
func loadSnapshot(ctx context.Context, store ports.CompanionStore, companionID valueobjects.CompanionID, now time.Time) (entities.LifeSnapshot, error) {
	snapshot, err := store.LoadLifeSnapshot(ctx, companionID)
	if pkgerrors.IsNotFound(err) {
		return entities.NewLifeSnapshot(companionID, now), nil
	}
	return snapshot, err
}

// lockCompanion serializes writers and bounds the whole operation by timeout.
// The returned release cancels the context and unlocks.
func lockCompanion(ctx context.Context, locker ports.CompanionLocker, companionID valueobjects.CompanionID, timeout time.Duration) (context.Context, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	unlock, err := locker.Lock(ctx, companionID)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, nil, pkgerrors.NewTimeoutError("acquire companion lock").WithCause(err)
		}
		return nil, nil, err
	}
	return ctx, func() {
		unlock()
		cancel()
	}, nil
}

// publishEvents publishes what the sources buffered after a successful write.
// Publishing failures are logged and never undo the write.
func publishEvents(ctx context.Context, publisher ports.EventPublisher, logger *zap.Logger, sources ...eventSource) {
	var pending []events.DomainEvent
	for _, s := range sources {
		pending = append(pending, s.GetUncommittedEvents()...)
	}
	if len(pending) == 0 || publisher == nil {
		return
	}

	if err := publisher.PublishBatch(ctx, pending); err != nil {
		logger.Error("Failed to publish domain events",
			zap.Int("eventCount", len(pending)),
			zap.Error(err),
		)
		return
	}
	for _, s := range sources {
		s.MarkEventsAsCommitted()
	}
}

// eventBatch adapts plain events to eventSource.
type eventBatch []events.DomainEvent

func (b eventBatch) GetUncommittedEvents() []events.DomainEvent { return b }
func (b eventBatch) MarkEventsAsCommitted() {}
