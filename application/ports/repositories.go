package ports

import (
	"context"
	"time"

	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
)

// CompanionStore is the persistence collaborator for one companion's requests,
// rituals and life snapshot. Implementations must honor ctx cancellation and
// report failures as *errors.AppError values.
type CompanionStore interface {
	// LoadLifeSnapshot returns NotFound when the companion has no snapshot yet.
	LoadLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID) (entities.LifeSnapshot, error)

	// LoadOpenRequests returns pending, accepted and snoozed requests in creation order.
	LoadOpenRequests(ctx context.Context, companionID valueobjects.CompanionID) ([]*entities.Request, error)

	// LoadRequest returns NotFound for unknown ids or ids owned by another companion.
	LoadRequest(ctx context.Context, companionID valueobjects.CompanionID, requestID valueobjects.RequestID) (*entities.Request, error)

	// LoadRituals returns the rituals scheduled for date (YYYY-MM-DD).
	LoadRituals(ctx context.Context, companionID valueobjects.CompanionID, date string) ([]*entities.Ritual, error)

	LoadRitual(ctx context.Context, companionID valueobjects.CompanionID, ritualID valueobjects.RitualID) (*entities.Ritual, error)

	// SaveRequestStatus applies a lifecycle change. The write is conditional on the
	// stored request still being open: a terminal row yields AlreadyResolved and is
	// left untouched.
	SaveRequestStatus(ctx context.Context, update RequestStatusUpdate) error

	// CreateRequests persists all requests or none of them.
	CreateRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request) error

	// CreateRituals persists all rituals or none of them.
	CreateRituals(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual) error

	// UpdateLifeSnapshot applies patch, creating the neutral snapshot first if none exists.
	UpdateLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error)

	// SaveDayTick creates the day's rituals and applies the snapshot patch in one
	// write. On failure neither the rituals nor the patch are persisted.
	SaveDayTick(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error)

	// SaveGeneratedRequests creates a generation batch and applies the snapshot
	// patch in one write. On failure neither is persisted.
	SaveGeneratedRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error)

	// LoadResolvedRequestsHistory returns requests requested at or after since, newest
	// first, capped at limit. Open requests are included so callers see the full window.
	LoadResolvedRequestsHistory(ctx context.Context, companionID valueobjects.CompanionID, since time.Time, limit int) ([]*entities.Request, error)

	// SaveRitualCompletion marks the ritual completed and applies the snapshot patch
	// in one write. A ritual that is already completed yields AlreadyResolved.
	SaveRitualCompletion(ctx context.Context, ritual *entities.Ritual, patch entities.LifeSnapshotPatch) error
}

// RequestStatusUpdate is the lifecycle write for a single request.
type RequestStatusUpdate struct {
	CompanionID   valueobjects.CompanionID
	RequestID     valueobjects.RequestID
	Status        valueobjects.RequestStatus
	ResolvedAt    *time.Time
	DueAt         *time.Time
	ResponseStyle *string
}

// StatusUpdateFrom builds the write for the request's current in-memory state.
func StatusUpdateFrom(r *entities.Request) RequestStatusUpdate {
	return RequestStatusUpdate{
		CompanionID:   r.CompanionID(),
		RequestID:     r.ID(),
		Status:        r.Status(),
		ResolvedAt:    r.ResolvedAt(),
		DueAt:         r.DueAt(),
		ResponseStyle: r.ResponseStyle(),
	}
}

// CompanionLocker serializes writers for one companion.
type CompanionLocker interface {
	// Lock blocks until the companion is held or ctx is done. The returned
	// function releases it.
	Lock(ctx context.Context, companionID valueobjects.CompanionID) (func(), error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// RequestContentSource supplies request copy. Content is opaque to the engine.
type RequestContentSource interface {
	// Draft returns content for the index-th request of a generation batch.
	// The same seed and index must produce the same content.
	Draft(ctx context.Context, urgency valueobjects.Urgency, baseSeed string, index int) (entities.RequestDraft, error)
}

// RitualCatalog lists the ritual definitions a day tick can schedule.
type RitualCatalog interface {
	Definitions(ctx context.Context) ([]entities.RitualDefinition, error)
}
