package handlers

import (
	"context"
	"fmt"
	"time"

	"companionlife/application/commands"
	"companionlife/application/commands/bus"
	"companionlife/application/ports"
	"companionlife/domain/config"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"
	"companionlife/pkg/observability"

	"go.uber.org/zap"
)

// RequestLifecycleHandler applies user responses to requests and rituals.
// A failed action never writes anything.
type RequestLifecycleHandler struct {
	store     ports.CompanionStore
	locker    ports.CompanionLocker
	publisher ports.EventPublisher
	clock     clock.Clock
	config    *config.DomainConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewRequestLifecycleHandler creates a new lifecycle handler
func NewRequestLifecycleHandler(
	store ports.CompanionStore,
	locker ports.CompanionLocker,
	publisher ports.EventPublisher,
	clk clock.Clock,
	cfg *config.DomainConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RequestLifecycleHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestLifecycleHandler{
		store:     store,
		locker:    locker,
		publisher: publisher,
		clock:     clk,
		config:    cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Handle implements bus.CommandHandler
func (h *RequestLifecycleHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	switch c := cmd.(type) {
	case commands.ResolveRequestCommand:
		return h.ResolveRequest(ctx, c)
	case commands.CompleteRitualCommand:
		return h.CompleteRitual(ctx, c)
	default:
		return nil, fmt.Errorf("unsupported command type %T", cmd)
	}
}

// ResolveRequest applies accept, complete, decline or snooze.
func (h *RequestLifecycleHandler) ResolveRequest(ctx context.Context, cmd commands.ResolveRequestCommand) (*commands.ResolveRequestResult, error) {
	companionID := valueobjects.CompanionID(cmd.CompanionID)
	requestID, err := valueobjects.ParseRequestID(cmd.RequestID)
	if err != nil {
		return nil, err
	}

	ctx, release, err := lockCompanion(ctx, h.locker, companionID, h.config.PersistenceTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	request, err := h.store.LoadRequest(ctx, companionID, requestID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	wasOpen := request.IsOpen()
	if err := h.apply(request, cmd, now); err != nil {
		if pkgerrors.IsAlreadyResolved(err) {
			h.logger.Info("Ignoring action on resolved request",
				zap.String("companion_id", companionID.String()),
				zap.String("request_id", requestID.String()),
				zap.String("action", string(cmd.Action)),
				zap.String("status", string(request.Status())),
			)
		}
		return nil, err
	}

	if err := h.store.SaveRequestStatus(ctx, ports.StatusUpdateFrom(request)); err != nil {
		return nil, err
	}

	publishEvents(ctx, h.publisher, h.logger, request)

	slotFreed := wasOpen && !request.IsOpen()
	if slotFreed {
		h.metrics.RecordCount(ctx, observability.MetricRequestsResolved, string(cmd.Action), 1)
	}
	h.logger.Info("Request resolved",
		zap.String("companion_id", companionID.String()),
		zap.String("request_id", requestID.String()),
		zap.String("action", string(cmd.Action)),
		zap.String("status", string(request.Status())),
	)

	return &commands.ResolveRequestResult{
		Request:   request.Snapshot(),
		Action:    cmd.Action,
		SlotFreed: slotFreed,
	}, nil
}

func (h *RequestLifecycleHandler) apply(request *entities.Request, cmd commands.ResolveRequestCommand, now time.Time) error {
	switch cmd.Action {
	case commands.ActionAccept:
		return request.Accept(now)
	case commands.ActionComplete:
		return request.Complete(now)
	case commands.ActionDecline:
		return request.Decline(now)
	case commands.ActionSnooze:
		return request.Snooze(now, h.snoozeExtension(cmd.SnoozeMinutes))
	default:
		return pkgerrors.NewValidationError(fmt.Sprintf("unknown action %q", cmd.Action))
	}
}

// snoozeExtension uses the default when minutes is unset. Either way the
// result is capped at the maximum.
func (h *RequestLifecycleHandler) snoozeExtension(minutes int) time.Duration {
	extension := h.config.DefaultSnoozeExtension
	if minutes > 0 {
		extension = time.Duration(minutes) * time.Minute
	}
	return min(extension, h.config.MaxSnoozeExtension)
}

// CompleteRitual completes a ritual and applies its bond and care deltas.
// Completing twice reports AlreadyCompleted instead of failing.
func (h *RequestLifecycleHandler) CompleteRitual(ctx context.Context, cmd commands.CompleteRitualCommand) (*commands.CompleteRitualResult, error) {
	companionID := valueobjects.CompanionID(cmd.CompanionID)
	ritualID, err := valueobjects.ParseRitualID(cmd.RitualID)
	if err != nil {
		return nil, err
	}

	ctx, release, err := lockCompanion(ctx, h.locker, companionID, h.config.PersistenceTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	ritual, err := h.store.LoadRitual(ctx, companionID, ritualID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	if err := ritual.Complete(now); err != nil {
		if pkgerrors.IsAlreadyResolved(err) {
			return &commands.CompleteRitualResult{Success: true, AlreadyCompleted: true, Ritual: ritual.Snapshot()}, nil
		}
		return nil, err
	}

	snapshot, err := loadSnapshot(ctx, h.store, companionID, now)
	if err != nil {
		return nil, err
	}

	bond := max(0, snapshot.BondLevel+ritual.BondDelta())
	care := snapshot.CareScore + ritual.CareDelta()
	consistency := snapshot.CareConsistency + h.config.RitualConsistencyDelta
	patch := entities.LifeSnapshotPatch{
		BondLevel:       &bond,
		CareScore:       &care,
		CareConsistency: &consistency,
	}

	if err := h.store.SaveRitualCompletion(ctx, ritual, patch); err != nil {
		if pkgerrors.IsAlreadyResolved(err) {
			return &commands.CompleteRitualResult{Success: true, AlreadyCompleted: true, Ritual: ritual.Snapshot()}, nil
		}
		return nil, err
	}

	publishEvents(ctx, h.publisher, h.logger, ritual)
	h.metrics.RecordCount(ctx, observability.MetricRitualsCompleted, ritual.Definition().Code, 1)

	updated := snapshot.Apply(patch, now)
	return &commands.CompleteRitualResult{
		Success:  true,
		Ritual:   ritual.Snapshot(),
		Snapshot: &updated,
	}, nil
}
