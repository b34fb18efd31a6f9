package handlers

import (
	"context"
	"fmt"
	"math"
	"time"

	"companionlife/application/commands"
	"companionlife/application/commands/bus"
	"companionlife/application/ports"
	"companionlife/domain/config"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
	"companionlife/domain/services"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"
	"companionlife/pkg/observability"

	"go.uber.org/zap"
)

// DayCycleOrchestrator runs the two externally triggered cycles: the day tick
// and request generation. Neither is idempotent; callers serialize them per
// companion through the locker.
type DayCycleOrchestrator struct {
	store     ports.CompanionStore
	locker    ports.CompanionLocker
	publisher ports.EventPublisher
	content   ports.RequestContentSource
	catalog   ports.RitualCatalog
	mood      services.MoodModel
	cadence   *services.CadenceCalculator
	clock     clock.Clock
	config    *config.DomainConfig
	tracer    *observability.Tracer
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewDayCycleOrchestrator creates a new orchestrator instance
func NewDayCycleOrchestrator(
	store ports.CompanionStore,
	locker ports.CompanionLocker,
	publisher ports.EventPublisher,
	content ports.RequestContentSource,
	catalog ports.RitualCatalog,
	mood services.MoodModel,
	clk clock.Clock,
	cfg *config.DomainConfig,
	tracer *observability.Tracer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *DayCycleOrchestrator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if mood == nil {
		mood = services.NewDefaultMoodModel()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DayCycleOrchestrator{
		store:     store,
		locker:    locker,
		publisher: publisher,
		content:   content,
		catalog:   catalog,
		mood:      mood,
		cadence:   services.NewCadenceCalculator(cfg),
		clock:     clk,
		config:    cfg,
		tracer:    tracer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Handle implements bus.CommandHandler
func (o *DayCycleOrchestrator) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	switch c := cmd.(type) {
	case commands.ProcessDayTickCommand:
		return o.ProcessDayTick(ctx, c)
	case commands.GenerateRequestsCommand:
		return o.GenerateRequests(ctx, c)
	default:
		return nil, fmt.Errorf("unsupported command type %T", cmd)
	}
}

// ProcessDayTick tops up the day's rituals and advances the life snapshot.
func (o *DayCycleOrchestrator) ProcessDayTick(ctx context.Context, cmd commands.ProcessDayTickCommand) (*commands.DayTickResult, error) {
	var result *commands.DayTickResult
	err := o.tracer.TraceFunction(ctx, "ProcessDayTick", func(ctx context.Context) error {
		var err error
		result, err = o.processDayTick(ctx, cmd)
		return err
	})
	return result, err
}

func (o *DayCycleOrchestrator) processDayTick(ctx context.Context, cmd commands.ProcessDayTickCommand) (*commands.DayTickResult, error) {
	start := time.Now()
	companionID := valueobjects.CompanionID(cmd.CompanionID)

	ctx, release, err := lockCompanion(ctx, o.locker, companionID, o.config.PersistenceTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	now := o.clock.Now()
	date := cmd.Date
	if date == "" {
		date = entities.DateKey(now)
	}

	snapshot, err := loadSnapshot(ctx, o.store, companionID, now)
	if err != nil {
		return nil, err
	}
	advance := o.mood.AdvanceDay(snapshot)

	existing, err := o.store.LoadRituals(ctx, companionID, date)
	if err != nil {
		return nil, err
	}

	created, err := o.scheduleRituals(ctx, companionID, date, snapshot, existing, advance.RitualTargetCount, now)
	if err != nil {
		return nil, err
	}
	patch := entities.LifeSnapshotPatch{
		CurrentEmotionalArc:   &advance.EmotionalArc,
		RoutineStabilityScore: &advance.RoutineStability,
		RequestFatigue:        &advance.RequestFatigue,
		LastDayTickDate:       &date,
	}
	updated, err := o.store.SaveDayTick(ctx, companionID, created, patch)
	if err != nil {
		return nil, err
	}

	sources := make([]eventSource, 0, len(created)+1)
	for _, r := range created {
		sources = append(sources, r)
	}
	sources = append(sources, eventBatch{events.NewDayTickProcessed(
		companionID, date, len(created), updated.CurrentEmotionalArc, updated.RoutineStabilityScore, updated.RequestFatigue, now,
	)})
	publishEvents(ctx, o.publisher, o.logger, sources...)

	o.metrics.RecordCount(ctx, observability.MetricRitualsCreated, "ProcessDayTick", float64(len(created)))
	o.metrics.RecordLatency(ctx, "ProcessDayTick", time.Since(start))
	o.logger.Info("Day tick processed",
		zap.String("companion_id", companionID.String()),
		zap.String("ritual_date", date),
		zap.Int("rituals_created", len(created)),
		zap.String("emotional_arc", string(updated.CurrentEmotionalArc)),
	)

	return &commands.DayTickResult{
		RitualDate:            date,
		RitualCount:           len(existing) + len(created),
		RitualsCreated:        len(created),
		CurrentEmotionalArc:   updated.CurrentEmotionalArc,
		RoutineStabilityScore: updated.RoutineStabilityScore,
		RequestFatigue:        updated.RequestFatigue,
	}, nil
}

// scheduleRituals picks definitions not yet scheduled for date, starting at a
// seeded offset in the catalog, until the day holds target rituals.
func (o *DayCycleOrchestrator) scheduleRituals(
	ctx context.Context,
	companionID valueobjects.CompanionID,
	date string,
	snapshot entities.LifeSnapshot,
	existing []*entities.Ritual,
	target int,
	now time.Time,
) ([]*entities.Ritual, error) {
	missing := target - len(existing)
	if missing <= 0 {
		return nil, nil
	}

	defs, err := o.catalog.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, nil
	}

	scheduled := make(map[string]bool, len(existing))
	for _, r := range existing {
		scheduled[r.Definition().Code] = true
	}

	seed := fmt.Sprintf("%s:%s", companionID, date)
	offset := services.HashString(seed) % len(defs)

	var created []*entities.Ritual
	for i := 0; i < len(defs) && len(created) < missing; i++ {
		def := defs[(offset+i)%len(defs)]
		if scheduled[def.Code] {
			continue
		}
		urgency := o.mood.PickUrgency(snapshot, fmt.Sprintf("%s:ritual:%d", seed, len(existing)+len(created)))
		ritual, err := entities.NewRitual(companionID, date, def, urgency, now)
		if err != nil {
			return nil, err
		}
		scheduled[def.Code] = true
		created = append(created, ritual)
	}
	return created, nil
}

// GenerateRequests opens new requests when the cadence guardrail allows it.
// A refused call returns CooldownViolation and writes nothing.
func (o *DayCycleOrchestrator) GenerateRequests(ctx context.Context, cmd commands.GenerateRequestsCommand) (*commands.GenerateRequestsResult, error) {
	var result *commands.GenerateRequestsResult
	err := o.tracer.TraceFunction(ctx, "GenerateRequests", func(ctx context.Context) error {
		var err error
		result, err = o.generateRequests(ctx, cmd)
		return err
	})
	if pkgerrors.IsCooldownViolation(err) {
		o.metrics.RecordCount(ctx, observability.MetricGenerationRefused, pkgerrors.GetAppError(err).Code, 1)
	}
	return result, err
}

func (o *DayCycleOrchestrator) generateRequests(ctx context.Context, cmd commands.GenerateRequestsCommand) (*commands.GenerateRequestsResult, error) {
	start := time.Now()
	companionID := valueobjects.CompanionID(cmd.CompanionID)

	ctx, release, err := lockCompanion(ctx, o.locker, companionID, o.config.PersistenceTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	open, err := o.store.LoadOpenRequests(ctx, companionID)
	if err != nil {
		return nil, err
	}
	now := o.clock.Now()
	snapshot, err := loadSnapshot(ctx, o.store, companionID, now)
	if err != nil {
		return nil, err
	}

	budget := o.config.MaxOpenRequests
	if cmd.MaxRequests > 0 && cmd.MaxRequests < budget {
		budget = cmd.MaxRequests
	}
	cadence := o.cadence.CalculateWithBudget(open, now, budget)

	if cadence.CooldownActive {
		return nil, pkgerrors.NewCooldownViolationError(pkgerrors.ReasonMaxOpenRequests, 0).
			WithDetail("open_count", cadence.OpenRequests).
			WithDetail("max_requests", budget)
	}
	if remaining := o.generationCooldownRemaining(snapshot, now); remaining > 0 {
		return nil, pkgerrors.NewCooldownViolationError(pkgerrors.ReasonGenerationCooldown, int(math.Ceil(remaining.Seconds()))).
			WithDetail("open_count", cadence.OpenRequests).
			WithDetail("max_requests", budget)
	}

	count := min(o.mood.DesiredRequestCount(snapshot, cadence.SlotsAvailable), cadence.RecommendedNewRequests)
	baseSeed := fmt.Sprintf("%s:%s", companionID, now.Format(time.RFC3339Nano))

	requests := make([]*entities.Request, 0, count)
	for i := 0; i < count; i++ {
		urgency := o.mood.PickUrgency(snapshot, fmt.Sprintf("%s:urgency:%d", baseSeed, i))
		draft, err := o.content.Draft(ctx, urgency, baseSeed, i)
		if err != nil {
			return nil, err
		}
		due := now.Add(o.config.DueWindowFor(urgency))
		draft.Urgency = urgency
		draft.DueAt = &due

		request, err := entities.NewRequest(companionID, draft, now)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}

	if _, err := o.store.SaveGeneratedRequests(ctx, companionID, requests, entities.LifeSnapshotPatch{LastRequestsGeneratedAt: &now}); err != nil {
		return nil, err
	}

	sources := make([]eventSource, 0, len(requests)+1)
	snapshots := make([]entities.RequestSnapshot, 0, len(requests))
	for _, r := range requests {
		sources = append(sources, r)
		snapshots = append(snapshots, r.Snapshot())
	}
	openCount := cadence.OpenRequests + len(requests)
	sources = append(sources, eventBatch{events.NewRequestsGenerated(companionID, len(requests), openCount, now)})
	publishEvents(ctx, o.publisher, o.logger, sources...)

	o.metrics.RecordCount(ctx, observability.MetricRequestsGenerated, "GenerateRequests", float64(len(requests)))
	o.metrics.RecordValue(ctx, observability.MetricEscalationPressure, "GenerateRequests", cadence.EscalationPressure)
	o.metrics.RecordLatency(ctx, "GenerateRequests", time.Since(start))
	o.logger.Info("Requests generated",
		zap.String("companion_id", companionID.String()),
		zap.Int("generated", len(requests)),
		zap.Int("open_count", openCount),
		zap.Int("max_requests", budget),
	)

	return &commands.GenerateRequestsResult{
		Generated:      len(requests),
		OpenCount:      openCount,
		MaxRequests:    budget,
		CooldownActive: budget <= 0 || openCount >= budget,
		Requests:       snapshots,
	}, nil
}

func (o *DayCycleOrchestrator) generationCooldownRemaining(snapshot entities.LifeSnapshot, now time.Time) time.Duration {
	if o.config.GenerationInterval <= 0 || snapshot.LastRequestsGeneratedAt == nil {
		return 0
	}
	elapsed := now.Sub(*snapshot.LastRequestsGeneratedAt)
	if elapsed >= o.config.GenerationInterval {
		return 0
	}
	return o.config.GenerationInterval - elapsed
}
