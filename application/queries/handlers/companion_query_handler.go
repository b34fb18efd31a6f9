package handlers

import (
	"context"
	"fmt"

	"companionlife/application/ports"
	"companionlife/application/queries"
	"companionlife/application/queries/bus"
	"companionlife/domain/config"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/services"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CompanionQueryHandler serves the derived read views. Views are recomputed on
// every read and take no lock.
type CompanionQueryHandler struct {
	store    ports.CompanionStore
	cadence  *services.CadenceCalculator
	recovery *services.RecoveryScorer
	clock    clock.Clock
	config   *config.DomainConfig
	logger   *zap.Logger
}

// NewCompanionQueryHandler creates a new query handler
func NewCompanionQueryHandler(store ports.CompanionStore, clk clock.Clock, cfg *config.DomainConfig, logger *zap.Logger) *CompanionQueryHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanionQueryHandler{
		store:    store,
		cadence:  services.NewCadenceCalculator(cfg),
		recovery: services.NewRecoveryScorer(cfg),
		clock:    clk,
		config:   cfg,
		logger:   logger,
	}
}

// Handle implements bus.QueryHandler
func (h *CompanionQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case queries.GetCadenceQuery:
		return h.GetCadence(ctx, q)
	case queries.ListRequestsQuery:
		return h.ListRequests(ctx, q)
	case queries.GetAnalyticsQuery:
		return h.GetAnalytics(ctx, q)
	case queries.GetLifeOverviewQuery:
		return h.GetLifeOverview(ctx, q)
	default:
		return nil, fmt.Errorf("unsupported query type %T", query)
	}
}

// GetCadence computes the guardrail view over the open requests.
func (h *CompanionQueryHandler) GetCadence(ctx context.Context, q queries.GetCadenceQuery) (*queries.CadenceView, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.PersistenceTimeout)
	defer cancel()

	companionID := valueobjects.CompanionID(q.CompanionID)
	var (
		open     []*entities.Request
		snapshot entities.LifeSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		open, err = h.store.LoadOpenRequests(gctx, companionID)
		return err
	})
	g.Go(func() (err error) {
		snapshot, err = h.loadSnapshot(gctx, companionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	cadence := h.cadence.Calculate(open, now)
	return &queries.CadenceView{
		RequestCadence: cadence,
		NextDueLabel:   valueobjects.FormatDueWindow(cadence.NextDueAt, now),
		Recovery:       h.recovery.Score(snapshot.RoutineStabilityScore, snapshot.RequestFatigue, cadence.OverdueCount),
		EvaluatedAt:    now,
	}, nil
}

// ListRequests ranks the open requests and applies the filter.
func (h *CompanionQueryHandler) ListRequests(ctx context.Context, q queries.ListRequestsQuery) (*queries.RequestListView, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.PersistenceTimeout)
	defer cancel()

	open, err := h.store.LoadOpenRequests(ctx, valueobjects.CompanionID(q.CompanionID))
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	filter := services.ParseRequestFilter(q.Filter)
	ranked := services.FilterRanked(services.RankRequests(open, now, h.config.WindowBounds()), filter)

	views := make([]queries.RankedRequestView, 0, len(ranked))
	for _, r := range ranked {
		views = append(views, queries.RankedRequestView{RequestSnapshot: r.Request.Snapshot(), Window: r.Window})
	}
	return &queries.RequestListView{
		Filter:      filter,
		Requests:    views,
		OpenCount:   len(open),
		EvaluatedAt: now,
	}, nil
}

// GetAnalytics computes response analytics over the lookback history.
func (h *CompanionQueryHandler) GetAnalytics(ctx context.Context, q queries.GetAnalyticsQuery) (*queries.AnalyticsView, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.PersistenceTimeout)
	defer cancel()

	now := h.clock.Now()
	history, err := h.store.LoadResolvedRequestsHistory(ctx, valueobjects.CompanionID(q.CompanionID),
		now.Add(-h.config.AnalyticsLookback), h.config.AnalyticsHistoryLimit)
	if err != nil {
		return nil, err
	}

	analytics := services.ComputeAnalytics(history, now, h.config.AnalyticsWindow)
	return &queries.AnalyticsView{
		RequestAnalytics:     analytics,
		AverageResponseLabel: valueobjects.FormatLatency(analytics.AverageResponseMinutes),
	}, nil
}

// GetLifeOverview loads the snapshot, open requests and rituals concurrently.
func (h *CompanionQueryHandler) GetLifeOverview(ctx context.Context, q queries.GetLifeOverviewQuery) (*queries.LifeOverview, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.PersistenceTimeout)
	defer cancel()

	companionID := valueobjects.CompanionID(q.CompanionID)
	now := h.clock.Now()
	date := q.Date
	if date == "" {
		date = entities.DateKey(now)
	}

	var (
		snapshot entities.LifeSnapshot
		open     []*entities.Request
		rituals  []*entities.Ritual
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snapshot, err = h.loadSnapshot(gctx, companionID)
		return err
	})
	g.Go(func() (err error) {
		open, err = h.store.LoadOpenRequests(gctx, companionID)
		return err
	})
	g.Go(func() (err error) {
		rituals, err = h.store.LoadRituals(gctx, companionID, date)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Warn("Failed to load life overview",
			zap.String("companion_id", companionID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	cadence := h.cadence.Calculate(open, now)
	overview := &queries.LifeOverview{
		Snapshot:    snapshot,
		Recovery:    h.recovery.Score(snapshot.RoutineStabilityScore, snapshot.RequestFatigue, cadence.OverdueCount),
		Cadence:     cadence,
		RitualDate:  date,
		Rituals:     make([]entities.RitualSnapshot, 0, len(rituals)),
		EvaluatedAt: now,
	}
	for _, r := range rituals {
		overview.Rituals = append(overview.Rituals, r.Snapshot())
		if r.Status() == valueobjects.RitualPending {
			overview.Pending++
		}
	}
	return overview, nil
}

func (h *CompanionQueryHandler) loadSnapshot(ctx context.Context, companionID valueobjects.CompanionID) (entities.LifeSnapshot, error) {
	snapshot, err := h.store.LoadLifeSnapshot(ctx, companionID)
	if pkgerrors.IsNotFound(err) {
		return entities.NewLifeSnapshot(companionID, h.clock.Now()), nil
	}
	return snapshot, err
}
