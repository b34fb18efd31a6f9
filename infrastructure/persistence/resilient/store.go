// Package resilient wraps a CompanionStore in a circuit breaker so a failing
// backend fails fast instead of stacking up timed-out requests.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	pkgerrors "companionlife/pkg/errors"
)

// BreakerConfig tunes the breaker.
type BreakerConfig struct {
	Name string
	// MaxFailures consecutive backend failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many trial calls pass while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns the production settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "companion-store",
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Store decorates a CompanionStore with a circuit breaker. Caller errors such
// as NotFound or AlreadyResolved count as successes.
type Store struct {
	next    ports.CompanionStore
	breaker *gobreaker.CircuitBreaker
	name    string
}

var _ ports.CompanionStore = (*Store)(nil)

// NewStore wraps next.
func NewStore(next ports.CompanionStore, cfg BreakerConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaults.MaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = defaults.HalfOpenRequests
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || pkgerrors.IsCallerError(err)
		},
	})
	return &Store{next: next, breaker: breaker, name: cfg.Name}
}

// State reports the breaker state.
func (s *Store) State() gobreaker.State {
	return s.breaker.State()
}

func execute[T any](s *Store, fn func() (T, error)) (T, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, pkgerrors.NewUnavailableError(s.name).WithCause(err)
		}
		return zero, err
	}
	return out.(T), nil
}

func (s *Store) exec(fn func() error) error {
	_, err := execute(s, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (s *Store) LoadLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID) (entities.LifeSnapshot, error) {
	return execute(s, func() (entities.LifeSnapshot, error) {
		return s.next.LoadLifeSnapshot(ctx, companionID)
	})
}

func (s *Store) LoadOpenRequests(ctx context.Context, companionID valueobjects.CompanionID) ([]*entities.Request, error) {
	return execute(s, func() ([]*entities.Request, error) {
		return s.next.LoadOpenRequests(ctx, companionID)
	})
}

func (s *Store) LoadRequest(ctx context.Context, companionID valueobjects.CompanionID, requestID valueobjects.RequestID) (*entities.Request, error) {
	return execute(s, func() (*entities.Request, error) {
		return s.next.LoadRequest(ctx, companionID, requestID)
	})
}

func (s *Store) LoadRituals(ctx context.Context, companionID valueobjects.CompanionID, date string) ([]*entities.Ritual, error) {
	return execute(s, func() ([]*entities.Ritual, error) {
		return s.next.LoadRituals(ctx, companionID, date)
	})
}

func (s *Store) LoadRitual(ctx context.Context, companionID valueobjects.CompanionID, ritualID valueobjects.RitualID) (*entities.Ritual, error) {
	return execute(s, func() (*entities.Ritual, error) {
		return s.next.LoadRitual(ctx, companionID, ritualID)
	})
}

func (s *Store) SaveRequestStatus(ctx context.Context, update ports.RequestStatusUpdate) error {
	return s.exec(func() error { return s.next.SaveRequestStatus(ctx, update) })
}

func (s *Store) CreateRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request) error {
	return s.exec(func() error { return s.next.CreateRequests(ctx, companionID, requests) })
}

func (s *Store) CreateRituals(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual) error {
	return s.exec(func() error { return s.next.CreateRituals(ctx, companionID, rituals) })
}

func (s *Store) UpdateLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	return execute(s, func() (entities.LifeSnapshot, error) {
		return s.next.UpdateLifeSnapshot(ctx, companionID, patch)
	})
}

func (s *Store) SaveGeneratedRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	return execute(s, func() (entities.LifeSnapshot, error) {
		return s.next.SaveGeneratedRequests(ctx, companionID, requests, patch)
	})
}

func (s *Store) SaveDayTick(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	return execute(s, func() (entities.LifeSnapshot, error) {
		return s.next.SaveDayTick(ctx, companionID, rituals, patch)
	})
}

func (s *Store) LoadResolvedRequestsHistory(ctx context.Context, companionID valueobjects.CompanionID, since time.Time, limit int) ([]*entities.Request, error) {
	return execute(s, func() ([]*entities.Request, error) {
		return s.next.LoadResolvedRequestsHistory(ctx, companionID, since, limit)
	})
}

func (s *Store) SaveRitualCompletion(ctx context.Context, ritual *entities.Ritual, patch entities.LifeSnapshotPatch) error {
	return s.exec(func() error { return s.next.SaveRitualCompletion(ctx, ritual, patch) })
}
