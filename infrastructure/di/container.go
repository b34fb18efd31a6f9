package di

import (
	"context"

	"companionlife/application/commands/bus"
	"companionlife/application/ports"
	querybus "companionlife/application/queries/bus"
	"companionlife/application/services"
	domainconfig "companionlife/domain/config"
	"companionlife/infrastructure/config"
	"companionlife/infrastructure/persistence/resilient"
	"companionlife/pkg/auth"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"
	"companionlife/pkg/observability"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	DomainConfig *domainconfig.DomainConfig
	Logger       *zap.Logger
	Clock        clock.Clock
	Breaker      *resilient.Store
	Store        ports.CompanionStore
	Locker       ports.CompanionLocker
	Publisher    ports.EventPublisher
	CommandBus   *bus.CommandBus
	QueryBus     *querybus.QueryBus
	Monitor      *services.EscalationMonitor
	Verifier     auth.Verifier
	RateLimiter  auth.RateLimiter
	Metrics      *observability.Metrics
	Collector    *observability.Collector
	Tracer       *observability.Tracer
}

// Ready fails while the store breaker is open.
func (c *Container) Ready(context.Context) error {
	if c.Breaker.State() == gobreaker.StateOpen {
		return pkgerrors.NewUnavailableError("companion store")
	}
	return nil
}
