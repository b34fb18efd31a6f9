//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"companionlife/application/ports"
	"companionlife/infrastructure/config"
	"companionlife/infrastructure/persistence/resilient"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideClock,
	ProvideDomainConfig,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideStore,
	wire.Bind(new(ports.CompanionStore), new(*resilient.Store)),
	ProvideLocker,
	ProvideEventPublisher,
	ProvideCollector,
	ProvideMetrics,
	ProvideTracer,
	ProvideContent,
	ProvideRequestContentSource,
	ProvideRitualCatalog,
	ProvideRequestLifecycleHandler,
	ProvideDayCycleOrchestrator,
	ProvideCommandBus,
	ProvideQueryHandler,
	ProvideQueryBus,
	ProvideEscalationMonitor,
	ProvideVerifier,
	ProvideRateLimiter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The cleanup closes
// the store.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
