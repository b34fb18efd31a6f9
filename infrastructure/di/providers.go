package di

import (
	"context"
	"fmt"
	"strings"

	"companionlife/application/commands"
	"companionlife/application/commands/bus"
	commandhandlers "companionlife/application/commands/handlers"
	"companionlife/application/ports"
	"companionlife/application/queries"
	querybus "companionlife/application/queries/bus"
	queryhandlers "companionlife/application/queries/handlers"
	"companionlife/application/services"
	domainconfig "companionlife/domain/config"
	"companionlife/infrastructure/config"
	"companionlife/infrastructure/content"
	"companionlife/infrastructure/messaging/eventbridge"
	"companionlife/infrastructure/messaging/local"
	"companionlife/infrastructure/persistence/dynamodb"
	"companionlife/infrastructure/persistence/memory"
	"companionlife/infrastructure/persistence/resilient"
	"companionlife/infrastructure/persistence/sqlite"
	"companionlife/pkg/auth"
	"companionlife/pkg/clock"
	"companionlife/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// developmentSecret signs tokens when no auth backend is configured outside production.
const developmentSecret = "development-secret-change-in-production"

// recentEventCapacity bounds the local publisher's history.
const recentEventCapacity = 256

// userRequestsPerMinute is the per-caller HTTP budget.
const userRequestsPerMinute = 200

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// ProvideClock returns the wall clock
func ProvideClock() clock.Clock {
	return clock.NewSystem()
}

// ProvideDomainConfig loads the cadence tunables for the environment
func ProvideDomainConfig(cfg *config.Config, logger *zap.Logger) (*domainconfig.DomainConfig, error) {
	return config.LoadDomainConfig(cfg.Environment, cfg.TunablesFile, logger)
}

// ProvideAWSConfig creates AWS configuration. Credentials resolve lazily, so
// local drivers never touch AWS.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideStore opens the configured backend behind a circuit breaker.
// The cleanup closes the SQLite database.
func ProvideStore(cfg *config.Config, client *awsdynamodb.Client, clk clock.Clock, logger *zap.Logger) (*resilient.Store, func(), error) {
	var (
		backend ports.CompanionStore
		cleanup = func() {}
	)

	switch cfg.StoreDriver {
	case config.StoreMemory:
		backend = memory.NewStore(clk)
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, clk)
		if err != nil {
			return nil, nil, err
		}
		backend = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close sqlite store", zap.Error(err))
			}
		}
	case config.StoreDynamoDB:
		backend = dynamodb.NewCompanionStore(client, cfg.DynamoDBTable, clk, logger)
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	breaker := resilient.DefaultBreakerConfig()
	if cfg.BreakerMaxFailures > 0 {
		breaker.MaxFailures = cfg.BreakerMaxFailures
	}
	if cfg.BreakerOpenTimeout > 0 {
		breaker.OpenTimeout = cfg.BreakerOpenTimeout
	}

	logger.Info("Companion store ready",
		zap.String("driver", cfg.StoreDriver),
		zap.Uint32("breaker_max_failures", breaker.MaxFailures),
	)
	return resilient.NewStore(backend, breaker, logger), cleanup, nil
}

// ProvideLocker picks the per-companion lock. The local locker only serializes
// within one process.
func ProvideLocker(cfg *config.Config, client *awsdynamodb.Client, clk clock.Clock, logger *zap.Logger) ports.CompanionLocker {
	if cfg.LockMode == config.LockDynamoDB {
		return dynamodb.NewDistributedLock(client, cfg.LocksTable, dynamodb.DefaultLockDuration, clk, logger)
	}
	return memory.NewLocker()
}

// ProvideEventPublisher sends events to EventBridge when a bus is configured
// and logs them otherwise.
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName != "" {
		return eventbridge.NewPublisher(client, cfg.EventBusName, cfg.EventSource, logger)
	}
	return local.NewPublisher(logger, recentEventCapacity)
}

// ProvideMetrics creates metrics instance. Disabled metrics drop every datum.
func ProvideMetrics(client *awscloudwatch.Client, collector *observability.Collector, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, collector, logger)
	}
	return observability.NewMetrics(namespace, client, collector, logger)
}

// ProvideCollector creates the Prometheus collector, or nil when scraping is off
func ProvideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.EnablePrometheus {
		return nil
	}
	return observability.NewCollector(cfg.MetricsNamespace)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(cfg.TracingService, cfg.EnableTracing)
}

// ContentBundle is the request copy and ritual catalog loaded together.
type ContentBundle struct {
	Templates *content.TemplateSource
	Catalog   *content.StaticRitualCatalog
}

// ProvideContent loads the content override file, or the built-in defaults
func ProvideContent(cfg *config.Config, logger *zap.Logger) (*ContentBundle, error) {
	if cfg.ContentFile == "" {
		return &ContentBundle{
			Templates: content.NewTemplateSource(nil),
			Catalog:   content.NewStaticRitualCatalog(nil),
		}, nil
	}
	catalog, templates, err := content.LoadCatalogFile(cfg.ContentFile)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded companion content", zap.String("path", cfg.ContentFile))
	return &ContentBundle{Templates: templates, Catalog: catalog}, nil
}

// ProvideRequestContentSource exposes the bundle's templates
func ProvideRequestContentSource(bundle *ContentBundle) ports.RequestContentSource {
	return bundle.Templates
}

// ProvideRitualCatalog exposes the bundle's catalog
func ProvideRitualCatalog(bundle *ContentBundle) ports.RitualCatalog {
	return bundle.Catalog
}

// ProvideRequestLifecycleHandler creates the request and ritual lifecycle handler
func ProvideRequestLifecycleHandler(
	store ports.CompanionStore,
	locker ports.CompanionLocker,
	publisher ports.EventPublisher,
	clk clock.Clock,
	domainCfg *domainconfig.DomainConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *commandhandlers.RequestLifecycleHandler {
	return commandhandlers.NewRequestLifecycleHandler(store, locker, publisher, clk, domainCfg, metrics, logger)
}

// ProvideDayCycleOrchestrator creates the day tick and generation orchestrator
func ProvideDayCycleOrchestrator(
	store ports.CompanionStore,
	locker ports.CompanionLocker,
	publisher ports.EventPublisher,
	contentSource ports.RequestContentSource,
	catalog ports.RitualCatalog,
	clk clock.Clock,
	domainCfg *domainconfig.DomainConfig,
	tracer *observability.Tracer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *commandhandlers.DayCycleOrchestrator {
	return commandhandlers.NewDayCycleOrchestrator(
		store, locker, publisher, contentSource, catalog, nil, clk, domainCfg, tracer, metrics, logger,
	)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	lifecycle *commandhandlers.RequestLifecycleHandler,
	orchestrator *commandhandlers.DayCycleOrchestrator,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))

	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{commands.ResolveRequestCommand{}, lifecycle},
		{commands.CompleteRitualCommand{}, lifecycle},
		{commands.ProcessDayTickCommand{}, orchestrator},
		{commands.GenerateRequestsCommand{}, orchestrator},
	}
	for _, r := range registrations {
		if err := commandBus.Register(r.cmd, r.handler); err != nil {
			return nil, err
		}
	}
	return commandBus, nil
}

// ProvideQueryHandler creates the read-side handler
func ProvideQueryHandler(
	store ports.CompanionStore,
	clk clock.Clock,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *queryhandlers.CompanionQueryHandler {
	return queryhandlers.NewCompanionQueryHandler(store, clk, domainCfg, logger)
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(handler *queryhandlers.CompanionQueryHandler, logger *zap.Logger) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(logger)
	for _, q := range []querybus.Query{
		queries.GetCadenceQuery{},
		queries.ListRequestsQuery{},
		queries.GetAnalyticsQuery{},
		queries.GetLifeOverviewQuery{},
	} {
		if err := queryBus.Register(q, handler); err != nil {
			return nil, err
		}
	}
	return queryBus, nil
}

// ProvideEscalationMonitor creates the background escalation monitor. It is
// started by the process that serves viewers.
func ProvideEscalationMonitor(
	store ports.CompanionStore,
	publisher ports.EventPublisher,
	clk clock.Clock,
	domainCfg *domainconfig.DomainConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *services.EscalationMonitor {
	return services.NewEscalationMonitor(store, publisher, clk, domainCfg, metrics, logger)
}

// ProvideVerifier picks the token verifier: a shared JWT secret first, then
// Supabase. Development falls back to a fixed secret.
func ProvideVerifier(cfg *config.Config, logger *zap.Logger) (auth.Verifier, error) {
	switch {
	case cfg.JWTSecret != "":
		return auth.NewJWTValidator(cfg.JWTSecret, cfg.JWTIssuer)
	case cfg.SupabaseURL != "":
		return auth.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseKey)
	case cfg.IsProduction():
		return nil, fmt.Errorf("no token verifier configured")
	default:
		logger.Warn("Using the development JWT secret")
		return auth.NewJWTValidator(developmentSecret, cfg.JWTIssuer)
	}
}

// ProvideRateLimiter creates the per-user limiter
func ProvideRateLimiter(clk clock.Clock) auth.RateLimiter {
	return auth.NewUserRateLimiter(userRequestsPerMinute, clk)
}

// AllowedOrigins splits the configured CORS origins. Empty disables CORS.
func AllowedOrigins(cfg *config.Config) []string {
	if !cfg.EnableCORS {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
