package rest

import (
	"context"
	"net/http"
	"time"

	"companionlife/application/commands/bus"
	querybus "companionlife/application/queries/bus"
	"companionlife/interfaces/http/rest/functions"
	"companionlife/interfaces/http/rest/handlers"
	"companionlife/interfaces/http/rest/middleware"
	"companionlife/pkg/auth"
	"companionlife/pkg/common"
	pkgerrors "companionlife/pkg/errors"
	"companionlife/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// RouterOptions holds the HTTP-facing settings. CORS is off when
// AllowedOrigins is empty.
type RouterOptions struct {
	AllowedOrigins []string
	Debug          bool
	Ready          ReadinessCheck
	// Metrics, when set, records every request and serves GET /metrics.
	Metrics *observability.Collector
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	watcher    handlers.EscalationWatcher
	verifier   auth.Verifier
	limiter    auth.RateLimiter
	options    RouterOptions
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	watcher handlers.EscalationWatcher,
	verifier auth.Verifier,
	limiter auth.RateLimiter,
	options RouterOptions,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		watcher:    watcher,
		verifier:   verifier,
		limiter:    limiter,
		options:    options,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.options.Metrics))
	if len(rt.options.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.options.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "apikey", "x-client-info"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.options.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.options.Metrics.Handler())
	}

	errorHandler := pkgerrors.NewErrorHandler(rt.logger, rt.options.Debug)
	authenticate := middleware.Authenticate(rt.verifier, rt.limiter, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(chimiddleware.Timeout(30 * time.Second))

		companionHandler := handlers.NewCompanionHandler(rt.commandBus, rt.queryBus, rt.watcher, errorHandler, rt.logger)
		r.Route("/companions/{companionID}", func(r chi.Router) {
			r.Get("/life", companionHandler.GetLife)
			r.Get("/cadence", companionHandler.GetCadence)
			r.Get("/analytics", companionHandler.GetAnalytics)

			r.Route("/requests", func(r chi.Router) {
				r.Get("/", companionHandler.ListRequests)
				r.Post("/generate", companionHandler.GenerateRequests)
				r.Post("/{requestID}/{action}", companionHandler.ResolveRequest)
			})

			r.Post("/day-tick", companionHandler.ProcessDayTick)
			r.Post("/rituals/{ritualID}/complete", companionHandler.CompleteRitual)

			r.Get("/escalations", companionHandler.GetEscalation)
			r.Delete("/escalations", companionHandler.DismissEscalation)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Mount(functions.PathPrefix, functions.NewRouter(rt.commandBus, rt.logger))
	})

	router.NotFound(func(w http.ResponseWriter, req *http.Request) {
		errorHandler.HandleStatus(w, req, http.StatusNotFound, "route not found")
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck reports 503 while the store is unavailable
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if rt.options.Ready != nil {
		if err := rt.options.Ready(req.Context()); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			common.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
