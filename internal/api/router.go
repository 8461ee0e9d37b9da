package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wonny/snowbot/internal/api/handlers"
	"github.com/wonny/snowbot/internal/api/middleware"
	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/config"
)

// Deps holds everything the operator API serves
type Deps struct {
	Version string
	GinMode string

	DB         handlers.DBChecker
	QuoteCache handlers.QuoteCacheStats // nil in live mode
	Broker     trading.Broker
	Trades     trading.TradeRepository
	RunLogs    trading.RunLogRepository
	Tokens     handlers.TokenAdmin
	Cycles     handlers.CycleRunner
	Evaluator  handlers.Evaluator
	Settings   *config.SettingsStore
	Gatherer   prometheus.Gatherer
	AccessLog  *zerolog.Logger // nil: global logger
}

// Router holds the gin engine and handlers
type Router struct {
	engine     *gin.Engine
	deps       Deps
	health     *handlers.HealthHandler
	account    *handlers.AccountHandler
	tokens     *handlers.TokenHandler
	cycles     *handlers.CycleHandler
	evaluation *handlers.EvaluationHandler
	settings   *handlers.SettingsHandler
}

// NewRouter creates the operator API router
func NewRouter(deps Deps) *Router {
	if deps.GinMode != "" {
		gin.SetMode(deps.GinMode)
	}

	r := &Router{
		engine:     gin.New(),
		deps:       deps,
		health:     handlers.NewHealthHandler(deps.DB, deps.QuoteCache, deps.Version, string(deps.Broker.Mode())),
		account:    handlers.NewAccountHandler(deps.Broker, deps.Trades),
		tokens:     handlers.NewTokenHandler(deps.Tokens),
		cycles:     handlers.NewCycleHandler(deps.Cycles, deps.RunLogs),
		evaluation: handlers.NewEvaluationHandler(deps.Evaluator),
		settings:   handlers.NewSettingsHandler(deps.Settings),
	}

	r.setupMiddlewares()
	r.setupRoutes()
	return r
}

func (r *Router) setupMiddlewares() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Logging(middleware.LoggingConfig{
		AccessLogger: r.deps.AccessLog,
		SkipPaths:    []string{"/health", "/metrics"},
	}))
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.health.Health)

	if r.deps.Gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.engine.Group("/api")
	{
		api.GET("/health", r.health.Detailed)

		api.GET("/account", r.account.GetAccount)
		api.GET("/trades", r.account.ListTrades)
		api.POST("/orders", r.account.PlaceOrder)

		tokens := api.Group("/tokens")
		{
			tokens.GET("/:profile", r.tokens.Status)
			tokens.DELETE("/:profile", r.tokens.Invalidate)
		}

		cycles := api.Group("/cycles")
		{
			cycles.GET("", r.cycles.Recent)
			cycles.POST("", r.cycles.Run)
		}

		evaluations := api.Group("/evaluations")
		{
			evaluations.POST("", r.evaluation.Run)
			evaluations.GET("/:symbol", r.evaluation.Analyze)
		}

		if r.deps.Settings != nil {
			api.GET("/settings", r.settings.Get)
			api.PATCH("/settings", r.settings.Update)
		}
	}
}

// Engine returns the underlying Gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
