package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/infra/database/postgres"
	"github.com/wonny/snowbot/internal/infra/kis"
	"github.com/wonny/snowbot/internal/pkg/config"
	"github.com/wonny/snowbot/internal/pkg/logger"
	"github.com/wonny/snowbot/internal/pkg/metrics"
	"github.com/wonny/snowbot/internal/service/autotrade"
	"github.com/wonny/snowbot/internal/service/ledger"
	"github.com/wonny/snowbot/internal/service/pricesync"
	"github.com/wonny/snowbot/internal/service/scoring"
)

// app holds the wired components of one process
type app struct {
	pool     *postgres.Pool
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	settings *config.SettingsStore

	tokens *kis.TokenManager
	kis    *kis.Client
	quotes *pricesync.Cache

	reference *postgres.ReferenceRepository
	scores    *postgres.ScoreRepository
	trades    *postgres.TradeRepository
	runLogs   *postgres.RunLogRepository

	ledger    *ledger.Ledger
	broker    trading.Broker
	scoring   *scoring.Service
	autotrade *autotrade.Service
}

// newApp connects to the database and wires every component
func newApp(ctx context.Context) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	settings, err := config.LoadSettings(cfg.Runtime.SettingsFile)
	if err != nil {
		return nil, err
	}
	a.settings = settings

	if err := a.wireTokens(); err != nil {
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.pool = pool
	log.Info().Msg("✅ Database connected")

	a.reference = postgres.NewReferenceRepository(pool.Pool)
	a.scores = postgres.NewScoreRepository(pool.Pool)
	a.trades = postgres.NewTradeRepository(pool.Pool)
	a.runLogs = postgres.NewRunLogRepository(pool.Pool)

	a.scoring = scoring.NewService(scoring.NewEvaluator(settings), a.reference, a.scores, a.metrics)

	switch cfg.Runtime.ExecutionMode {
	case trading.ModeLive:
		a.broker = kis.NewLiveBroker(a.kis)
	default:
		a.quotes = pricesync.New(a.kis, pricesync.DefaultTTL)
		a.ledger = ledger.New(postgres.NewLedgerRepository(pool.Pool), a.quotes, settings, ledger.WithMetrics(a.metrics))
		if err := a.ledger.Init(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.broker = ledger.NewPaperBroker(a.ledger, a.quotes)
	}

	var sessions trading.SessionSource = a.reference
	if cfg.Runtime.SessionSource == "broker" {
		sessions = a.kis
	}

	opts := []autotrade.Option{
		autotrade.WithRunLogs(a.runLogs),
		autotrade.WithMetrics(a.metrics),
	}
	if cfg.Logging.FileEnabled {
		opts = append(opts, autotrade.WithTradeLog(logger.NewTradeLogger(
			cfg.Logging.FilePath,
			cfg.Logging.RotationSize,
			cfg.Logging.RetentionDays,
		)))
	}
	a.autotrade = autotrade.NewService(a.broker, a.scores, a.trades, sessions, settings, opts...)

	log.Info().
		Str("execution_mode", string(a.broker.Mode())).
		Str("api_profile", string(cfg.Runtime.APIProfile)).
		Str("session_source", cfg.Runtime.SessionSource).
		Msg("✅ Components wired")
	return a, nil
}

// wireTokens builds the token manager and the KIS client of the API profile.
// Needs no database.
func (a *app) wireTokens() error {
	var store kis.TokenStore
	switch cfg.Runtime.TokenStore {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		store = kis.NewRedisTokenStore(a.redis)
	case "file", "":
		store = kis.NewFileTokenStore(cfg.Runtime.TokenFile)
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q (file, redis)", cfg.Runtime.TokenStore)
	}

	if a.metrics == nil {
		a.metrics = metrics.New(nil)
	}
	a.tokens = kis.NewTokenManager(store, kis.WithTokenMetrics(a.metrics))
	a.kis = kis.NewClient(kisConfig(cfg.Runtime.APIProfile), a.tokens, a.metrics)
	return nil
}

func kisConfig(profile trading.Profile) kis.Config {
	p := cfg.KIS.Profile(profile)
	return kis.Config{
		Profile:     profile,
		AppKey:      p.AppKey,
		AppSecret:   p.AppSecret,
		BaseURL:     p.BaseURL,
		AccountNo:   p.AccountNo,
		AccountCode: p.AccountCode,
		Timeout:     cfg.KIS.Timeout,
		MinInterval: cfg.KIS.MinInterval,
		RetryDelay:  cfg.KIS.RetryDelay,
	}
}

// newTokenApp wires only the token manager and KIS client
func newTokenApp() (*app, error) {
	a := &app{}
	if err := a.wireTokens(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️  Redis close failed")
		}
	}
}
