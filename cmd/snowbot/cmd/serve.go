package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wonny/snowbot/internal/api"
	"github.com/wonny/snowbot/internal/pkg/logger"
)

// serveCmd 운영 API 서버
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "운영 API 서버 실행",
	Long: `계좌/거래내역/토큰 상태 조회, 수동 주문, 자동매매·평가 트리거, /metrics 를 제공합니다.
Ctrl+C로 종료할 수 있습니다.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		deps := api.Deps{
			Version:   serviceVersion,
			GinMode:   cfg.Server.Mode,
			DB:        a.pool,
			Broker:    a.broker,
			Trades:    a.trades,
			RunLogs:   a.runLogs,
			Tokens:    a.tokens,
			Cycles:    a.autotrade,
			Evaluator: a.scoring,
			Settings:  a.settings,
			Gatherer:  a.registry,
		}
		if a.quotes != nil {
			deps.QuoteCache = a.quotes
		}
		if cfg.Logging.FileEnabled {
			access := logger.NewAccessLogger(cfg.Logging.FilePath, cfg.Logging.RotationSize, cfg.Logging.RetentionDays)
			deps.AccessLog = &access
		}
		router := api.NewRouter(deps)

		srv := &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router.Engine(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("🚀 API server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info().Msg("🛑 Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("✅ API server stopped")
		return nil
	})
}
