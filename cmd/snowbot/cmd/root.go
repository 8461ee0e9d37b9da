// Package cmd - snowbot CLI commands
package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wonny/snowbot/internal/pkg/config"
	"github.com/wonny/snowbot/internal/pkg/logger"
)

const (
	serviceName    = "snowbot"
	serviceVersion = "1.0.0"
)

var (
	// 공통 플래그
	settingsFile string
	verbose      bool

	cfg *config.Config
)

// rootCmd 루트 커맨드
var rootCmd = &cobra.Command{
	Use:   "snowbot",
	Short: "Snowbot - KRX 자동매매 코어",
	Long: `Snowbot - KRX 자동매매 코어

Commands:
    cycle       run                     - 자동매매 1회 실행 (매도 -> 매수)
    evaluate    [analyze <symbol>]      - 종목 평가 (스코어링)
    ledger      show/reset/history      - 모의투자 원장
    token       status/invalidate       - KIS 접근토큰
    quote       <symbol>                - 현재가 + 투자자 동향
    serve                               - 운영 API 서버
    db          migrate                 - 스키마 생성
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute 루트 커맨드 실행
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "trading settings YAML (default $SETTINGS_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dbCmd)
}

// initConfig loads .env, sets KST and initializes the logger
func initConfig() error {
	// 거래일/체결시각은 모두 KST 기준
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	time.Local = loc

	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if settingsFile != "" {
		cfg.Runtime.SettingsFile = settingsFile
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{
		Level:          level,
		Format:         cfg.Logging.Format,
		FileEnabled:    cfg.Logging.FileEnabled,
		FilePath:       cfg.Logging.FilePath,
		RotationSize:   cfg.Logging.RotationSize,
		RetentionDays:  cfg.Logging.RetentionDays,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Debug().
		Str("execution_mode", string(cfg.Runtime.ExecutionMode)).
		Str("api_profile", string(cfg.Runtime.APIProfile)).
		Msg("Configuration loaded")
	return nil
}
