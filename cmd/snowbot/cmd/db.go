package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/snowbot/internal/infra/database/postgres"
)

// dbCmd 데이터베이스 관리
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "데이터베이스 관리",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "market/trade/system 스키마 및 테이블 생성 (IF NOT EXISTS)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		return pool.Migrate(ctx)
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
}
