package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/snowbot/internal/domain/trading"
)

var (
	historyLimit int
	resetConfirm bool
)

// ledgerCmd 모의투자 원장
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "모의투자 원장 (EXECUTION_MODE와 무관하게 paper 원장 사용)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		cfg.Runtime.ExecutionMode = trading.ModePaper
		return nil
	},
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "계좌/보유 종목 조회 (현재가 갱신)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			acc, err := a.ledger.GetAccountInfo(ctx)
			if err != nil {
				return err
			}
			printAccount(acc)
			return nil
		})
	},
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "원장 초기화 (보유 종목 삭제, 예수금 초기화)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirm {
			return fmt.Errorf("reset deletes all paper positions; pass --yes to confirm")
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.ledger.Reset(ctx); err != nil {
				return err
			}
			fmt.Printf("✅ 원장 초기화 완료 (예수금 %d원)\n", a.settings.Trading().InitialBalance)
			return nil
		})
	},
}

var ledgerHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "모의투자 거래 내역",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			trades, err := a.ledger.TradeHistory(ctx, historyLimit)
			if err != nil {
				return err
			}
			for _, t := range trades {
				fmt.Printf("%s %s %-4s %s(%s) %d주 @%d 수수료 %d 세금 %d 손익 %+d (%+.2f%%) %s\n",
					t.TradeDate, t.TradeTime, t.Side, t.Name, t.Symbol, t.Qty, t.Price,
					t.Fee, t.Tax, t.Profit, t.ProfitRate, t.Reason)
			}
			fmt.Printf("총 %d건\n", len(trades))
			return nil
		})
	},
}

func init() {
	ledgerResetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm reset")
	ledgerHistoryCmd.Flags().IntVar(&historyLimit, "limit", 100, "number of trades")

	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerResetCmd)
	ledgerCmd.AddCommand(ledgerHistoryCmd)
}

func printAccount(acc *trading.Account) {
	fmt.Printf("초기자본 %d원 | 예수금 %d원 | 평가금 %d원 | 총평가 %d원\n",
		acc.InitialBalance, acc.Cash, acc.PositionValue, acc.TotalEval)
	fmt.Printf("실현손익 %+d원 (%+.2f%%) | 총손익 %+d원 (%+.2f%%)\n",
		acc.RealizedPnL, acc.RealizedPnLRate, acc.TotalProfit, acc.TotalProfitRate)
	for _, p := range acc.Positions {
		fmt.Printf("  %s(%s) %d주 평균 %d 현재 %d 평가 %d 손익 %+d (%+.2f%%)\n",
			p.Name, p.Symbol, p.Qty, p.AvgPrice, p.CurrentPrice, p.EvalAmount, p.UnrealizedPnL, p.PnLRate)
	}
}
