package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/snowbot/internal/domain/trading"
)

var (
	evalDate string
	dataDate string
)

// evaluateCmd 전 종목 평가
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "종목 평가 (스코어링)",
	Long: `기준일에 상장된 전 종목을 평가하여 evaluation_result에 저장합니다.
--data-date를 지정하면 해당 일자의 시세/재무 데이터로 평가하고 결과는 --date로 기록합니다.`,
	RunE: runEvaluate,
}

// evaluateAnalyzeCmd 단일 종목 분석
var evaluateAnalyzeCmd = &cobra.Command{
	Use:   "analyze <symbol>",
	Short: "단일 종목 분석",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	evaluateCmd.PersistentFlags().StringVar(&evalDate, "date", "", "evaluation date YYYYMMDD (default today)")
	evaluateCmd.Flags().StringVar(&dataDate, "data-date", "", "data date YYYYMMDD (default --date)")
	evaluateCmd.AddCommand(evaluateAnalyzeCmd)
}

func today() string {
	return trading.DateKey(time.Now())
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if evalDate == "" {
		evalDate = today()
	}

	return withApp(func(ctx context.Context, a *app) error {
		result, err := a.scoring.Run(ctx, evalDate, dataDate)
		if err != nil {
			return err
		}

		fmt.Printf("평가일 %s (데이터 %s): 총 %d건, 평가 %d건, 매수후보 %d건, 데이터없음 %d건\n",
			result.EvalDate, result.DataDate, result.Total, result.Evaluated, result.BuyCandidates, result.Skipped)
		for _, e := range result.Errors {
			fmt.Println("  ❌", e)
		}
		return nil
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	date := evalDate
	if date == "" {
		date = today()
	}

	return withApp(func(ctx context.Context, a *app) error {
		an, err := a.scoring.Analyze(ctx, args[0], date)
		if err != nil {
			return err
		}

		s := an.Score
		fmt.Printf("%s(%s) 현재가 %d원 → %s (목표가 %d원)\n", an.Name, an.Symbol, an.Price, an.Signal, an.TargetPrice)
		fmt.Printf("  총점 %d (재무 %d, 성장 %d, 추세 %d, 기술 %d, 수급 %d, 시총 %d, PER %d, PBR %d) 매수후보=%t\n",
			s.Total, s.Fundamentals, s.Momentum, s.PriceTrend, s.Technical,
			s.SupplyDemand, s.MarketCap, s.PER, s.PBR, s.BuyCandidate)
		return nil
	})
}
