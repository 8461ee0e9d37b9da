package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// cycleCmd cycle 서브커맨드
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "자동매매 사이클",
}

// cycleRunCmd 자동매매 1회 실행
var cycleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "자동매매 1회 실행",
	Long: `보유 종목 익절/손절 매도 후 당일 매수 후보를 Pivot 지지선 조건으로 매수합니다.
동시에 두 번 실행하지 마세요 (스케줄러가 단일 실행을 보장해야 합니다).`,
	RunE: runCycle,
}

func init() {
	cycleCmd.AddCommand(cycleRunCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		report, err := a.autotrade.RunCycle(ctx, time.Now())
		if report != nil {
			fmt.Println(report.String())
			fmt.Println(report.Summary())
		}
		return err
	})
}

// withApp wires the app, runs fn and closes it.
// The context is cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}
