package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// quoteCmd 현재가 + 투자자 동향
var quoteCmd = &cobra.Command{
	Use:   "quote <symbol>",
	Short: "현재가 및 투자자별 순매수 조회",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newTokenApp()
		if err != nil {
			return err
		}
		defer a.close()

		symbol := args[0]
		q, err := a.kis.Quote(ctx, symbol)
		if err != nil {
			return err
		}
		fmt.Printf("%s 현재가 %d원 (시 %d 고 %d 저 %d) 거래량 %d\n",
			q.Symbol, q.Price, q.Open, q.High, q.Low, q.Volume)

		flow, err := a.kis.InvestorFlow(ctx, symbol)
		if err != nil {
			fmt.Printf("  투자자 동향 조회 실패: %v\n", err)
			return nil
		}
		fmt.Printf("  순매수 외국인 %+d 기관 %+d 개인 %+d\n",
			flow.ForeignNetBuy, flow.InstNetBuy, flow.RetailNetBuy)
		return nil
	},
}
