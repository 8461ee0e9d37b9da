package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// tokenCmd KIS 접근토큰 관리
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "KIS 접근토큰 (하루 5회 발급 제한)",
}

var tokenStatusCmd = &cobra.Command{
	Use:   "status [paper|live]",
	Short: "토큰 상태 조회",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, a, err := tokenTarget(args)
		if err != nil {
			return err
		}
		defer a.close()

		st, err := a.tokens.Status(context.Background(), profile)
		if err != nil {
			return err
		}

		fmt.Printf("[%s] 토큰 보유=%t 유효=%t 금일발급 %d/%d\n",
			st.Profile, st.HasToken, st.Valid, st.IssuedToday, st.DailyLimit)
		if st.ExpiresAt != nil {
			fmt.Printf("  만료 %s (잔여 %s)\n", st.ExpiresAt.Format("2006-01-02 15:04:05"), st.Remaining.Round(time.Second))
		}
		return nil
	},
}

var tokenInvalidateCmd = &cobra.Command{
	Use:   "invalidate [paper|live]",
	Short: "저장된 토큰 폐기 (발급 횟수는 유지)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, a, err := tokenTarget(args)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.tokens.Invalidate(context.Background(), profile); err != nil {
			return err
		}
		fmt.Printf("✅ [%s] 토큰 폐기 완료\n", profile)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenStatusCmd)
	tokenCmd.AddCommand(tokenInvalidateCmd)
}

// tokenTarget resolves the profile argument (default KIS_API_PROFILE)
func tokenTarget(args []string) (trading.Profile, *app, error) {
	profile := cfg.Runtime.APIProfile
	if len(args) == 1 {
		p, err := trading.ParseProfile(args[0])
		if err != nil {
			return "", nil, err
		}
		profile = p
	}

	a, err := newTokenApp()
	if err != nil {
		return "", nil, err
	}
	return profile, a, nil
}
