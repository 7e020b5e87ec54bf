package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"vx-continuous/internal/app"
)

var (
	simulateMonths int
	simulateSeed   int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "基于合成合约链执行一次离线构建",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateMonths < 2 {
			return errors.New("--months 必须不少于 2")
		}

		opts := app.SimulateOptions{
			Months: simulateMonths,
			Seed:   simulateSeed,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateMonths, "months", 6, "合成合约月份数")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 1, "随机种子")
}
