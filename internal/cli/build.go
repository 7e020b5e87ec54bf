package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vx-continuous/internal/app"
)

var (
	buildFrom string
	buildTo   string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the continuous series once and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BuildOptions{}

		if buildFrom != "" {
			from, err := time.Parse("2006-01-02", buildFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if buildTo != "" {
			to, err := time.Parse("2006-01-02", buildTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
			return fmt.Errorf("--from must be before --to")
		}

		return getApp().Build(cmd.Context(), opts)
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildFrom, "from", "", "First trading day (YYYY-MM-DD, inclusive)")
	buildCmd.Flags().StringVar(&buildTo, "to", "", "Last trading day (YYYY-MM-DD, inclusive)")
}
