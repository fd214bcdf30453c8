package cmd

import (
	"fmt"

	"github.com/NasaVasa/stockwatch/internal/app"
	"github.com/spf13/cobra"
)

var checkNotify bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single alert check cycle and exit",
	Long: `Run one check cycle against the persisted watchlist: resolve prices,
evaluate every enabled alert and deliver notifications.

Without --notify triggered alerts are only logged and no Telegram token is needed.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkNotify, "notify", false, "deliver triggered alerts over Telegram")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx, app.Options{Telegram: checkNotify})
	if err != nil {
		return err
	}
	defer application.Shutdown()

	report := application.RunOnce(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "symbols=%d resolved=%d triggered=%d delivered=%d failed=%d duration=%s\n",
		report.Symbols, report.Resolved, report.Triggered, report.Delivered, report.Failed, report.Duration)
	return report.Err
}
