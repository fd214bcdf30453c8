package cmd

import (
	"github.com/NasaVasa/stockwatch/internal/app"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the periodic price check",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx, app.Options{Telegram: true})
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run(ctx)
}
