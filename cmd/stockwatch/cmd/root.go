package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NasaVasa/stockwatch/internal/app"
	"github.com/NasaVasa/stockwatch/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stockwatch",
	Short: "Stock price alerts delivered over Telegram",
	Long: `Stockwatch polls stock prices on a fixed interval and notifies users over
Telegram when a price crosses one of their alert targets.

Prices come from a failover chain of providers (Yahoo Finance, FinMind,
Alpha Vantage). Settings are read from the environment and an optional .env file.

Running without a subcommand is the same as "stockwatch serve".`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func newApp(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	application, err := app.New(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return application, nil
}
