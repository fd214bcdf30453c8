package cmd

import (
	"fmt"

	"github.com/NasaVasa/stockwatch/internal/app"
	"github.com/NasaVasa/stockwatch/internal/delivery/telegram"
	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/spf13/cobra"
)

var priceCmd = &cobra.Command{
	Use:   "price <symbol> [symbol...]",
	Short: "Resolve current prices through the provider chain",
	Long: `Resolve the current price of one or more symbols and print the provider
that answered. Four digit codes are treated as Taiwan listings (2330 -> 2330.TW).

Example:
  stockwatch price AAPL 2330`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrice,
}

func init() {
	rootCmd.AddCommand(priceCmd)
}

func runPrice(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer application.Shutdown()

	quotes, err := application.Alerts().ResolvePrices(ctx, args)
	if err != nil {
		return err
	}

	failed := 0
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		symbol := domain.CanonicalSymbol(arg)
		if seen[symbol] {
			continue
		}
		seen[symbol] = true

		quote := quotes[symbol]
		if !quote.Success {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s error: %s\n", symbol, quote.Error)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s (%s)\n", symbol, telegram.FormatPrice(*quote.Price, quote.Currency), quote.Source)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d symbols could not be resolved", failed, len(seen))
	}
	return nil
}
