package telegram

import (
	"fmt"
	"strings"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// FormatPrice renders a price with two decimals and thousands separators.
func FormatPrice(price decimal.Decimal, currency string) string {
	amount := groupThousands(price.StringFixed(2))
	switch strings.ToUpper(currency) {
	case "TWD":
		return "NT$ " + amount
	case "USD", "":
		return "$ " + amount
	default:
		return amount + " " + strings.ToUpper(currency)
	}
}

func groupThousands(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		return sign + b.String() + "." + frac
	}
	return sign + b.String()
}

func FormatTriggeredAlert(alert domain.TriggeredAlert) string {
	rule := alert.Rule
	return fmt.Sprintf(
		"Price alert: %s\nCondition: %s %s\nCurrent: %s\nAlert ID: %s\n\nThis alert stays quiet until the price moves back past the target.",
		rule.Symbol,
		rule.Condition,
		FormatPrice(rule.TargetPrice, alert.Currency),
		FormatPrice(alert.CurrentPrice, alert.Currency),
		rule.ID,
	)
}

func formatRule(rule domain.AlertRule) string {
	state := "armed"
	if rule.Notified {
		state = "notified"
	}
	currency := domain.MarketOf(rule.Symbol).Currency()
	return fmt.Sprintf("%s %s %s [%s]\nID: %s", rule.Symbol, rule.Condition, FormatPrice(rule.TargetPrice, currency), state, rule.ID)
}

func formatQuote(quote domain.Quote) string {
	if !quote.Success || quote.Price == nil {
		return fmt.Sprintf("%s: unavailable (%s)", quote.Symbol, quote.Error)
	}
	return fmt.Sprintf("%s: %s (via %s)", quote.Symbol, FormatPrice(*quote.Price, quote.Currency), quote.Source)
}
