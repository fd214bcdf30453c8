package telegram

import (
	"errors"
	"strings"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/shopspring/decimal"
)

const HelpText = `Commands:
/start - show this help
/help - show this help
/add <symbol> <above|below> <price> - watch a price
/list - list your alerts
/remove <alert_id> - delete one alert
/clear - delete all your alerts
/clear <symbol> - delete your alerts on one symbol
/price <symbol> [symbol...] - current price
/enable <alert_id>
/disable <alert_id>

Notes:
- A bare 4 digit code is a Taiwan listing (2330 -> 2330.TW).
- > and >= mean above, < and <= mean below.
- An alert fires once, then re-arms after the price moves back 2% (at least 0.5) past the target.
Example:
/add AAPL above 200
/add 2330 below 950
`

const maxPriceSymbols = 10

var ErrInvalidArguments = errors.New("invalid arguments")

type AddArgs struct {
	Symbol    string
	Condition string
	Target    decimal.Decimal
}

// ParseAddArgs accepts "<symbol> <condition> <price>". The condition is
// mapped from operator aliases but otherwise passed through for validation.
func ParseAddArgs(args string) (AddArgs, error) {
	parts := strings.Fields(args)
	if len(parts) != 3 {
		return AddArgs{}, ErrInvalidArguments
	}
	target, err := decimal.NewFromString(strings.TrimPrefix(parts[2], "$"))
	if err != nil {
		return AddArgs{}, ErrInvalidArguments
	}
	return AddArgs{
		Symbol:    parts[0],
		Condition: normalizeCondition(parts[1]),
		Target:    target,
	}, nil
}

func normalizeCondition(input string) string {
	switch strings.TrimSpace(input) {
	case ">", ">=":
		return string(domain.ConditionAbove)
	case "<", "<=":
		return string(domain.ConditionBelow)
	default:
		return strings.ToLower(strings.TrimSpace(input))
	}
}

func ParseAlertID(args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) != 1 {
		return "", ErrInvalidArguments
	}
	return strings.ToUpper(parts[0]), nil
}

func ParseSymbols(args string) ([]string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > maxPriceSymbols {
		return nil, ErrInvalidArguments
	}
	return parts, nil
}

// ParseOptionalSymbol returns "" when no symbol was given.
func ParseOptionalSymbol(args string) (string, error) {
	parts := strings.Fields(args)
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	default:
		return "", ErrInvalidArguments
	}
}
