package domain

import (
	"fmt"
	"strings"
)

const taiwanSuffix = ".TW"

type Market string

const (
	MarketUS     Market = "US"
	MarketTaiwan Market = "TW"
)

// CanonicalSymbol upper-cases a ticker. A bare four digit code is a Taiwan
// listing and gets the ".TW" suffix.
func CanonicalSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) == 4 && isDigits(s) {
		return s + taiwanSuffix
	}
	return s
}

// ValidateSymbol canonicalizes symbol and rejects empty or malformed tickers.
func ValidateSymbol(symbol string) (string, error) {
	s := CanonicalSymbol(symbol)
	if s == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidArgument)
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '^', r == '=':
		default:
			return "", fmt.Errorf("%w: symbol %q contains %q", ErrInvalidArgument, symbol, r)
		}
	}
	return s, nil
}

// MarketOf infers the listing region from the symbol shape.
func MarketOf(symbol string) Market {
	s := CanonicalSymbol(symbol)
	if strings.HasSuffix(s, taiwanSuffix) || strings.HasSuffix(s, ".TWO") {
		return MarketTaiwan
	}
	return MarketUS
}

// LocalCode strips the exchange suffix from a Taiwan symbol ("2330.TW" -> "2330").
func LocalCode(symbol string) string {
	s := CanonicalSymbol(symbol)
	if idx := strings.LastIndex(s, "."); idx > 0 && MarketOf(s) == MarketTaiwan {
		return s[:idx]
	}
	return s
}

func (m Market) Currency() string {
	if m == MarketTaiwan {
		return "TWD"
	}
	return "USD"
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
